package sink

import (
	"testing"

	"github.com/nebulacore/streamengine/pkg/buffer"
)

func newTestPool(t *testing.T, segSize int) *buffer.Pool {
	t.Helper()
	pool, err := buffer.NewPool(buffer.Config{Name: "test", SegmentSize: segSize, Capacity: 2})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return pool
}

func TestNullSinkReleasesBuffer(t *testing.T) {
	pool := newTestPool(t, 64)
	buf, ok := pool.GetBufferNowait()
	if !ok {
		t.Fatalf("GetBufferNowait: pool empty")
	}

	s := NewNullSink()
	if err := s.Execute(nil, nil, buf); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pool.Available() != pool.Capacity() {
		t.Fatalf("Available() = %d, want %d (buffer should be recycled)", pool.Available(), pool.Capacity())
	}
}
