package network

import (
	"testing"

	"github.com/nebulacore/streamengine/pkg/buffer"
)

func newTestPool(t *testing.T) *buffer.Pool {
	t.Helper()
	pool, err := buffer.NewPool(buffer.Config{Name: "test", SegmentSize: 64, Capacity: 8})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return pool
}

func TestEncodeDecodeBufferRoundTrip(t *testing.T) {
	pool := newTestPool(t)
	tupleWidth := 4

	buf := pool.GetUnpooled(16)
	copy(buf.Data(), []byte("0123456789abcdef"))
	buf.SetTupleCount(4)
	buf.Stamp(7, 42, 0, true, 1000)

	frame := EncodeBuffer(buf, tupleWidth)

	out, err := DecodeBuffer(frame, pool, tupleWidth)
	if err != nil {
		t.Fatalf("DecodeBuffer: %v", err)
	}
	if out.TupleCount() != 4 {
		t.Fatalf("TupleCount() = %d, want 4", out.TupleCount())
	}
	origin, seq, chunk := out.Identity()
	if origin != 7 || seq != 42 || chunk != 0 {
		t.Fatalf("Identity() = (%d, %d, %d), want (7, 42, 0)", origin, seq, chunk)
	}
	if !out.LastChunk() {
		t.Fatalf("LastChunk() = false, want true")
	}
	if out.Watermark() != 1000 {
		t.Fatalf("Watermark() = %d, want 1000", out.Watermark())
	}
	if string(out.Data()[:16]) != "0123456789abcdef" {
		t.Fatalf("Data() = %q, want the original payload", out.Data()[:16])
	}
}

func TestEncodeDecodeBufferWithChildren(t *testing.T) {
	pool := newTestPool(t)
	tupleWidth := 4

	parent := pool.GetUnpooled(8)
	copy(parent.Data(), []byte("abcdefgh"))
	parent.SetTupleCount(2)
	parent.Stamp(1, 0, 0, true, 0)

	child := pool.GetUnpooled(4)
	copy(child.Data(), []byte("wxyz"))
	child.SetTupleCount(1)
	parent.AddChild(child)

	frame := EncodeBuffer(parent, tupleWidth)

	out, err := DecodeBuffer(frame, pool, tupleWidth)
	if err != nil {
		t.Fatalf("DecodeBuffer: %v", err)
	}
	children := out.Children()
	if len(children) != 1 {
		t.Fatalf("Children() length = %d, want 1", len(children))
	}
	if string(children[0].Data()[:4]) != "wxyz" {
		t.Fatalf("child Data() = %q, want \"wxyz\"", children[0].Data()[:4])
	}
	if children[0].TupleCount() != 1 {
		t.Fatalf("child TupleCount() = %d, want 1", children[0].TupleCount())
	}
}

func TestDecodeBufferRejectsShortFrame(t *testing.T) {
	pool := newTestPool(t)
	if _, err := DecodeBuffer([]byte{1, 2, 3}, pool, 4); err == nil {
		t.Fatalf("DecodeBuffer on a too-short frame returned no error")
	}
}

func TestDecodeBufferRejectsTruncatedPayload(t *testing.T) {
	pool := newTestPool(t)
	buf := pool.GetUnpooled(16)
	buf.SetTupleCount(4)
	buf.Stamp(1, 0, 0, true, 0)
	frame := EncodeBuffer(buf, 4)

	if _, err := DecodeBuffer(frame[:len(frame)-4], pool, 4); err == nil {
		t.Fatalf("DecodeBuffer on a truncated frame returned no error")
	}
}
