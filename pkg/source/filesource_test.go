package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileSourceReplaysExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.csv"), []byte("11\n22\n33\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := NewFileSource(dir, '\n')
	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	pool := newTestPool(t, 64)
	buf, ok := pool.GetBufferNowait()
	if !ok {
		t.Fatalf("GetBufferNowait: pool empty")
	}
	defer buf.Release()

	more, err := s.FillBuffer(buf, fixedWidthParser{width: 2})
	if err != nil {
		t.Fatalf("FillBuffer: %v", err)
	}
	if !more {
		t.Fatalf("FillBuffer reported more=false, want true (directory watch has no natural EoS)")
	}
	if buf.TupleCount() != 3 {
		t.Fatalf("TupleCount() = %d, want 3", buf.TupleCount())
	}
}

func TestFileSourceReplaysAppendedFile(t *testing.T) {
	dir := t.TempDir()

	s := NewFileSource(dir, '\n')
	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	path := filepath.Join(dir, "b.csv")
	if err := os.WriteFile(path, []byte("aa\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Give fsnotify time to observe the create event before the first fill.
	time.Sleep(100 * time.Millisecond)

	pool := newTestPool(t, 64)
	buf, ok := pool.GetBufferNowait()
	if !ok {
		t.Fatalf("GetBufferNowait: pool empty")
	}
	defer buf.Release()

	more, err := s.FillBuffer(buf, fixedWidthParser{width: 2})
	if err != nil {
		t.Fatalf("FillBuffer: %v", err)
	}
	if !more || buf.TupleCount() != 1 {
		t.Fatalf("FillBuffer() = more=%v count=%d, want true, 1", more, buf.TupleCount())
	}
}

func TestFileSourceCloseStopsReportingMore(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSource(dir, '\n')
	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	pool := newTestPool(t, 64)
	buf, ok := pool.GetBufferNowait()
	if !ok {
		t.Fatalf("GetBufferNowait: pool empty")
	}
	defer buf.Release()

	more, err := s.FillBuffer(buf, fixedWidthParser{width: 2})
	if err != nil {
		t.Fatalf("FillBuffer: %v", err)
	}
	if more {
		t.Fatalf("FillBuffer reported more=true after Close, want false")
	}
}
