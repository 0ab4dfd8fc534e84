package join

import "testing"

func TestMemoryControllerSpillAndReadBack(t *testing.T) {
	dir := t.TempDir()
	mc := NewMemoryController(dir, 4)
	key := SpillKey{Query: "q1", Origin: 1, Side: LeftSide, SliceEnd: 1000, Worker: 0}

	page := []Tuple{Tuple("a"), Tuple("bb"), Tuple("ccc")}
	if err := mc.SpillPage(key, page); err != nil {
		t.Fatalf("SpillPage() error = %v", err)
	}

	got, err := mc.ReadBack(key)
	if err != nil {
		t.Fatalf("ReadBack() error = %v", err)
	}
	if len(got) != len(page) {
		t.Fatalf("ReadBack() = %v, want %v", got, page)
	}
	for i := range page {
		if string(got[i]) != string(page[i]) {
			t.Errorf("tuple %d = %q, want %q", i, got[i], page[i])
		}
	}
}

func TestMemoryControllerRespectsFDBudget(t *testing.T) {
	dir := t.TempDir()
	mc := NewMemoryController(dir, 2)

	keys := []SpillKey{
		{Query: "q", Side: LeftSide, SliceEnd: 1000, Worker: 0},
		{Query: "q", Side: LeftSide, SliceEnd: 2000, Worker: 0},
		{Query: "q", Side: LeftSide, SliceEnd: 3000, Worker: 0},
	}
	for _, k := range keys {
		if err := mc.SpillPage(k, []Tuple{Tuple("x")}); err != nil {
			t.Fatalf("SpillPage(%v) error = %v", k, err)
		}
	}

	if n := mc.OpenWriters(); n > 2 {
		t.Errorf("OpenWriters() = %d, want at most the configured budget of 2", n)
	}

	// The evicted writer's data must still be safely on disk.
	got, err := mc.ReadBack(keys[0])
	if err != nil {
		t.Fatalf("ReadBack() error = %v", err)
	}
	if len(got) != 1 || string(got[0]) != "x" {
		t.Errorf("ReadBack(%v) = %v, want one tuple \"x\"", keys[0], got)
	}
}

func TestMemoryControllerWriterReaderMutualExclusion(t *testing.T) {
	dir := t.TempDir()
	mc := NewMemoryController(dir, 4)
	key := SpillKey{Query: "q", Side: RightSide, SliceEnd: 500, Worker: 1}

	if err := mc.SpillPage(key, []Tuple{Tuple("first")}); err != nil {
		t.Fatalf("SpillPage() error = %v", err)
	}
	if mc.OpenWriters() != 1 {
		t.Fatalf("OpenWriters() = %d, want 1 before read-back", mc.OpenWriters())
	}

	if _, err := mc.ReadBack(key); err != nil {
		t.Fatalf("ReadBack() error = %v", err)
	}
	if mc.OpenWriters() != 0 {
		t.Errorf("OpenWriters() = %d after ReadBack, want 0 (writer closed before read)", mc.OpenWriters())
	}
}

func TestMemoryControllerClose(t *testing.T) {
	dir := t.TempDir()
	mc := NewMemoryController(dir, 4)
	key := SpillKey{Query: "q", Side: LeftSide, SliceEnd: 1000, Worker: 0}
	if err := mc.SpillPage(key, []Tuple{Tuple("x")}); err != nil {
		t.Fatalf("SpillPage() error = %v", err)
	}
	if err := mc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := mc.OpenWriters(); n != 0 {
		t.Errorf("OpenWriters() after Close() = %d, want 0", n)
	}
}
