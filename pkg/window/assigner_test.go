package window

import "testing"

func TestNewAssignerTumbling(t *testing.T) {
	a := NewAssigner(1000, 1000)

	if got := a.SliceSize(); got != 1000 {
		t.Errorf("SliceSize() = %v, want 1000", got)
	}

	idx := a.SliceIndex(1500)
	start, end := a.SliceBounds(idx)
	if start != 1000 || end != 2000 {
		t.Errorf("SliceBounds(%d) = (%d, %d), want (1000, 2000)", idx, start, end)
	}

	windows := a.WindowsForSlice(idx)
	if len(windows) != 1 || windows[0] != 1000 {
		t.Errorf("WindowsForSlice(%d) = %v, want [1000]", idx, windows)
	}
}

func TestNewAssignerSliding(t *testing.T) {
	a := NewAssigner(1000, 500)

	if got := a.SliceSize(); got != 500 {
		t.Errorf("SliceSize() = %v, want 500", got)
	}

	// Slice [500, 1000) must feed both the [0,1000) and [500,1500) windows.
	idx := a.SliceIndex(700)
	start, end := a.SliceBounds(idx)
	if start != 500 || end != 1000 {
		t.Errorf("SliceBounds(%d) = (%d, %d), want (500, 1000)", idx, start, end)
	}

	windows := a.WindowsForSlice(idx)
	want := map[int64]bool{0: true, 500: true}
	if len(windows) != len(want) {
		t.Fatalf("WindowsForSlice(%d) = %v, want two windows %v", idx, windows, want)
	}
	for _, w := range windows {
		if !want[w] {
			t.Errorf("WindowsForSlice(%d) included unexpected window start %d", idx, w)
		}
	}
}

func TestAssignerNegativeTimestamp(t *testing.T) {
	a := NewAssigner(1000, 1000)
	idx := a.SliceIndex(-1)
	start, end := a.SliceBounds(idx)
	if start != -1000 || end != 0 {
		t.Errorf("SliceBounds for ts=-1 = (%d, %d), want (-1000, 0)", start, end)
	}
}
