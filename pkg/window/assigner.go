package window

// Assigner computes slice sizing and window membership for a fixed
// (size, slide) window definition in milliseconds. Tumbling windows are
// the slide == size special case.
type Assigner struct {
	size, slide, sliceSize int64
	windowsPerSlice        int64
	slideSlices            int64
}

// NewAssigner builds an Assigner for a window of the given size, firing
// every slide milliseconds. Tumbling windows pass slide == size.
func NewAssigner(size, slide int64) *Assigner {
	ss := gcd(size, slide)
	return &Assigner{
		size:            size,
		slide:           slide,
		sliceSize:       ss,
		windowsPerSlice: size / ss,
		slideSlices:     slide / ss,
	}
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		a = -a
	}
	return a
}

// SliceSize is the GCD-derived physical slice size backing this window
// definition (spec.md §4.5, "Window types").
func (a *Assigner) SliceSize() int64 { return a.sliceSize }

// SliceIndex returns the physical slice index owning timestamp ts.
func (a *Assigner) SliceIndex(ts int64) int64 {
	return floorDiv(ts, a.sliceSize)
}

// SliceBounds returns the half-open [start, end) interval of slice index i.
func (a *Assigner) SliceBounds(i int64) (start, end int64) {
	start = i * a.sliceSize
	return start, start + a.sliceSize
}

// WindowsForSlice returns the start times (in milliseconds) of every
// logical window that slice index i contributes to.
func (a *Assigner) WindowsForSlice(i int64) []int64 {
	// Slice i belongs to window j (in slide-slice units) when
	// j*slideSlices <= i < j*slideSlices + windowsPerSlice.
	lo := ceilDiv(i-a.windowsPerSlice+1, a.slideSlices)
	hi := floorDiv(i, a.slideSlices)
	if hi < lo {
		return nil
	}
	out := make([]int64, 0, hi-lo+1)
	for j := lo; j <= hi; j++ {
		out = append(out, j*a.slide)
	}
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}
