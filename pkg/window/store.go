package window

import (
	"sort"
	"sync"
)

// Store is one operator instance's slice store: it owns every physical
// slice and logical window for one (size, slide, aggregator) window
// definition, and materializes Results as the watermark advances past
// window boundaries (spec.md §4.5).
type Store struct {
	mu       sync.Mutex
	assigner *Assigner
	agg      Aggregator

	physical map[int64]*physicalSlice // keyed by slice start
	logical  map[int64]*logicalWindow // keyed by window start

	lastWatermark int64
}

// NewTumblingStore builds a Store for a tumbling window of the given size.
func NewTumblingStore(size int64, agg Aggregator) *Store {
	return NewStore(size, size, agg)
}

// NewSlidingStore builds a Store for a sliding window of the given size
// and slide.
func NewSlidingStore(size, slide int64, agg Aggregator) *Store {
	return NewStore(size, slide, agg)
}

// NewStore builds a Store directly from a size/slide pair.
func NewStore(size, slide int64, agg Aggregator) *Store {
	return &Store{
		assigner: NewAssigner(size, slide),
		agg:      agg,
		physical: make(map[int64]*physicalSlice),
		logical:  make(map[int64]*logicalWindow),
	}
}

// Add folds one record into its owning physical slice, creating the slice
// and every logical window it feeds on first touch. Records older than the
// last-seen watermark are silently dropped (spec.md §4.5, "late events").
func (s *Store) Add(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp < s.lastWatermark {
		return
	}

	idx := s.assigner.SliceIndex(rec.Timestamp)
	start, end := s.assigner.SliceBounds(idx)

	sl, ok := s.physical[start]
	if !ok {
		sl = &physicalSlice{
			start:   start,
			end:     end,
			state:   Open,
			data:    make(cells),
			windows: s.assigner.WindowsForSlice(idx),
		}
		s.physical[start] = sl
		for _, wStart := range sl.windows {
			if wStart < 0 {
				// A window whose left edge is negative (starts before
				// time 0) is never materialized.
				continue
			}
			s.ensureWindow(wStart)
		}
	}
	sl.state = LeftFilled
	sl.data.combine(s.agg, rec)
}

func (s *Store) ensureWindow(wStart int64) *logicalWindow {
	w, ok := s.logical[wStart]
	if !ok {
		w = &logicalWindow{
			start: wStart,
			end:   wStart + s.assigner.size,
			state: Open,
			data:  make(cells),
		}
		s.logical[wStart] = w
	}
	return w
}

// AdvanceWatermark raises the store's watermark to max(current, wm),
// finalizes every physical slice whose end falls at or below the new
// watermark by merging it into each logical window it contributes to, and
// returns every logical window thereby completed, in ascending start order
// with per-operator strictly increasing emission order implied by that
// ordering (spec.md §4.5, "Trigger action").
func (s *Store) AdvanceWatermark(wm int64) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wm > s.lastWatermark {
		s.lastWatermark = wm
	} else {
		wm = s.lastWatermark
	}

	var ready []int64
	for start, sl := range s.physical {
		if sl.end <= wm && sl.state != Tombstone {
			ready = append(ready, start)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	for _, start := range ready {
		sl := s.physical[start]
		for _, wStart := range sl.windows {
			if w := s.logical[wStart]; w != nil {
				w.data.mergeFrom(s.agg, sl.data)
			}
		}
		sl.state = Tombstone
		delete(s.physical, start)
	}

	// A window is ready once the watermark has passed its end, regardless
	// of how many of its composing slices actually received a record —
	// a slice with no records is never created, so it never contributes
	// data, but it must not block the window it belongs to from firing.
	var finishedWindows []int64
	for wStart, w := range s.logical {
		if w.end <= wm {
			finishedWindows = append(finishedWindows, wStart)
		}
	}
	sort.Slice(finishedWindows, func(i, j int) bool { return finishedWindows[i] < finishedWindows[j] })

	var results []Result
	for _, wStart := range finishedWindows {
		w := s.logical[wStart]
		keys := make([]string, 0, len(w.data))
		for k := range w.data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			results = append(results, Result{Start: w.start, End: w.end, Key: k, Value: w.data[k]})
		}
		w.state = Emitted
		delete(s.logical, wStart)
	}
	return results
}

// Watermark returns the store's last-applied watermark.
func (s *Store) Watermark() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWatermark
}

// OpenSlices reports the number of physical slices still awaiting
// finalization, exposed for tests asserting bounded memory growth.
func (s *Store) OpenSlices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.physical)
}
