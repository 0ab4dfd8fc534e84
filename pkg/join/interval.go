package join

import (
	"sort"
	"sync"
)

// State is an interval's position in the lifecycle spec.md §4.6 defines:
// LEFT_FILLED while either build side is still accumulating tuples,
// READY_PROBE once the watermark has passed its end but before a probe
// descriptor has been dispatched, EMITTED_TO_PROBE after dispatch, and
// TOMBSTONE for an interval found to have an empty build side. The
// termination-only OnceSeenDuringTermination state is an extra rung used
// by the two-pass graceful shutdown (spec.md §4.6, "Termination").
type State int

const (
	LeftFilled State = iota
	OnceSeenDuringTermination
	ReadyProbe
	EmittedToProbe
	Tombstone
)

func (s State) String() string {
	switch s {
	case LeftFilled:
		return "LEFT_FILLED"
	case OnceSeenDuringTermination:
		return "ONCE_SEEN_DURING_TERMINATION"
	case ReadyProbe:
		return "READY_PROBE"
	case EmittedToProbe:
		return "EMITTED_TO_PROBE"
	case Tombstone:
		return "TOMBSTONE"
	default:
		return "UNKNOWN"
	}
}

// Side indexes the two build-side paged vectors an Interval holds.
type Side int

const (
	LeftSide  Side = 0
	RightSide Side = 1
)

// Interval is the join's analogue of a window slice: a half-open time
// range holding both build sides' accumulated raw tuples (spec.md §4.6,
// "Interval state").
type Interval struct {
	mu    sync.Mutex
	ID    uint64
	Start int64
	End   int64
	State State
	sides [2]*PagedVector

	// hashIndex and hashOnce/hashIndexLF cache a hash-variant strategy's
	// build-side index across the interval's single probe call; see
	// strategy.go. Cached on the interval (not the Strategy instance,
	// which is shared across every interval an operator ever probes) so
	// two intervals never see each other's index.
	hashIndex   map[string][]Tuple
	hashOnce    sync.Once
	hashIndexLF map[string][]Tuple
}

// Side returns the requested build side's paged vector.
func (iv *Interval) Side(s Side) *PagedVector { return iv.sides[s] }

// Store is the join handler's interval table: every active, in-flight
// interval for one join operator, keyed by start time. Grounded on the
// teacher's map-of-trackers idiom generalized from origin watermarks
// (pkg/storage/health.go) to join intervals.
type Store struct {
	mu        sync.Mutex
	size      int64 // interval length in the same time unit as tuple timestamps
	pageSize  int
	nextID    uint64
	intervals map[int64]*Interval  // keyed by start
	byID      map[uint64]int64     // interval id -> start, for Resolve
}

// NewStore creates an interval store whose intervals span size time units,
// with build-side paged vectors using pageSize-tuple pages.
func NewStore(size int64, pageSize int) *Store {
	return &Store{
		size:      size,
		pageSize:  pageSize,
		intervals: make(map[int64]*Interval),
		byID:      make(map[uint64]int64),
	}
}

func (s *Store) floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// Build locates or creates the interval covering ts and appends t to its
// side-s paged vector. A tuple arriving after its interval has left
// LEFT_FILLED (i.e. the watermark has already passed the interval's end)
// is silently dropped, matching the window store's late-record policy.
func (s *Store) Build(side Side, ts int64, t Tuple) {
	s.mu.Lock()
	idx := s.floorDiv(ts, s.size)
	start := idx * s.size
	iv, ok := s.intervals[start]
	if !ok {
		iv = &Interval{
			ID:    s.nextID,
			Start: start,
			End:   start + s.size,
			State: LeftFilled,
		}
		iv.sides[LeftSide] = NewPagedVector(s.pageSize)
		iv.sides[RightSide] = NewPagedVector(s.pageSize)
		s.nextID++
		s.intervals[start] = iv
		s.byID[iv.ID] = start
	}
	s.mu.Unlock()

	iv.mu.Lock()
	if iv.State == LeftFilled {
		iv.sides[side].Append(t)
	}
	iv.mu.Unlock()
}

// AdvanceWatermark promotes every LEFT_FILLED interval whose end has
// passed wm to READY_PROBE, tombstones any with an empty build side, and
// returns the rest (now EMITTED_TO_PROBE) in ascending start order for the
// caller to dispatch probe descriptors for (spec.md §4.6, "Probe
// emission").
func (s *Store) AdvanceWatermark(wm int64) []*Interval {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*Interval
	for _, iv := range s.intervals {
		iv.mu.Lock()
		if iv.End <= wm && iv.State == LeftFilled {
			iv.State = ReadyProbe
			if iv.sides[LeftSide].IsEmpty() || iv.sides[RightSide].IsEmpty() {
				iv.State = Tombstone
			} else {
				iv.State = EmittedToProbe
				ready = append(ready, iv)
			}
		}
		iv.mu.Unlock()
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Start < ready[j].Start })
	return ready
}

// BeginTerminationPass is termination pass one: every interval still
// LEFT_FILLED moves to ONCE_SEEN_DURING_TERMINATION, giving any build task
// already in flight one more round to land before the final probe.
func (s *Store) BeginTerminationPass() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, iv := range s.intervals {
		iv.mu.Lock()
		if iv.State == LeftFilled {
			iv.State = OnceSeenDuringTermination
		}
		iv.mu.Unlock()
	}
}

// FinishTerminationPass is termination pass two: every interval in
// ONCE_SEEN_DURING_TERMINATION is tombstoned (if a build side is empty) or
// moved to EMITTED_TO_PROBE and returned for a final, unconditional probe
// dispatch regardless of watermark position.
func (s *Store) FinishTerminationPass() []*Interval {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*Interval
	for _, iv := range s.intervals {
		iv.mu.Lock()
		if iv.State == OnceSeenDuringTermination {
			if iv.sides[LeftSide].IsEmpty() || iv.sides[RightSide].IsEmpty() {
				iv.State = Tombstone
			} else {
				iv.State = EmittedToProbe
				ready = append(ready, iv)
			}
		}
		iv.mu.Unlock()
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Start < ready[j].Start })
	return ready
}

// Resolve looks an interval up by id, for the probe pipeline turning a
// dispatched descriptor back into the interval it names.
func (s *Store) Resolve(id uint64) (*Interval, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	iv, ok := s.intervals[start]
	return iv, ok
}

// Release removes an interval from the store once its probe scan has
// completed, freeing its paged vectors for garbage collection.
func (s *Store) Release(iv *Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intervals, iv.Start)
	delete(s.byID, iv.ID)
}

// Len reports how many intervals the store currently tracks, for tests
// asserting bounded memory growth.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.intervals)
}
