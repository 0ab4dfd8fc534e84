// Package window implements the slice store and aggregation trigger
// described in spec.md §4.5: tumbling and sliding windows built as unions
// of GCD-sized physical slices, triggered by watermark advancement.
//
// Grounded on the teacher's pkg/storage/cache/memory.go (ordered
// container + map combination) and pkg/storage/cache/eviction.go's
// threshold-triggered sweep-and-emit loop shape, generalized here from
// cache-eviction-on-threshold to slice-emission-on-watermark.
package window

// LifecycleState is a slice or logical window's position in its lifecycle
// (spec.md §3, "Slice").
type LifecycleState int

const (
	Open LifecycleState = iota
	LeftFilled
	Emitted
	Tombstone
)

// Record is one input event fed into the slice store: a group key (empty
// string for unkeyed/global aggregation), an event-time timestamp in
// milliseconds, and the numeric value the Aggregator folds in.
type Record struct {
	Key       string
	Timestamp int64
	Value     float64
}

// Result is one finalized window's output: {start, end, key, value} per
// spec.md §4.5's trigger action.
type Result struct {
	Start int64
	End   int64
	Key   string
	Value float64
}

// Aggregator defines how records combine into a partial aggregate and how
// two partial aggregates (from different physical slices feeding the same
// logical window) merge into one.
type Aggregator interface {
	Zero() float64
	Combine(acc float64, rec Record) float64
	Merge(a, b float64) float64
}

// CountAggregator implements COUNT(*): every record contributes 1
// regardless of its value.
type CountAggregator struct{}

func (CountAggregator) Zero() float64                         { return 0 }
func (CountAggregator) Combine(acc float64, _ Record) float64  { return acc + 1 }
func (CountAggregator) Merge(a, b float64) float64             { return a + b }

// SumAggregator implements SUM(value).
type SumAggregator struct{}

func (SumAggregator) Zero() float64                           { return 0 }
func (SumAggregator) Combine(acc float64, rec Record) float64 { return acc + rec.Value }
func (SumAggregator) Merge(a, b float64) float64              { return a + b }

// cells holds one slice's (or one logical window's) per-key partial
// aggregates; an empty-string key represents the unkeyed/global case.
type cells map[string]float64

func (c cells) combine(agg Aggregator, rec Record) {
	c[rec.Key] = agg.Combine(c.getOrZero(agg, rec.Key), rec)
}

func (c cells) getOrZero(agg Aggregator, key string) float64 {
	if v, ok := c[key]; ok {
		return v
	}
	return agg.Zero()
}

func (c cells) mergeFrom(agg Aggregator, other cells) {
	for k, v := range other {
		c[k] = agg.Merge(c.getOrZero(agg, k), v)
	}
}

// physicalSlice is a half-open time interval [start, end) sized by the GCD
// of the configured window size and slide, holding one cells table of
// partial aggregates (spec.md §3, "Slice").
type physicalSlice struct {
	start, end int64
	state      LifecycleState
	data       cells
	windows    []int64 // logical window start times this slice contributes to
}

// logicalWindow is one user-visible window instance, the union of one or
// more consecutive physical slices. Readiness is decided by the watermark
// passing end, not by counting composing slices: a slice that never
// receives a record is never created, so a count that only decrements on
// slice finalization would never reach zero (spec.md §4.5, "window
// completeness").
type logicalWindow struct {
	start, end int64
	state      LifecycleState
	data       cells
}
