// Package watermark merges per-origin watermarks into a monotonically
// advancing global watermark used to trigger time-based operators
// (spec.md §4.4). Grounded on the teacher's mutex-guarded
// map-of-trackers idiom (pkg/storage/health.go's
// `healthHistory map[string][]*HealthStatus`), generalized here to
// `map[originID]*seqqueue.Queue[int64]`.
package watermark

import (
	"sync"

	"github.com/nebulacore/streamengine/pkg/seqqueue"
)

// Processor tracks, for every origin id given to New, added with
// RegisterOrigin, or first seen by Update, each origin's own
// monotonic sequence queue of (seq -> timestamp) pairs, and exposes the
// minimum watermark across all origins. There is no background thread:
// Update's return value is the only way a caller learns the new global
// watermark (spec.md §4.4).
type Processor struct {
	mu      sync.Mutex
	origins map[uint64]*seqqueue.Queue[int64]
	global  int64
}

// New constructs a Processor for the given origin ids. An origin that has
// not yet produced contributes the sentinel 0 until its first buffer is
// processed (spec.md §4.4, "Invariants").
func New(originIDs []uint64) *Processor {
	p := &Processor{origins: make(map[uint64]*seqqueue.Queue[int64], len(originIDs))}
	for _, id := range originIDs {
		p.origins[id] = seqqueue.New[int64](0)
	}
	return p
}

// RegisterOrigin adds an origin id at runtime, e.g. when a network channel
// announces after the processor was constructed.
func (p *Processor) RegisterOrigin(originID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.origins[originID]; !ok {
		p.origins[originID] = seqqueue.New[int64](0)
	}
}

// Update folds (seq -> ts) into originID's sequence queue and returns the
// new global watermark: the minimum across every registered origin's
// contiguous-seq head. Output is monotonic non-decreasing across calls
// (spec.md §8).
func (p *Processor) Update(ts int64, seq, originID uint64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, ok := p.origins[originID]
	if !ok {
		tracker = seqqueue.New[int64](0)
		p.origins[originID] = tracker
	}
	tracker.Insert(seq, ts)

	min := int64(-1)
	for _, t := range p.origins {
		head, _, has := t.Head()
		v := int64(0)
		if has {
			v = head
		}
		if min == -1 || v < min {
			min = v
		}
	}
	if min == -1 {
		min = 0
	}
	if min > p.global {
		p.global = min
	}
	return p.global
}

// Global returns the most recently computed global watermark without
// ingesting a new observation.
func (p *Processor) Global() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.global
}

// OriginWatermark returns the given origin's own contiguous-seq watermark,
// or the sentinel 0 if the origin has not produced yet or is unregistered.
func (p *Processor) OriginWatermark(originID uint64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.origins[originID]
	if !ok {
		return 0
	}
	head, _, has := t.Head()
	if !has {
		return 0
	}
	return head
}
