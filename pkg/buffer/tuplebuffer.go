package buffer

import "sync"

// TupleBuffer is a handle to a fixed-size byte region carrying a payload
// plus ordering metadata. Lifetime is governed by the underlying segment's
// reference-counted control block; when the last handle is released the
// segment is recycled to its owning pool, not freed.
//
// A TupleBuffer is immutable w.r.t. ordering metadata once it leaves its
// producer (spec.md §3): Stamp must only be called by the component that
// first fills the buffer.
type TupleBuffer struct {
	seg *MemorySegment

	mu sync.RWMutex

	tupleCount int
	sequence   uint64
	chunk      uint64
	lastChunk  bool
	watermark  int64
	origin     uint64

	children []*TupleBuffer
	stamped  bool
}

func newTupleBuffer(seg *MemorySegment) *TupleBuffer {
	return &TupleBuffer{seg: seg}
}

// Data exposes the buffer's payload region, writable only by the producer
// before Stamp is called.
func (b *TupleBuffer) Data() []byte {
	return b.seg.data
}

// Capacity returns the size in bytes of the underlying segment.
func (b *TupleBuffer) Capacity() int {
	return b.seg.size
}

// TupleCount returns how many tuples are currently laid out in the buffer.
func (b *TupleBuffer) TupleCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tupleCount
}

// SetTupleCount updates the tuple count; only legal before the buffer is
// stamped and handed off.
func (b *TupleBuffer) SetTupleCount(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tupleCount = n
}

// Stamp sets the buffer's ordering metadata: origin, sequence number, chunk
// number, last-chunk flag, and watermark. Per spec.md §3 this is the one
// mutation allowed to the producer; once a buffer leaves its producer no
// component may call Stamp again.
func (b *TupleBuffer) Stamp(origin, sequence, chunk uint64, lastChunk bool, watermark int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stamped {
		panic("buffer: tuple buffer re-stamped after leaving its producer")
	}
	b.origin = origin
	b.sequence = sequence
	b.chunk = chunk
	b.lastChunk = lastChunk
	b.watermark = watermark
	b.stamped = true
}

func (b *TupleBuffer) Origin() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.origin
}

func (b *TupleBuffer) Sequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

func (b *TupleBuffer) Chunk() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chunk
}

func (b *TupleBuffer) LastChunk() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastChunk
}

func (b *TupleBuffer) Watermark() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.watermark
}

// AddChild attaches a variable-sized child buffer (e.g. a string payload).
// Children are themselves TupleBuffers with independent refcounts; they are
// released when the parent is (see Release).
func (b *TupleBuffer) AddChild(child *TupleBuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.children = append(b.children, child)
}

func (b *TupleBuffer) Children() []*TupleBuffer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*TupleBuffer(nil), b.children...)
}

// Retain increments the buffer's refcount, e.g. when a receiver hands the
// same buffer to multiple downstream consumers.
func (b *TupleBuffer) Retain() {
	b.seg.retain()
	for _, c := range b.children {
		c.Retain()
	}
}

// Release drops one reference to the buffer and to each of its children.
// When the last handle to a segment is released it is recycled to its
// owning pool.
func (b *TupleBuffer) Release() {
	for _, c := range b.children {
		c.Release()
	}
	b.seg.release()
}

// RefCount exposes the underlying segment's live reference count, used by
// tests asserting buffer-conservation invariants.
func (b *TupleBuffer) RefCount() int64 {
	return b.seg.refs()
}

// Identity returns the (origin, sequence, chunk) triple that uniquely
// identifies this buffer within its stream (spec.md §3, "Sequence
// identity").
func (b *TupleBuffer) Identity() (origin, sequence, chunk uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.origin, b.sequence, b.chunk
}
