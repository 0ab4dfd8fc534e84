// Package buffer implements the engine's fixed-capacity tuple buffer pool:
// reference-counted memory segments recycled to their owning pool instead of
// freed, plus the unpooled oversize path.
package buffer

import (
	"sync/atomic"
)

// MemorySegment is the raw payload plus control block backing a TupleBuffer.
// A segment belongs to exactly one pool for its lifetime; it is either
// exclusively owned by one TupleBuffer handle or sits in exactly one free
// list.
type MemorySegment struct {
	data      []byte
	size      int
	alignment int

	refCount int64 // 0 = in free list, >0 = owned by a handle

	// recycle returns this segment to its owning pool's free list.
	recycle func(*MemorySegment)
}

// newSegment allocates a segment of size bytes. Go's runtime allocator
// already aligns slice backing arrays to at least the platform word size;
// alignment is recorded on the segment and validated by the pool that
// creates it (see NewPool) rather than enforced with raw
// pointer arithmetic, which would require unsafe and gain nothing under the
// Go allocator's existing guarantees.
func newSegment(size, alignment int) *MemorySegment {
	return &MemorySegment{
		data:      make([]byte, size),
		size:      size,
		alignment: alignment,
	}
}

// acquire transitions the segment's refcount from 0 to 1. It is the only
// legal way to take a segment out of a free list; any other precondition is
// a fatal invariant violation per spec.md §7.
func (s *MemorySegment) acquire() {
	if !atomic.CompareAndSwapInt64(&s.refCount, 0, 1) {
		panic("buffer: acquired a segment with non-zero refcount")
	}
}

func (s *MemorySegment) retain() {
	atomic.AddInt64(&s.refCount, 1)
}

// release drops one reference; when the count reaches zero the segment is
// recycled to its owning pool.
func (s *MemorySegment) release() {
	if atomic.AddInt64(&s.refCount, -1) == 0 {
		if s.recycle != nil {
			s.recycle(s)
		}
	}
}

func (s *MemorySegment) refs() int64 {
	return atomic.LoadInt64(&s.refCount)
}
