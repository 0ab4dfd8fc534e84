// Package source implements the source runtime described in spec.md §4.3:
// a pull loop that fills tuple buffers from an external feed at a
// rate-controlled pace, stamps them, and hands them to the task queue.
package source

import "github.com/nebulacore/streamengine/pkg/buffer"

// Source is the engine's source contract: open a feed, close it, and fill
// one destination buffer at a time. FillBuffer's bool return indicates
// "more data will come" — false once the call is reporting true end of
// stream. A pass that fills the buffer with at least one tuple but hasn't
// hit end of stream still returns true: the implementation is responsible
// for retrying internally until it has something to hand back or the feed
// is exhausted (spec.md §4.3).
type Source interface {
	Open() error
	Close() error
	FillBuffer(dst *buffer.TupleBuffer, parser Parser) (more bool, err error)
}

// Parser turns one framed message's raw bytes into a fixed-width tuple
// written directly into a destination region, the same encode-in-place
// contract pkg/window and pkg/join's output layouts use.
type Parser interface {
	TupleSize() int
	Parse(msg []byte, dst []byte) error
}
