// Package pipeline defines the compiled-pipeline ABI the core dispatches
// tasks against: Setup/Execute/Terminate plus the per-pipeline Context and
// per-worker WorkerContext, modeled on spec.md §6's C-linkage ABI using Go
// interfaces instead of C symbols.
package pipeline

import (
	"context"
	"time"

	"github.com/nebulacore/streamengine/pkg/buffer"
)

// Handler is per-pipeline mutable state accessed by a stable index (spec.md
// §3, "Operator handler"). Concrete handlers (watermark trackers, slice
// stores, join interval state) implement whatever discipline their own
// package documents; Handler itself carries no behavior so the handler
// array can hold arbitrary operator state.
type Handler interface{}

// Pipeline is a compiled callable: a chain of operators sharing one linear
// execution path. Pipeline boundaries are introduced by blocking or
// stateful operators (windows, joins, network sinks) — those live as the
// next Node in the graph, not inside this Pipeline.
type Pipeline interface {
	// Setup is called once before the pipeline receives its first task.
	Setup(ctx *Context) error
	// Execute runs the pipeline's operator chain against one input buffer.
	// It may call ctx.Emit to produce zero or more output buffers, or
	// ctx.Repeat to re-enqueue the same task after a delay (used by
	// backpressured sinks).
	Execute(ctx *Context, wctx *WorkerContext, buf *buffer.TupleBuffer) error
	// Terminate is called once after the pipeline's last task, in
	// topological order source→sink during a graceful stop.
	Terminate(ctx *Context) error
}

// Node pairs a Pipeline with the Context it was set up with. The task queue
// schedules Nodes, not bare Pipelines, because Execute's ABI requires the
// same Context the pipeline was set up against.
type Node struct {
	Name     string
	Pipeline Pipeline
	Ctx      *Context
}

// Dispatcher is the subset of the task queue a Context needs to implement
// ctx.Emit/ctx.Repeat without pipeline importing the task package (which
// itself depends on Pipeline) — see pkg/task.Queue.
type Dispatcher interface {
	Enqueue(buf *buffer.TupleBuffer, next *Node) error
	Repeat(buf *buffer.TupleBuffer, self *Node, delay time.Duration) error
}

// Context holds one pipeline's handler array, its successor nodes, and the
// dispatcher used to emit or repeat tasks. ctx holds handlers by index only
// (never a back-reference into the handler's own state) to break the cyclic
// reference a handler pointing at its pipeline context would otherwise
// create (DESIGN NOTES, "Cyclic handler references").
type Context struct {
	handlers   *HandlerStore
	dispatcher Dispatcher
	successors []*Node
	pool       *buffer.Pool
}

// NewContext constructs a pipeline context. successors may be empty for a
// terminal (sink) pipeline.
func NewContext(handlers *HandlerStore, dispatcher Dispatcher, pool *buffer.Pool, successors ...*Node) *Context {
	return &Context{handlers: handlers, dispatcher: dispatcher, pool: pool, successors: successors}
}

// Handler returns the handler registered at index, the Go equivalent of the
// ABI's get_handler(ctx, index).
func (c *Context) Handler(index int) Handler {
	return c.handlers.Get(index)
}

// GetBuffer allocates an output buffer from the pipeline's pool, the Go
// equivalent of the ABI's get_buffer(ctx). It blocks until one is available
// or ctx is cancelled.
func (c *Context) GetBuffer(ctx context.Context) (*buffer.TupleBuffer, error) {
	return c.pool.GetBufferBlocking(ctx)
}

// Successors returns the pipeline's downstream nodes.
func (c *Context) Successors() []*Node {
	return c.successors
}

// Emit dispatches buf to every successor node. Each successor gets its own
// reference (Retain); the caller's own reference is released once fan-out
// is complete — pipelines that call Emit must not use buf afterward.
func (c *Context) Emit(buf *buffer.TupleBuffer) error {
	for _, s := range c.successors {
		buf.Retain()
		if err := c.dispatcher.Enqueue(buf, s); err != nil {
			buf.Release()
			return err
		}
	}
	buf.Release()
	return nil
}

// EmitTo dispatches buf to one specific successor, used by operators (joins,
// windows) that address a particular downstream node rather than fan-out to
// all of them.
func (c *Context) EmitTo(buf *buffer.TupleBuffer, next *Node) error {
	buf.Retain()
	if err := c.dispatcher.Enqueue(buf, next); err != nil {
		buf.Release()
		return err
	}
	return nil
}

// Repeat re-enqueues the same task against self after delay — used by
// backpressured sinks (spec.md §4.2).
func (c *Context) Repeat(buf *buffer.TupleBuffer, self *Node, delay time.Duration) error {
	buf.Retain()
	return c.dispatcher.Repeat(buf, self, delay)
}
