// Package task implements the task queue and worker pool described in
// spec.md §4.2: a fixed pool of OS threads pulling (buffer, pipeline) tasks
// from a FIFO queue and running each pipeline's Execute synchronously.
package task

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/engineerrors"
	"github.com/nebulacore/streamengine/pkg/pipeline"
)

// Task is the unit of work dispatched to worker threads: a tuple buffer
// plus the pipeline node it must run through.
type Task struct {
	Buffer *buffer.TupleBuffer
	Node   *pipeline.Node
}

// Queue is the engine's FIFO task queue. It implements pipeline.Dispatcher
// so pipeline Context.Emit/Repeat calls land directly here.
//
// Task dispatch is not order-preserving across workers (spec.md §4.2);
// per-origin order is recovered downstream via each buffer's (origin, seq,
// chunk) metadata.
type Queue struct {
	tasks chan Task

	draining    atomic.Bool // true once Stop has begun; no new source tasks admitted
	forced      atomic.Bool
	inFlight    atomic.Int64
	enqueued    atomic.Int64
}

// NewQueue creates a queue with the given buffered capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{tasks: make(chan Task, capacity)}
}

// SubmitSource admits a new task originating from a source. During drain
// this is refused; in-flight tasks already admitted continue to run.
func (q *Queue) SubmitSource(buf *buffer.TupleBuffer, node *pipeline.Node) error {
	if q.draining.Load() {
		return engineerrors.New(engineerrors.CodeEndOfStream, "task", "queue draining, source task refused", nil)
	}
	return q.enqueue(Task{Buffer: buf, Node: node})
}

// Enqueue implements pipeline.Dispatcher: it admits a downstream task
// produced by ctx.Emit. Downstream tasks are always admitted even while
// draining, since in-flight tasks must run to completion (spec.md §4.2).
func (q *Queue) Enqueue(buf *buffer.TupleBuffer, next *pipeline.Node) error {
	return q.enqueue(Task{Buffer: buf, Node: next})
}

func (q *Queue) enqueue(t Task) error {
	q.inFlight.Add(1)
	q.enqueued.Add(1)
	select {
	case q.tasks <- t:
		return nil
	default:
		// Queue momentarily full: block until a slot frees, preserving
		// FIFO semantics rather than dropping or reordering.
		q.tasks <- t
		return nil
	}
}

// Repeat re-enqueues the same task against self after delay, used by
// backpressured sinks. One pending repeat is always allowed to loop
// through the queue so the sender is periodically retried (spec.md §4.7).
func (q *Queue) Repeat(buf *buffer.TupleBuffer, self *pipeline.Node, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(buf, self)
	}
	time.AfterFunc(delay, func() {
		_ = q.Enqueue(buf, self)
	})
	return nil
}

// next blocks until a task is available or the queue's channel is closed.
func (q *Queue) next() (Task, bool) {
	t, ok := <-q.tasks
	return t, ok
}

func (q *Queue) taskDone() {
	q.inFlight.Add(-1)
}

// InFlight reports the number of tasks currently admitted but not yet
// completed, used to detect quiescence during a graceful drain.
func (q *Queue) InFlight() int64 {
	return q.inFlight.Load()
}

// BeginDrain marks the queue as draining: no new source tasks are admitted,
// but Enqueue (downstream emission) keeps working so in-flight tasks can
// finish.
func (q *Queue) BeginDrain() {
	q.draining.Store(true)
}

// Draining reports whether the queue has begun draining.
func (q *Queue) Draining() bool {
	return q.draining.Load()
}

func (q *Queue) String() string {
	return fmt.Sprintf("task.Queue{inFlight=%d enqueued=%d draining=%v}", q.inFlight.Load(), q.enqueued.Load(), q.draining.Load())
}
