package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/enginelog"
	"github.com/nebulacore/streamengine/pkg/pipeline"
)

// WorkerPool is the fixed pool of OS threads executing tasks pulled from a
// Queue. Pipelines are reentrant and stateless outside their handlers;
// multiple workers may execute the same pipeline concurrently against
// different buffers (spec.md §5).
type WorkerPool struct {
	queue *Queue
	count int
	pool  *buffer.Pool
	log   *enginelog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopped atomic.Bool
}

// NewWorkerPool creates count workers reading from queue, each carving
// reservedPerWorker segments out of pool as a local sub-pool (pass 0 to
// skip this and have workers use the global pool directly).
func NewWorkerPool(queue *Queue, count int, pool *buffer.Pool, reservedPerWorker int, log *enginelog.Logger) (*WorkerPool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("task: worker count must be positive")
	}
	if log == nil {
		log = enginelog.New(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	wp := &WorkerPool{
		queue:  queue,
		count:  count,
		pool:   pool,
		log:    log.WithComponent("task.worker"),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < count; i++ {
		var local *buffer.Pool
		if pool != nil && reservedPerWorker > 0 {
			sub, err := pool.CreateLocalPool(reservedPerWorker)
			if err != nil {
				cancel()
				return nil, fmt.Errorf("task: failed to reserve worker sub-pool: %w", err)
			}
			local = sub
		}
		wp.wg.Add(1)
		go wp.run(i, local)
	}
	return wp, nil
}

func (wp *WorkerPool) run(id int, local *buffer.Pool) {
	defer wp.wg.Done()
	wctx := pipeline.NewWorkerContext(id, local)

	for {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		t, ok := wp.nextTask()
		if !ok {
			return
		}
		wp.execute(t, wctx)
	}
}

// nextTask blocks on the queue but also observes forced cancellation, the
// task queue's only other suspension point besides get_buffer_blocking and
// network send (spec.md §5).
func (wp *WorkerPool) nextTask() (Task, bool) {
	type result struct {
		t  Task
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		t, ok := wp.queue.next()
		done <- result{t, ok}
	}()

	select {
	case r := <-done:
		return r.t, r.ok
	case <-wp.ctx.Done():
		return Task{}, false
	}
}

func (wp *WorkerPool) execute(t Task, wctx *pipeline.WorkerContext) {
	defer wp.queue.taskDone()
	defer t.Buffer.Release()

	if err := t.Node.Pipeline.Execute(t.Node.Ctx, wctx, t.Buffer); err != nil {
		wp.log.Error("pipeline execute failed", map[string]interface{}{
			"pipeline": t.Node.Name,
			"error":    err.Error(),
		})
	}
}

// StopGraceful transitions the queue to draining, waits for in-flight tasks
// to finish, then calls Terminate on each node in the order given (the
// caller passes nodes in topological source→sink order per spec.md §4.2).
// Calling StopGraceful a second time is a no-op (spec.md §8, "idempotent
// stop").
func (wp *WorkerPool) StopGraceful(nodes []*pipeline.Node) error {
	if !wp.stopped.CompareAndSwap(false, true) {
		return nil
	}

	wp.queue.BeginDrain()
	for wp.queue.InFlight() > 0 {
		time.Sleep(time.Millisecond)
	}

	for _, n := range nodes {
		if err := n.Pipeline.Terminate(n.Ctx); err != nil {
			wp.log.Error("pipeline terminate failed", map[string]interface{}{"pipeline": n.Name, "error": err.Error()})
		}
	}

	wp.cancel()
	wp.wg.Wait()
	return nil
}

// StopForced signals cancellation immediately and returns without waiting
// for in-flight tasks; pipelines observe the cancellation at their next
// suspension point. Idempotent like StopGraceful.
func (wp *WorkerPool) StopForced() {
	if !wp.stopped.CompareAndSwap(false, true) {
		return
	}
	wp.queue.BeginDrain()
	wp.cancel()
}

// Done returns a channel closed once every worker goroutine has exited,
// useful for tests awaiting shutdown after StopForced.
func (wp *WorkerPool) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()
	return done
}
