package pipeline

import "github.com/nebulacore/streamengine/pkg/buffer"

// WorkerContext holds per-thread scratch state: the worker's identity, its
// buffer sub-pool (carved from the global pool via Pool.CreateLocalPool so
// its hot path never contends on the global free list), and a scratch map
// operators may use for per-invocation temporaries.
type WorkerContext struct {
	ID        int
	LocalPool *buffer.Pool
	Scratch   map[string]interface{}
}

// NewWorkerContext constructs a WorkerContext. localPool may be nil if the
// worker has no reserved sub-pool (it then falls back to the global pool
// reachable via the pipeline Context).
func NewWorkerContext(id int, localPool *buffer.Pool) *WorkerContext {
	return &WorkerContext{ID: id, LocalPool: localPool, Scratch: make(map[string]interface{})}
}
