package source

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/enginelog"
	"github.com/nebulacore/streamengine/pkg/pipeline"
)

// Mode selects one of spec.md §4.3's two rate control disciplines.
type Mode int

const (
	IntervalMode Mode = iota
	IngestionRateMode
)

// Dispatcher is the subset of the task queue a Runtime needs to submit
// freshly produced source tasks, mirroring pipeline.Dispatcher's
// import-cycle-breaking role (see pkg/task.Queue.SubmitSource).
type Dispatcher interface {
	SubmitSource(buf *buffer.TupleBuffer, node *pipeline.Node) error
}

// Config configures a Runtime's rate control.
type Config struct {
	Mode              Mode
	GatheringInterval time.Duration // interval mode: minimum spacing between pulls
	IngestionRate     int           // ingestion-rate mode: buffer pulls per second, also the token bucket's capacity
}

// Runtime wraps a Source with the buffer manager pull loop, metadata
// stamping, rate control, and backpressure pause described in spec.md
// §4.3. Grounded on the teacher's CircuitPool lifecycle idiom
// (pkg/network/tor/circuit_pool.go): a long-lived resource manager with
// its own mutex-guarded pause/resume state, generalized from circuit
// health tracking to pull-loop backpressure.
type Runtime struct {
	src      Source
	parser   Parser
	pool     *buffer.Pool
	node     *pipeline.Node
	disp     Dispatcher
	originID uint64
	seq      atomic.Uint64
	cfg      Config
	log      *enginelog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	paused   bool
	lastPull time.Time

	tokens chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewRuntime builds a Runtime around src, reading framed messages with
// parser, allocating buffers from pool, and submitting filled tasks
// against node via disp.
func NewRuntime(src Source, parser Parser, pool *buffer.Pool, node *pipeline.Node, disp Dispatcher, originID uint64, cfg Config, log *enginelog.Logger) *Runtime {
	if log == nil {
		log = enginelog.New(nil)
	}
	r := &Runtime{
		src: src, parser: parser, pool: pool, node: node, disp: disp,
		originID: originID, cfg: cfg, log: log.WithComponent("source.runtime"),
		stop: make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	if cfg.Mode == IngestionRateMode && cfg.IngestionRate > 0 {
		r.tokens = make(chan struct{}, cfg.IngestionRate)
		r.wg.Add(1)
		go r.refillTokens()
	}
	return r
}

// refillTokens adds one token every 1/IngestionRate seconds, dropping it
// when the bucket is already at capacity; each PullOnce consumes one token.
func (r *Runtime) refillTokens() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Second / time.Duration(max(1, r.cfg.IngestionRate)))
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			select {
			case r.tokens <- struct{}{}:
			default:
			}
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Pause blocks the pull loop until Resume is called, used by a
// backpressured sink signaling upstream (spec.md §4.3, "A backpressure
// signal from a downstream sink pauses the pull loop").
func (r *Runtime) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
}

// Resume releases a paused pull loop.
func (r *Runtime) Resume() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
	r.cond.Broadcast()
}

func (r *Runtime) waitWhilePaused(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.paused {
		done := make(chan struct{})
		go func() {
			r.cond.Wait()
			close(done)
		}()
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			r.mu.Lock()
			return
		}
		r.mu.Lock()
	}
}

func (r *Runtime) gate(ctx context.Context) error {
	switch r.cfg.Mode {
	case IntervalMode:
		if r.cfg.GatheringInterval > 0 {
			r.mu.Lock()
			elapsed := time.Since(r.lastPull)
			wait := r.cfg.GatheringInterval - elapsed
			r.mu.Unlock()
			if wait > 0 {
				t := time.NewTimer(wait)
				defer t.Stop()
				select {
				case <-t.C:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	case IngestionRateMode:
		if r.tokens != nil {
			select {
			case <-r.tokens:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// PullOnce runs one iteration of the source runtime's pull loop: wait for
// rate control and backpressure, get a fresh buffer, fill it, stamp it,
// and submit it as a task. It returns the Source's "more data will come"
// signal.
func (r *Runtime) PullOnce(ctx context.Context) (more bool, err error) {
	if err := r.gate(ctx); err != nil {
		return false, err
	}
	r.waitWhilePaused(ctx)

	buf, err := r.pool.GetBufferBlocking(ctx)
	if err != nil {
		return false, err
	}

	more, err = r.src.FillBuffer(buf, r.parser)
	if err != nil {
		buf.Release()
		return false, err
	}

	r.mu.Lock()
	r.lastPull = time.Now()
	r.mu.Unlock()

	ingestTime := time.Now().UnixMilli()
	buf.Stamp(r.originID, r.seq.Add(1)-1, 0, true, ingestTime)

	if err := r.disp.SubmitSource(buf, r.node); err != nil {
		buf.Release()
		return false, err
	}
	return more, nil
}

// Run drives PullOnce in a loop until the context is cancelled or the
// source reports no more data.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.src.Open(); err != nil {
		return err
	}
	defer r.src.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		more, err := r.PullOnce(ctx)
		if err != nil {
			r.log.Error("source pull failed", map[string]interface{}{"error": err.Error()})
			return err
		}
		if !more {
			return nil
		}
	}
}

// Stop releases the runtime's background token-bucket goroutine, if any.
func (r *Runtime) Stop() {
	close(r.stop)
	r.wg.Wait()
}
