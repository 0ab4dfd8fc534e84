package buffer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nebulacore/streamengine/pkg/engineerrors"
	"github.com/nebulacore/streamengine/pkg/enginelog"
)

// Pool is a fixed-capacity allocator of uniform-size tuple buffers. The
// global pool owns a bounded array of segments; available ones live in a
// lock-free MPMC free list realized as a buffered channel, matching the
// teacher's work-queue idiom (pkg/core/blocks/worker_pool.go's
// `workQueue chan WorkItem`) generalized to segment recycling.
//
// Sub-pools (fixed and local) carve a reserved slice of segments out of the
// global pool at creation time and recycle exclusively within themselves, so
// a worker's hot path never contends on the global free list.
type Pool struct {
	name      string
	size      int // uniform segment size in bytes
	alignment int
	capacity  int

	free chan *MemorySegment
	all  []*MemorySegment // every segment ever carved from this pool, for shutdown accounting

	unpooled *unpooledAllocator

	mu           sync.Mutex
	subPools     []*Pool
	leakSeen     *bloom.BloomFilter
	leakSeenLock sync.Mutex
	log          *enginelog.Logger
}

// Config configures a new global Pool.
type Config struct {
	Name          string
	SegmentSize   int
	Alignment     int // power of two, <= page size
	Capacity      int // number of segments in the global pool
	StandbyLimit  int // K standby unpooled segments kept before freeing (see GetUnpooled)
	Log           *enginelog.Logger
}

const defaultPageSize = 4096

// NewPool creates the process-wide global pool described in spec.md §4.1.
// The buffer manager is taken as an injected object rather than a package
// singleton so tests can use independent pools (DESIGN NOTES, "Global
// mutable state").
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("buffer: pool capacity must be positive")
	}
	if cfg.SegmentSize <= 0 {
		return nil, fmt.Errorf("buffer: segment size must be positive")
	}
	if cfg.Alignment <= 0 {
		cfg.Alignment = 8
	}
	if !isPowerOfTwo(cfg.Alignment) || cfg.Alignment > defaultPageSize {
		return nil, fmt.Errorf("buffer: alignment must be a power of two <= page size, got %d", cfg.Alignment)
	}

	log := cfg.Log
	if log == nil {
		log = enginelog.New(nil)
	}
	p := &Pool{
		name:      cfg.Name,
		size:      cfg.SegmentSize,
		alignment: cfg.Alignment,
		capacity:  cfg.Capacity,
		free:      make(chan *MemorySegment, cfg.Capacity),
		all:       make([]*MemorySegment, 0, cfg.Capacity),
		leakSeen:  bloom.NewWithEstimates(1024, 0.01),
		log:       log.WithComponent("buffer"),
	}
	p.unpooled = newUnpooledAllocator(cfg.StandbyLimit)

	for i := 0; i < cfg.Capacity; i++ {
		seg := newSegment(cfg.SegmentSize, cfg.Alignment)
		seg.recycle = p.recycle
		p.all = append(p.all, seg)
		p.free <- seg
	}
	return p, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (p *Pool) recycle(seg *MemorySegment) {
	select {
	case p.free <- seg:
	default:
		// Capacity is fixed at creation time, so this can only happen if a
		// segment not owned by this pool was recycled into it — a fatal
		// invariant violation.
		panic("buffer: pool free list overflow, segment escaped its owning pool")
	}
}

// GetBufferBlocking waits until a buffer is available.
func (p *Pool) GetBufferBlocking(ctx context.Context) (*TupleBuffer, error) {
	select {
	case seg := <-p.free:
		seg.acquire()
		return newTupleBuffer(seg), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetBufferNowait returns nil, false if the pool is currently empty.
func (p *Pool) GetBufferNowait() (*TupleBuffer, bool) {
	select {
	case seg := <-p.free:
		seg.acquire()
		return newTupleBuffer(seg), true
	default:
		return nil, false
	}
}

// GetBufferTimeout waits up to d for a buffer to become available.
func (p *Pool) GetBufferTimeout(d time.Duration) (*TupleBuffer, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case seg := <-p.free:
		seg.acquire()
		return newTupleBuffer(seg), true
	case <-timer.C:
		return nil, false
	}
}

// GetUnpooled serves the oversize path: it reuses a standby segment of
// exactly size if one exists in the unpooled free list, else allocates.
func (p *Pool) GetUnpooled(size int) *TupleBuffer {
	seg := p.unpooled.get(size)
	seg.recycle = p.unpooled.recycle
	seg.acquire()
	return newTupleBuffer(seg)
}

// CreateLocalPool carves `reserved` segments out of the global pool; the
// sub-pool returns segments to itself on recycle for cheap intra-worker
// reuse. Local pools are intended for a single worker's scratch buffers.
func (p *Pool) CreateLocalPool(reserved int) (*Pool, error) {
	return p.createSubPool(reserved)
}

// CreateFixedPool is CreateLocalPool's counterpart for state that must
// outlive a single task (e.g. an operator handler's working buffers); the
// two are structurally identical sub-pools, distinguished by the caller's
// retention discipline.
func (p *Pool) CreateFixedPool(reserved int) (*Pool, error) {
	return p.createSubPool(reserved)
}

func (p *Pool) createSubPool(reserved int) (*Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if reserved <= 0 || reserved > len(p.free) {
		return nil, fmt.Errorf("buffer: cannot reserve %d segments, %d available", reserved, len(p.free))
	}

	sub := &Pool{
		name:      p.name + ".sub",
		size:      p.size,
		alignment: p.alignment,
		capacity:  reserved,
		free:      make(chan *MemorySegment, reserved),
		all:       make([]*MemorySegment, 0, reserved),
		leakSeen:  bloom.NewWithEstimates(256, 0.01),
		log:       p.log,
	}
	sub.unpooled = newUnpooledAllocator(0)

	for i := 0; i < reserved; i++ {
		seg := <-p.free
		seg.recycle = sub.recycle
		sub.all = append(sub.all, seg)
		sub.free <- seg
	}

	p.subPools = append(p.subPools, sub)
	return sub, nil
}

// Shutdown tears down the pool. If any segment still has refcount > 0,
// teardown fails loudly — this is the only way to catch leaks (spec.md
// §4.1 "Failure").
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	subs := append([]*Pool(nil), p.subPools...)
	p.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Shutdown(); err != nil {
			return err
		}
	}

	var leaked []*MemorySegment
	for _, seg := range p.all {
		if seg.refs() > 0 {
			leaked = append(leaked, seg)
		}
	}
	if len(leaked) > 0 {
		name := fmt.Sprintf("segment#%p", leaked[0])
		p.logLeakOnce(name, len(leaked))
		return engineerrors.New(engineerrors.CodeFatalInvariant, "buffer",
			fmt.Sprintf("shutdown failed: %d outstanding segment(s) leaked, first is %s", len(leaked), name), nil)
	}
	return nil
}

// logLeakOnce de-duplicates repeated leak diagnostics across many Shutdown
// retries using a probabilistic membership test: the diagnostic path can be
// invoked by operators repeatedly polling for drain completion, and a Bloom
// filter keeps that noisy path from re-logging the same segment identity.
func (p *Pool) logLeakOnce(id string, count int) {
	p.leakSeenLock.Lock()
	defer p.leakSeenLock.Unlock()
	if !p.leakSeen.TestString(id) {
		p.leakSeen.AddString(id)
		p.log.Error("buffer pool shutdown found leaked segments", map[string]interface{}{
			"pool": p.name, "first_leaked": id, "leaked_count": count,
		})
	}
}

// Available reports the number of segments currently sitting free, used by
// tests asserting the buffer-conservation invariant.
func (p *Pool) Available() int {
	return len(p.free)
}

// Capacity returns the pool's fixed segment count.
func (p *Pool) Capacity() int {
	return p.capacity
}

// unpooledAllocator serves oversize requests from a size-ordered standby
// free list capped at K entries before segments are freed outright (spec.md
// §3 "Pool").
type unpooledAllocator struct {
	mu       sync.Mutex
	standby  []*MemorySegment // sorted by size ascending
	limit    int
}

func newUnpooledAllocator(limit int) *unpooledAllocator {
	if limit < 0 {
		limit = 0
	}
	return &unpooledAllocator{limit: limit}
}

func (u *unpooledAllocator) get(size int) *MemorySegment {
	u.mu.Lock()
	idx := sort.Search(len(u.standby), func(i int) bool { return u.standby[i].size >= size })
	if idx < len(u.standby) && u.standby[idx].size == size {
		seg := u.standby[idx]
		u.standby = append(u.standby[:idx], u.standby[idx+1:]...)
		u.mu.Unlock()
		return seg
	}
	u.mu.Unlock()
	return newSegment(size, 8)
}

func (u *unpooledAllocator) recycle(seg *MemorySegment) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.standby) >= u.limit {
		// Over the standby cap: free outright, i.e. simply drop the
		// reference and let the GC reclaim it.
		return
	}
	idx := sort.Search(len(u.standby), func(i int) bool { return u.standby[i].size >= seg.size })
	u.standby = append(u.standby, nil)
	copy(u.standby[idx+1:], u.standby[idx:])
	u.standby[idx] = seg
}
