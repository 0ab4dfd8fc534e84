package join

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/pipeline"
)

// OutputLayout encodes one matched (left, right) tuple pair as a
// fixed-width output tuple.
type OutputLayout interface {
	TupleSize() int
	Encode(dst []byte, left, right Tuple)
}

// pair is one matched tuple pair awaiting output encoding.
type pair struct{ left, right Tuple }

// ProbePipeline is the join's probe stage: it reads a dispatched
// descriptor, resolves the named interval, runs the compiled strategy's
// scan, and packs every matched pair into output buffers (spec.md §4.6,
// "Probe emission": "the probe pipeline then reads the descriptor,
// resolves the interval, and performs the chosen strategy's scan").
type ProbePipeline struct {
	store    *Store
	strategy Strategy
	keyOf    func(Tuple) string
	match    func(left, right Tuple) bool
	layout   OutputLayout
	originID uint64
	seq      atomic.Uint64
}

// NewProbePipeline builds the probe stage for one join operator.
func NewProbePipeline(store *Store, strategy Strategy, keyOf func(Tuple) string, match func(left, right Tuple) bool, layout OutputLayout, originID uint64) *ProbePipeline {
	return &ProbePipeline{store: store, strategy: strategy, keyOf: keyOf, match: match, layout: layout, originID: originID}
}

func (pp *ProbePipeline) Setup(ctx *pipeline.Context) error     { return nil }
func (pp *ProbePipeline) Terminate(ctx *pipeline.Context) error { return nil }

func (pp *ProbePipeline) Execute(ctx *pipeline.Context, wctx *pipeline.WorkerContext, buf *buffer.TupleBuffer) error {
	id := decodeDescriptor(buf.Data())
	iv, ok := pp.store.Resolve(id)
	if !ok {
		return nil
	}
	defer pp.store.Release(iv)

	var matched []pair
	pp.strategy.Probe(iv, pp.keyOf, pp.match, func(left, right Tuple) {
		matched = append(matched, pair{left, right})
	})
	if len(matched) == 0 {
		return nil
	}

	tupleSize := pp.layout.TupleSize()
	idx := 0
	for idx < len(matched) {
		out, err := ctx.GetBuffer(context.Background())
		if err != nil {
			return err
		}
		capacity := out.Capacity() / tupleSize
		if capacity <= 0 {
			out.Release()
			return fmt.Errorf("join: output buffer capacity %d smaller than tuple size %d", out.Capacity(), tupleSize)
		}

		data := out.Data()
		n := 0
		for idx < len(matched) && n < capacity {
			pp.layout.Encode(data[n*tupleSize:(n+1)*tupleSize], matched[idx].left, matched[idx].right)
			idx++
			n++
		}
		out.SetTupleCount(n)
		lastChunk := idx >= len(matched)
		out.Stamp(pp.originID, pp.seq.Add(1)-1, 0, lastChunk, iv.Start)

		if err := ctx.Emit(out); err != nil {
			return err
		}
	}
	return nil
}
