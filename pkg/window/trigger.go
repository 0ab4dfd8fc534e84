package window

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/pipeline"
)

// InputDecoder turns one input tuple buffer into the Records its tuples
// represent; concrete decoders live alongside each query's compiled
// pipeline and know the input schema.
type InputDecoder interface {
	Decode(buf *buffer.TupleBuffer) []Record
}

// OutputLayout encodes one Result as a fixed-width tuple in an output
// buffer's byte region.
type OutputLayout interface {
	TupleSize() int
	Encode(dst []byte, r Result)
}

// AggregationTrigger is the pipeline stage wrapping a Store: it decodes
// each input buffer into Records, feeds them to the store, advances the
// watermark, and packs any newly completed windows into output buffers
// per spec.md §4.5's trigger action — ceil(|results|*tuple_size/buffer_size)
// output buffers, ascending slice start, a strictly increasing
// per-operator sequence number stamped on each.
type AggregationTrigger struct {
	store    *Store
	decode   InputDecoder
	layout   OutputLayout
	originID uint64
	seq      atomic.Uint64
}

// NewAggregationTrigger builds a trigger stage over store, decoding inputs
// with decode and encoding outputs with layout. originID identifies this
// operator's own output stream for downstream sequence tracking.
func NewAggregationTrigger(store *Store, decode InputDecoder, layout OutputLayout, originID uint64) *AggregationTrigger {
	return &AggregationTrigger{store: store, decode: decode, layout: layout, originID: originID}
}

func (t *AggregationTrigger) Setup(ctx *pipeline.Context) error { return nil }

func (t *AggregationTrigger) Terminate(ctx *pipeline.Context) error { return nil }

// Execute ingests buf's tuples, advances the store's watermark to buf's
// stamped watermark, and emits every window that trigger completed.
func (t *AggregationTrigger) Execute(ctx *pipeline.Context, wctx *pipeline.WorkerContext, buf *buffer.TupleBuffer) error {
	for _, rec := range t.decode.Decode(buf) {
		t.store.Add(rec)
	}

	results := t.store.AdvanceWatermark(buf.Watermark())
	if len(results) == 0 {
		return nil
	}

	tupleSize := t.layout.TupleSize()
	idx := 0
	for idx < len(results) {
		out, err := ctx.GetBuffer(context.Background())
		if err != nil {
			return err
		}
		capacity := out.Capacity() / tupleSize
		if capacity <= 0 {
			out.Release()
			return fmt.Errorf("window: output buffer capacity %d smaller than tuple size %d", out.Capacity(), tupleSize)
		}

		// spec.md §4.5's trigger action stamps each output with the
		// window's own start, not the store's advanced watermark — use
		// the first (lowest-start) result packed into this buffer.
		chunkStart := results[idx].Start

		data := out.Data()
		n := 0
		for idx < len(results) && n < capacity {
			t.layout.Encode(data[n*tupleSize:(n+1)*tupleSize], results[idx])
			idx++
			n++
		}
		out.SetTupleCount(n)
		lastChunk := idx >= len(results)
		out.Stamp(t.originID, t.seq.Add(1)-1, 0, lastChunk, chunkStart)

		if err := ctx.Emit(out); err != nil {
			return err
		}
	}
	return nil
}
