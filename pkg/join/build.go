package join

import (
	"context"
	"sync/atomic"

	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/pipeline"
	"github.com/nebulacore/streamengine/pkg/watermark"
)

// TimedTuple is one decoded input tuple paired with the event-time value
// the join's time function extracted from it.
type TimedTuple struct {
	Timestamp int64
	Data      Tuple
}

// InputDecoder turns one input buffer into the TimedTuples it carries.
type InputDecoder interface {
	Decode(buf *buffer.TupleBuffer) []TimedTuple
}

// BuildPipeline is the per-side build stage: it appends every input tuple
// to its covering interval's paged vector, then — after consulting the
// shared global watermark — dispatches a probe descriptor for any
// interval that just became ready (spec.md §4.6, "Build pipeline" and
// "Probe emission").
type BuildPipeline struct {
	store    *Store
	side     Side
	decode   InputDecoder
	wm       *watermark.Processor
	probe    *pipeline.Node
	originID uint64
	seq      atomic.Uint64
}

// NewBuildPipeline builds the side's build stage. wm is shared with the
// other side's BuildPipeline so either side's progress can unblock probes.
func NewBuildPipeline(store *Store, side Side, decode InputDecoder, wm *watermark.Processor, probe *pipeline.Node, originID uint64) *BuildPipeline {
	return &BuildPipeline{store: store, side: side, decode: decode, wm: wm, probe: probe, originID: originID}
}

func (bp *BuildPipeline) Setup(ctx *pipeline.Context) error     { return nil }
func (bp *BuildPipeline) Terminate(ctx *pipeline.Context) error { return nil }

func (bp *BuildPipeline) Execute(ctx *pipeline.Context, wctx *pipeline.WorkerContext, buf *buffer.TupleBuffer) error {
	for _, tt := range bp.decode.Decode(buf) {
		bp.store.Build(bp.side, tt.Timestamp, tt.Data)
	}

	origin, seq, _ := buf.Identity()
	global := bp.wm.Update(buf.Watermark(), seq, origin)

	ready := bp.store.AdvanceWatermark(global)
	for _, iv := range ready {
		if err := bp.dispatchProbe(ctx, iv); err != nil {
			return err
		}
	}
	return nil
}

func (bp *BuildPipeline) dispatchProbe(ctx *pipeline.Context, iv *Interval) error {
	out, err := ctx.GetBuffer(context.Background())
	if err != nil {
		return err
	}
	encodeDescriptor(out.Data(), iv.ID)
	out.SetTupleCount(1)
	// chunk is the literal constant 1 here, not an incrementing counter —
	// a probe descriptor is always a single, self-contained chunk
	// (spec.md §4.6, "Probe emission").
	out.Stamp(bp.originID, bp.seq.Add(1)-1, 1, true, iv.Start)
	return ctx.EmitTo(out, bp.probe)
}

// BeginTermination runs termination pass one (spec.md §4.6,
// "Termination").
func (bp *BuildPipeline) BeginTermination() {
	bp.store.BeginTerminationPass()
}

// FinishTermination runs termination pass two, dispatching a final probe
// descriptor for every interval that survives it.
func (bp *BuildPipeline) FinishTermination(ctx *pipeline.Context) error {
	for _, iv := range bp.store.FinishTerminationPass() {
		if err := bp.dispatchProbe(ctx, iv); err != nil {
			return err
		}
	}
	return nil
}
