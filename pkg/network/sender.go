package network

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/engineerrors"
	"github.com/nebulacore/streamengine/pkg/pipeline"
)

// SenderPipeline is the network channel's sending half: a terminal
// pipeline (no successors, like pkg/sink's kinds) that serializes each
// input buffer onto a Conn, retrying through the task queue under
// backpressure (spec.md §4.7, "Backpressure"). Grounded on
// pkg/storage/cache/writeback.go's bounded background writer, generalized
// from a write-behind cache to a backpressured network send.
type SenderPipeline struct {
	conn       Conn
	channelID  string
	tupleWidth int
	bp         *BackpressureState
	retryDelay time.Duration

	mu    sync.Mutex
	deque []*buffer.TupleBuffer

	self    *pipeline.Node
	lastSeq atomic.Uint64
	sentAny atomic.Bool
	closed  atomic.Bool
}

// NewSenderPipeline builds a sender for channelID over conn. retryDelay is
// how long ctx.Repeat waits before retrying a send left pending by
// backpressure.
func NewSenderPipeline(conn Conn, channelID string, tupleWidth int, bp *BackpressureState, retryDelay time.Duration) *SenderPipeline {
	return &SenderPipeline{conn: conn, channelID: channelID, tupleWidth: tupleWidth, bp: bp, retryDelay: retryDelay}
}

// BindSelf records the Node this pipeline runs as, needed to call
// ctx.Repeat against itself.
func (sp *SenderPipeline) BindSelf(self *pipeline.Node) { sp.self = self }

func (sp *SenderPipeline) Setup(ctx *pipeline.Context) error {
	_, err := SendAnnounce(sp.conn, sp.channelID, DataChannel, 1)
	if err != nil {
		return err
	}
	return nil
}

// Execute enqueues buf behind any buffer still waiting to be sent — so
// order on the wire matches arrival order — then drains the deque from its
// head. A buffer that is itself the current head (a retried task) is not
// re-enqueued, just redriven.
func (sp *SenderPipeline) Execute(ctx *pipeline.Context, wctx *pipeline.WorkerContext, buf *buffer.TupleBuffer) error {
	if sp.closed.Load() {
		buf.Release()
		return engineerrors.New(engineerrors.CodeProtocolError, "network.sender", "channel closed", nil)
	}

	sp.mu.Lock()
	isRetry := len(sp.deque) > 0 && sp.deque[0] == buf
	if !isRetry {
		sp.deque = append(sp.deque, buf)
	}
	sp.mu.Unlock()

	return sp.drain(ctx)
}

func (sp *SenderPipeline) drain(ctx *pipeline.Context) error {
	for {
		sp.mu.Lock()
		if len(sp.deque) == 0 {
			sp.mu.Unlock()
			return nil
		}
		head := sp.deque[0]
		sp.mu.Unlock()

		switch SendData(sp.conn, head, sp.tupleWidth) {
		case SendOk:
			_, seq, _ := head.Identity()
			sp.lastSeq.Store(seq)
			sp.sentAny.Store(true)

			sp.mu.Lock()
			sp.deque = sp.deque[1:]
			depth := len(sp.deque)
			sp.mu.Unlock()

			sp.bp.OnDrained(depth)
			head.Release()

		case SendFull:
			sp.mu.Lock()
			depth := len(sp.deque)
			sp.mu.Unlock()
			sp.bp.OnFull(depth)
			return ctx.Repeat(head, sp.self, sp.retryDelay)

		case SendClosed:
			sp.closed.Store(true)
			return engineerrors.New(engineerrors.CodeProtocolError, "network.sender", "channel closed", nil)
		}
	}
}

// Terminate sends the channel's EOS message carrying the highest sequence
// number this sender ever transmitted, per spec.md §4.7's "EOS carries
// max_seq".
func (sp *SenderPipeline) Terminate(ctx *pipeline.Context) error {
	_, err := SendEOS(sp.conn, sp.channelID, sp.lastSeq.Load(), !sp.sentAny.Load())
	return err
}
