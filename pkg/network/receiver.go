package network

import (
	"fmt"
	"time"

	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/pipeline"
	"github.com/nebulacore/streamengine/pkg/seqqueue"
)

// Dispatcher is the subset of the task queue a Receiver needs to submit
// newly reassembled buffers downstream, mirroring pkg/source.Dispatcher's
// identical import-cycle-breaking role for source-produced buffers (see
// pkg/task.Queue.SubmitSource).
type Dispatcher interface {
	SubmitSource(buf *buffer.TupleBuffer, node *pipeline.Node) error
}

// eosPollInterval is how often ServeConn checks whether the reassembly
// queue's contiguous watermark has caught up to an EOS's max_seq.
const eosPollInterval = 5 * time.Millisecond

// Receiver runs the receiver side of spec.md §4.7's channel protocol:
// checks the partition registry on Announce, replies Ready or a failure
// outcome, then reassembles incoming Data frames into contiguous order
// before dispatching them to the registered consumer node.
type Receiver struct {
	registry   *ReceiverRegistry
	dispatcher Dispatcher
	pool       *buffer.Pool
	tupleWidth int
}

func NewReceiver(registry *ReceiverRegistry, dispatcher Dispatcher, pool *buffer.Pool, tupleWidth int) *Receiver {
	return &Receiver{registry: registry, dispatcher: dispatcher, pool: pool, tupleWidth: tupleWidth}
}

// ServeConn runs one channel connection's protocol state machine to
// completion: Announce, Ready, a Data/Drain loop, and EOS. It is meant to
// run in its own goroutine per accepted connection.
func (r *Receiver) ServeConn(conn Conn) error {
	raw, err := conn.Recv()
	if err != nil {
		return err
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return err
	}
	if env.Kind != kindAnnounce {
		return fmt.Errorf("network: expected announce, got kind %d", env.Kind)
	}
	channelID := env.Announce.ChannelID

	reg, ok := r.registry.Lookup(channelID)
	if !ok {
		SendReady(conn, PartitionNotRegistered)
		return fmt.Errorf("network: channel %s not registered", channelID)
	}
	if result := SendReady(conn, Ready); result != SendOk {
		return fmt.Errorf("network: channel %s: ready reply failed", channelID)
	}

	seq := seqqueue.New[*buffer.TupleBuffer](0)
	for {
		raw, err := conn.Recv()
		if err != nil {
			return err
		}
		env, err := DecodeEnvelope(raw)
		if err != nil {
			return err
		}

		switch env.Kind {
		case kindData:
			buf, err := DecodeBuffer(env.DataRaw, r.pool, r.tupleWidth)
			if err != nil {
				return err
			}
			_, bufSeq, _ := buf.Identity()
			for _, ready := range seq.InsertAll(bufSeq, buf) {
				if err := r.dispatcher.SubmitSource(ready, reg.Consumer); err != nil {
					return err
				}
			}

		case kindDrain:
			// Version migration only; the channel keeps streaming under the
			// same registration.
			continue

		case kindEOS:
			for {
				_, headSeq, has := seq.Head()
				if env.EOS.NoData || (has && headSeq >= env.EOS.MaxSeq) {
					break
				}
				time.Sleep(eosPollInterval)
			}
			r.registry.Unregister(channelID)
			return nil

		default:
			return fmt.Errorf("network: channel %s: unexpected message kind %d", channelID, env.Kind)
		}
	}
}
