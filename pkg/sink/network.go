package sink

import (
	"time"

	"github.com/nebulacore/streamengine/pkg/network"
)

// NetworkSink is the "network" sink kind spec.md's overview names,
// wiring a query's final pipeline into the channel transport (pkg/network)
// rather than introducing a second serialization path: sending tuples over
// a channel already implements the Pipeline Setup/Execute/Terminate
// contract (SenderPipeline has no successors, exactly like a sink).
type NetworkSink = network.SenderPipeline

// NewNetworkSink opens a channel to addr and returns a sink that streams
// every buffer it receives over it, retrying through the task queue under
// backpressure.
func NewNetworkSink(addr, channelID string, tupleWidth int, lowWatermark, highWatermark int, retryDelay time.Duration, upstream network.PauseSignal) (*NetworkSink, error) {
	conn, err := network.Dial(addr)
	if err != nil {
		return nil, err
	}
	bp := network.NewBackpressureState(lowWatermark, highWatermark, upstream)
	return network.NewSenderPipeline(conn, channelID, tupleWidth, bp, retryDelay), nil
}
