package network

import (
	"testing"

	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/pipeline"
)

type recordingSourceDispatcher struct {
	submitted []*buffer.TupleBuffer
}

func (d *recordingSourceDispatcher) SubmitSource(buf *buffer.TupleBuffer, node *pipeline.Node) error {
	d.submitted = append(d.submitted, buf)
	return nil
}

func TestReceiverServeConnReassemblesAndDispatches(t *testing.T) {
	pool := newTestPool(t)
	tupleWidth := 4

	registry := NewReceiverRegistry()
	consumer := &pipeline.Node{Name: "consumer"}
	registry.Register(&ReceiverRegistration{ChannelID: "ch-1", Consumer: consumer})

	dispatcher := &recordingSourceDispatcher{}
	r := NewReceiver(registry, dispatcher, pool, tupleWidth)

	annFrame, err := encodeJSON(kindAnnounce, announcePayload{ChannelID: "ch-1", Direction: DataChannel, Version: 1})
	if err != nil {
		t.Fatalf("encodeJSON(announce): %v", err)
	}

	buf := pool.GetUnpooled(4)
	buf.SetTupleCount(1)
	buf.Stamp(1, 0, 0, true, 0)
	dataFrame := frame(kindData, EncodeBuffer(buf, tupleWidth))

	eosFrame, err := encodeJSON(kindEOS, eosPayload{ChannelID: "ch-1", MaxSeq: 0, NoData: false})
	if err != nil {
		t.Fatalf("encodeJSON(eos): %v", err)
	}

	conn := &fakeConn{recv: [][]byte{annFrame, dataFrame, eosFrame}}
	if err := r.ServeConn(conn); err != nil {
		t.Fatalf("ServeConn: %v", err)
	}

	if len(dispatcher.submitted) != 1 {
		t.Fatalf("submitted length = %d, want 1", len(dispatcher.submitted))
	}
	if _, ok := registry.Lookup("ch-1"); ok {
		t.Fatalf("channel still registered after EOS")
	}

	readyEnv, err := DecodeEnvelope(conn.sent[0])
	if err != nil {
		t.Fatalf("DecodeEnvelope(ready): %v", err)
	}
	if readyEnv.Kind != kindReady {
		t.Fatalf("first reply kind = %d, want kindReady", readyEnv.Kind)
	}
}

func TestReceiverServeConnRejectsUnknownChannel(t *testing.T) {
	pool := newTestPool(t)
	registry := NewReceiverRegistry()
	dispatcher := &recordingSourceDispatcher{}
	r := NewReceiver(registry, dispatcher, pool, 4)

	annFrame, _ := encodeJSON(kindAnnounce, announcePayload{ChannelID: "missing", Direction: DataChannel, Version: 1})
	conn := &fakeConn{recv: [][]byte{annFrame}}

	if err := r.ServeConn(conn); err == nil {
		t.Fatalf("ServeConn for an unregistered channel returned no error")
	}
	env, err := DecodeEnvelope(conn.sent[0])
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Kind != kindPartitionNotRegistered {
		t.Fatalf("reply kind = %d, want kindPartitionNotRegistered", env.Kind)
	}
}

func TestReceiverServeConnNoDataEOSReturnsImmediately(t *testing.T) {
	pool := newTestPool(t)
	registry := NewReceiverRegistry()
	consumer := &pipeline.Node{Name: "consumer"}
	registry.Register(&ReceiverRegistration{ChannelID: "ch-1", Consumer: consumer})

	dispatcher := &recordingSourceDispatcher{}
	r := NewReceiver(registry, dispatcher, pool, 4)

	annFrame, _ := encodeJSON(kindAnnounce, announcePayload{ChannelID: "ch-1", Direction: DataChannel, Version: 1})
	eosFrame, _ := encodeJSON(kindEOS, eosPayload{ChannelID: "ch-1", MaxSeq: 0, NoData: true})
	conn := &fakeConn{recv: [][]byte{annFrame, eosFrame}}

	if err := r.ServeConn(conn); err != nil {
		t.Fatalf("ServeConn: %v", err)
	}
	if len(dispatcher.submitted) != 0 {
		t.Fatalf("submitted length = %d, want 0", len(dispatcher.submitted))
	}
}
