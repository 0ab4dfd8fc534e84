package network

import (
	"encoding/json"
	"fmt"

	"github.com/nebulacore/streamengine/pkg/buffer"
)

// msgKind discriminates a channel connection's frames: control messages use
// JSON (infrequent, readable, matching the teacher's websocket JSON control
// messages in cmd/announce-webui's sendWebSocketStats), data frames use
// spec.md §6's tight binary SerializedTupleBuffer layout.
type msgKind byte

const (
	kindAnnounce msgKind = iota + 1
	kindReady
	kindPartitionNotRegistered
	kindDeletedPartition
	kindVersionMismatch
	kindData
	kindDrain
	kindEOS
)

type announcePayload struct {
	ChannelID string    `json:"channel_id"`
	Direction Direction `json:"direction"`
	Version   int       `json:"version"`
}

type drainPayload struct {
	ChannelID  string `json:"channel_id"`
	NewVersion int    `json:"new_version"`
}

type eosPayload struct {
	ChannelID string `json:"channel_id"`
	MaxSeq    uint64 `json:"max_seq"`
	NoData    bool   `json:"no_data"`
}

func frame(kind msgKind, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(kind)
	copy(out[1:], payload)
	return out
}

func encodeJSON(kind msgKind, v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return frame(kind, payload), nil
}

// ChannelState is the per-channel protocol state spec.md §4.7 describes:
// ANNOUNCE→READY→DATA*→(DRAIN|EOS).
type ChannelState int

const (
	StateAnnounced ChannelState = iota
	StateReady
	StateStreaming
	StateDraining
	StateClosed
)

// SendAnnounce is the sender's first message on a fresh connection: channel
// id, direction, and protocol version (spec.md §4.7, "Announce").
func SendAnnounce(conn Conn, channelID string, dir Direction, version int) (SendResult, error) {
	f, err := encodeJSON(kindAnnounce, announcePayload{ChannelID: channelID, Direction: dir, Version: version})
	if err != nil {
		return SendClosed, err
	}
	return conn.Send(f), nil
}

// ReadyOutcome is the receiver's reply to an Announce (spec.md §4.7,
// "Ready").
type ReadyOutcome int

const (
	Ready ReadyOutcome = iota
	PartitionNotRegistered
	DeletedPartition
	VersionMismatch
)

func (o ReadyOutcome) kind() msgKind {
	switch o {
	case PartitionNotRegistered:
		return kindPartitionNotRegistered
	case DeletedPartition:
		return kindDeletedPartition
	case VersionMismatch:
		return kindVersionMismatch
	default:
		return kindReady
	}
}

// SendReady replies to an Announce with one of the four outcomes spec.md
// §4.7 names.
func SendReady(conn Conn, outcome ReadyOutcome) SendResult {
	return conn.Send(frame(outcome.kind(), nil))
}

// SendData sends one tuple buffer as a wire-format data frame.
func SendData(conn Conn, buf *buffer.TupleBuffer, tupleWidth int) SendResult {
	return conn.Send(frame(kindData, EncodeBuffer(buf, tupleWidth)))
}

// SendEOS sends the channel's end-of-stream message carrying the highest
// sequence number the sender emitted (spec.md §4.7, "EOS"). noData is set
// when the sender never transmitted a single buffer, so the receiver
// doesn't wait on a contiguous watermark that will never be reached.
func SendEOS(conn Conn, channelID string, maxSeq uint64, noData bool) (SendResult, error) {
	f, err := encodeJSON(kindEOS, eosPayload{ChannelID: channelID, MaxSeq: maxSeq, NoData: noData})
	if err != nil {
		return SendClosed, err
	}
	return conn.Send(f), nil
}

// SendDrain sends a drain EOS that migrates the channel to a new version
// instead of tearing it down (spec.md §4.7, "A channel may receive a drain
// EOS that instead migrates the channel to a new version").
func SendDrain(conn Conn, channelID string, newVersion int) (SendResult, error) {
	f, err := encodeJSON(kindDrain, drainPayload{ChannelID: channelID, NewVersion: newVersion})
	if err != nil {
		return SendClosed, err
	}
	return conn.Send(f), nil
}

// Envelope is one decoded incoming message: its kind plus whichever payload
// is relevant to that kind.
type Envelope struct {
	Kind     msgKind
	Announce announcePayload
	Drain    drainPayload
	EOS      eosPayload
	DataRaw  []byte
}

// DecodeEnvelope parses one message received over a channel connection.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if len(raw) < 1 {
		return Envelope{}, fmt.Errorf("network: empty frame")
	}
	kind := msgKind(raw[0])
	body := raw[1:]
	env := Envelope{Kind: kind}
	var err error
	switch kind {
	case kindAnnounce:
		err = json.Unmarshal(body, &env.Announce)
	case kindDrain:
		err = json.Unmarshal(body, &env.Drain)
	case kindEOS:
		err = json.Unmarshal(body, &env.EOS)
	case kindData:
		env.DataRaw = body
	case kindReady, kindPartitionNotRegistered, kindDeletedPartition, kindVersionMismatch:
		// no payload
	default:
		return Envelope{}, fmt.Errorf("network: unknown message kind %d", kind)
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("network: decode kind %d: %w", kind, err)
	}
	return env, nil
}
