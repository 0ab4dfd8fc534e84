// Package network implements the channel transport described in spec.md
// §4.7 and §6: a sender/receiver protocol state machine
// (ANNOUNCE→READY→DATA*→(DRAIN|EOS)) moving tuple buffers between workers
// over a websocket-framed wire format, with sender-side backpressure.
package network

import (
	"encoding/binary"
	"fmt"

	"github.com/nebulacore/streamengine/pkg/buffer"
)

// headerSize is spec.md §6's fixed wire header: 5 u64 fields, one u8 flag,
// and 7 padding bytes (40 + 1 + 7 = 48 bytes).
const headerSize = 48

// header mirrors spec.md §6's little-endian wire header exactly.
type header struct {
	seq       uint64
	origin    uint64
	chunk     uint64
	nTuples   uint64
	watermark uint64
	lastChunk bool
}

func (h header) encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], h.seq)
	binary.LittleEndian.PutUint64(dst[8:16], h.origin)
	binary.LittleEndian.PutUint64(dst[16:24], h.chunk)
	binary.LittleEndian.PutUint64(dst[24:32], h.nTuples)
	binary.LittleEndian.PutUint64(dst[32:40], h.watermark)
	if h.lastChunk {
		dst[40] = 1
	} else {
		dst[40] = 0
	}
	for i := 41; i < headerSize; i++ {
		dst[i] = 0
	}
}

func decodeHeader(src []byte) header {
	return header{
		seq:       binary.LittleEndian.Uint64(src[0:8]),
		origin:    binary.LittleEndian.Uint64(src[8:16]),
		chunk:     binary.LittleEndian.Uint64(src[16:24]),
		nTuples:   binary.LittleEndian.Uint64(src[24:32]),
		watermark: binary.LittleEndian.Uint64(src[32:40]),
		lastChunk: src[40] != 0,
	}
}

// EncodeBuffer serializes buf into spec.md §6's wire format: header,
// payload (tupleCount*tupleWidth bytes), then a u16 child count followed by
// each child's {u32 size, bytes}. Children are flattened to their raw
// payload bytes; they need no header of their own on the wire.
func EncodeBuffer(buf *buffer.TupleBuffer, tupleWidth int) []byte {
	origin, seq, chunk := buf.Identity()
	n := buf.TupleCount()
	payloadLen := n * tupleWidth

	children := buf.Children()
	childPayloads := make([][]byte, len(children))
	childrenLen := 2 // u16 count
	for i, c := range children {
		cn := c.TupleCount() * tupleWidth
		childPayloads[i] = c.Data()[:cn]
		childrenLen += 4 + cn
	}

	out := make([]byte, headerSize+payloadLen+childrenLen)
	h := header{seq: seq, origin: origin, chunk: chunk, nTuples: uint64(n), watermark: uint64(buf.Watermark()), lastChunk: buf.LastChunk()}
	h.encode(out[:headerSize])
	copy(out[headerSize:headerSize+payloadLen], buf.Data()[:payloadLen])

	off := headerSize + payloadLen
	binary.LittleEndian.PutUint16(out[off:off+2], uint16(len(children)))
	off += 2
	for _, cp := range childPayloads {
		binary.LittleEndian.PutUint32(out[off:off+4], uint32(len(cp)))
		off += 4
		copy(out[off:off+len(cp)], cp)
		off += len(cp)
	}
	return out
}

// DecodeBuffer parses spec.md §6's wire format back into a freshly
// allocated TupleBuffer (taken from pool's unpooled path, since the wire
// frame's size is whatever the sender chose, not the pool's fixed segment
// size) plus its child buffers, and stamps it with the wire header's
// ordering metadata.
func DecodeBuffer(frame []byte, pool *buffer.Pool, tupleWidth int) (*buffer.TupleBuffer, error) {
	if len(frame) < headerSize+2 {
		return nil, fmt.Errorf("network: frame too short (%d bytes)", len(frame))
	}
	h := decodeHeader(frame[:headerSize])
	payloadLen := int(h.nTuples) * tupleWidth
	if headerSize+payloadLen+2 > len(frame) {
		return nil, fmt.Errorf("network: frame truncated for %d tuples", h.nTuples)
	}

	buf := pool.GetUnpooled(payloadLen)
	copy(buf.Data()[:payloadLen], frame[headerSize:headerSize+payloadLen])
	buf.SetTupleCount(int(h.nTuples))

	off := headerSize + payloadLen
	nChildren := int(binary.LittleEndian.Uint16(frame[off : off+2]))
	off += 2
	for i := 0; i < nChildren; i++ {
		if off+4 > len(frame) {
			return nil, fmt.Errorf("network: truncated child header %d", i)
		}
		size := int(binary.LittleEndian.Uint32(frame[off : off+4]))
		off += 4
		if off+size > len(frame) {
			return nil, fmt.Errorf("network: truncated child payload %d", i)
		}
		child := pool.GetUnpooled(size)
		copy(child.Data()[:size], frame[off:off+size])
		child.SetTupleCount(size / tupleWidth)
		child.Stamp(h.origin, h.seq, h.chunk, true, int64(h.watermark))
		buf.AddChild(child)
		off += size
	}

	buf.Stamp(h.origin, h.seq, h.chunk, h.lastChunk, int64(h.watermark))
	return buf, nil
}
