package join

import "encoding/binary"

// descriptorSize is the wire size of a probe descriptor: one interval id
// (spec.md §4.6, "Probe emission": "write a single descriptor
// {interval_id}").
const descriptorSize = 8

func encodeDescriptor(dst []byte, intervalID uint64) {
	binary.LittleEndian.PutUint64(dst[:descriptorSize], intervalID)
}

func decodeDescriptor(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src[:descriptorSize])
}
