package index

import "encoding/binary"

// decodeCounter decodes the 8-byte little-endian signed integer format
// the underlying store's AtomicAdd operates on (spec §6.2: "Count
// values are 8-byte little-endian signed integers").
func decodeCounter(b []byte) int64 {
	if len(b) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

// encodeCounter is decodeCounter's inverse, used where a maintainer
// needs to seed a counter directly (e.g. the online builder writing a
// count index from scratch) rather than through AtomicAdd.
func encodeCounter(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}
