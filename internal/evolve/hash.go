package evolve

import (
	"encoding/binary"
	"hash/fnv"
)

// Hash is the single source of pseudo-variety for the engine: FNV-1a
// (32-bit) over the 8-byte little-endian two's-complement encoding of seed.
// Changing it changes every evolution result.
func Hash(seed int) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(seed)))
	h := fnv.New32a()
	h.Write(buf[:])
	return h.Sum32()
}

// pick maps seed onto [0, n).
func pick(seed, n int) int {
	if n <= 0 {
		return 0
	}
	return int(Hash(seed) % uint32(n))
}
