package swarm

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Hasher assigns candidate identities. With true hashing enabled the id is
// an xxhash fingerprint of the state vector, so identical states share an
// id. Otherwise ids are sequential counters, cheaper but unique per hasher.
//
// A hasher is scoped to one swarm and is not safe for concurrent use.
type Hasher struct {
	trueHash bool
	seq      uint64
}

// NewHasher creates a hasher. trueHash selects fingerprinting over
// sequential counters.
func NewHasher(trueHash bool) *Hasher {
	return &Hasher{trueHash: trueHash}
}

// HashState returns the identity for a state vector.
func (h *Hasher) HashState(state []float64) string {
	if !h.trueHash {
		h.seq++
		return strconv.FormatUint(h.seq, 10)
	}
	buf := make([]byte, 8*len(state))
	for i, v := range state {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return strconv.FormatUint(xxhash.Sum64(buf), 16)
}
