package program

import (
	"crypto/sha256"
	"encoding/binary"
)

// Hash computes the SHA-256 content hash of the chunk's instructions.
//
// Region structure inside a chunk follows from its instructions and from
// whether it starts inside a region, so two chunks with equal hashes
// generate identical code in every backend.
func (c *Chunk) Hash() [32]byte {
	h := sha256.New()
	var buf [8]byte
	put := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}

	put(c.Len())
	if c.Layout().EntryOpen > 0 {
		put(1)
	} else {
		put(0)
	}
	for i := c.Start(); i < c.End(); i++ {
		cmd := c.At(i)
		h.Write([]byte{byte(cmd.Op)})
		put(cmd.Index)
		put(cmd.SourceIndex)
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
