package rchannel

import (
	"math/bits"
	"sync"
)

// ChunkBytes is the largest piece a collective sends at once. Received
// payloads up to this size are recycled through power of two size classes.
const ChunkBytes = 1 << 20

const (
	minClassShift = 9
	maxClassShift = 20
)

var classes [maxClassShift - minClassShift + 1]sync.Pool

func classOf(n int) int {
	if n <= 1<<minClassShift {
		return 0
	}
	s := bits.Len(uint(n - 1))
	if s > maxClassShift {
		return -1
	}
	return s - minClassShift
}

// GetBuf returns a buffer of length n, pooled when n <= ChunkBytes.
func GetBuf(n int) []byte {
	c := classOf(n)
	if c < 0 {
		return make([]byte, n)
	}
	if v := classes[c].Get(); v != nil {
		return (*v.(*[]byte))[:n]
	}
	return make([]byte, n, 1<<(c+minClassShift))
}

// PutBuf recycles a buffer obtained from GetBuf.
func PutBuf(b []byte) {
	c := classOf(cap(b))
	if c < 0 || cap(b) != 1<<(c+minClassShift) {
		return
	}
	b = b[:0]
	classes[c].Put(&b)
}
