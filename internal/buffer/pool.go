package buffer

import "sync"

// scratchSize is sized to hold one encoded sample record; records larger
// than this allocate their own slice and are not pooled.
const scratchSize = 4096

// Pool provides reusable scratch buffers for record encoding, so the
// sampling path does not allocate on every sample.
var Pool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, scratchSize)
	},
}

// Get retrieves an empty scratch buffer from the pool.
func Get() []byte {
	return Pool.Get().([]byte)[:0]
}

// Put returns a scratch buffer to the pool. Oversized buffers are dropped
// so the pool does not pin large one-off allocations.
func Put(buf []byte) {
	if cap(buf) >= scratchSize && cap(buf) <= 4*scratchSize {
		Pool.Put(buf[:0])
	}
}
