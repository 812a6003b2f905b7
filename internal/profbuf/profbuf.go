package profbuf

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/SkynetNext/prof-agent/internal/metrics"
)

// Slot states. Transitions are strictly unused -> filling -> ready -> unused,
// each performed by exactly one thread via CAS or an atomic store by the
// current owner.
const (
	slotUnused int32 = iota
	slotFilling
	slotReady
)

// Write lock states. The lock is advisory and non-blocking: a failed CAS
// means another goroutine is already flushing (or shutdown has begun) and
// the caller simply gives up.
const (
	lockFree int32 = iota
	lockFlushing
	lockShutdown
)

// shutdownRetryDelay is the sleep between lock acquisition attempts during
// Shutdown. Contention is short-lived (lock holders only do one bounded
// scan), so a short spin-with-sleep is enough.
const shutdownRetryDelay = 10 * time.Microsecond

const (
	// DefaultBufferCount is the default number of slots in a pool
	DefaultBufferCount = 32

	// DefaultBufferSize is the default per-slot payload capacity in bytes
	DefaultBufferSize = 8192
)

// slot holds the flush bookkeeping for one buffer. Only the current owner
// of the slot (the producer while filling, the write-lock holder while
// ready) touches these fields; ownership is conferred by the slot's state.
type slot struct {
	// dataOffset is the offset of the first unwritten byte
	dataOffset int

	// dataSize is the number of bytes remaining to write
	dataSize int
}

// Pool is a fixed-capacity pool of byte buffers shared by many producer
// goroutines. Producers reserve a slot, fill it and commit it; committed
// slots are drained to a sink by whichever goroutine wins the write lock.
// No operation on the hot path ever blocks: reservation fails cleanly when
// the pool is saturated and flushing is skipped when another goroutine is
// already writing.
//
// Writes to the sink are serialized: at most one goroutine is ever inside
// the sink's Write call for a given pool.
type Pool struct {
	bufferCount int
	bufferSize  int

	// slab is the single backing allocation; slot i owns
	// slab[i*bufferSize : (i+1)*bufferSize]
	slab []byte

	slots  []slot
	states []int32 // atomic, one of slotUnused/slotFilling/slotReady

	writeLock int32 // atomic, one of lockFree/lockFlushing/lockShutdown
}

// Stats is a point-in-time snapshot of pool occupancy. Counts are taken
// with individual atomic loads and may be mutually inconsistent under
// concurrent activity.
type Stats struct {
	Unused  int
	Filling int
	Ready   int
	Closed  bool
}

// New creates a pool of bufferCount slots of bufferSize payload bytes each.
// Capacity is fixed for the pool's lifetime.
func New(bufferCount, bufferSize int) (*Pool, error) {
	if bufferCount <= 0 {
		return nil, fmt.Errorf("profbuf: buffer count must be greater than 0, got %d", bufferCount)
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("profbuf: buffer size must be greater than 0, got %d", bufferSize)
	}

	return &Pool{
		bufferCount: bufferCount,
		bufferSize:  bufferSize,
		slab:        make([]byte, bufferCount*bufferSize),
		slots:       make([]slot, bufferCount),
		states:      make([]int32, bufferCount),
	}, nil
}

// BufferCount returns the number of slots in the pool.
func (p *Pool) BufferCount() int {
	return p.bufferCount
}

// BufferSize returns the per-slot payload capacity in bytes.
func (p *Pool) BufferSize() int {
	return p.bufferSize
}

// payload returns slot i's full backing region.
func (p *Pool) payload(i int) []byte {
	start := i * p.bufferSize
	return p.slab[start : start+p.bufferSize]
}

// Reserve claims an unused slot for filling and returns an exclusive handle
// to it. Before scanning it opportunistically drains any ready slots to the
// sink to make room; that drain is best-effort and never blocks.
//
// Returns (nil, false) when every slot is busy (pool saturated) or the pool
// has been shut down. Saturation is a normal condition: the caller decides
// whether to drop the record or retry.
func (p *Pool) Reserve(w io.Writer) (*Handle, bool) {
	p.flushReady(w)

	if atomic.LoadInt32(&p.writeLock) == lockShutdown {
		return nil, false
	}

	for i := 0; i < p.bufferCount; i++ {
		if atomic.LoadInt32(&p.states[i]) == slotUnused &&
			atomic.CompareAndSwapInt32(&p.states[i], slotUnused, slotFilling) {
			sl := &p.slots[i]
			sl.dataSize = 0
			sl.dataOffset = 0
			metrics.BuffersReserved.Inc()
			return &Handle{pool: p, index: i, buf: p.payload(i)}, true
		}
	}

	// No unused slot found after a full sweep
	metrics.ReserveSaturated.Inc()
	return nil, false
}

// Commit publishes a filled handle's slot as ready and tries once to write
// it out immediately. The atomic state store has release semantics, so any
// goroutine that observes the slot as ready also observes every byte the
// producer wrote into it.
//
// If the write lock is contended the slot is simply left ready for a future
// flush; Commit never blocks and never reports sink errors to the producer.
func (p *Pool) Commit(w io.Writer, h *Handle) {
	i := h.index
	sl := &p.slots[i]
	sl.dataOffset = 0
	sl.dataSize = h.filled

	// Publishes the slot contents along with the state change
	atomic.StoreInt32(&p.states[i], slotReady)
	metrics.BuffersCommitted.Inc()

	p.writeCommitted(w, i)
}

// writeCommitted makes one non-blocking attempt to drain a just-committed
// slot. Between the ready store and the lock CAS a concurrent flusher may
// already have drained the slot (and a producer may even have re-reserved
// it), so the state is re-checked under the lock. Only the lock holder ever
// revokes ready, so the check is stable for the duration of the write.
func (p *Pool) writeCommitted(w io.Writer, i int) {
	if !atomic.CompareAndSwapInt32(&p.writeLock, lockFree, lockFlushing) {
		// Someone else is flushing or shutdown has begun; leave it ready
		metrics.FlushLockContended.Inc()
		return
	}
	if atomic.LoadInt32(&p.states[i]) == slotReady {
		p.writeSlot(w, i)
	}
	atomic.StoreInt32(&p.writeLock, lockFree)
}

// Flush drains every ready slot to the sink if the write lock can be
// acquired, and gives up immediately otherwise. Safe to call from any
// goroutine at any time.
func (p *Pool) Flush(w io.Writer) {
	p.flushReady(w)
}

// flushReady scans all slots; on the first ready one it tries a single CAS
// on the write lock. Failure aborts the whole scan: another goroutine is
// already flushing, or shutdown is in progress. On success the lock is held
// for the remainder of the scan and every ready slot encountered is written.
func (p *Pool) flushReady(w io.Writer) {
	hasLock := false
	for i := 0; i < p.bufferCount; i++ {
		if atomic.LoadInt32(&p.states[i]) != slotReady {
			continue
		}
		if !hasLock {
			if !atomic.CompareAndSwapInt32(&p.writeLock, lockFree, lockFlushing) {
				metrics.FlushLockContended.Inc()
				return
			}
			hasLock = true
		}
		p.writeSlot(w, i)
	}
	if hasLock {
		atomic.StoreInt32(&p.writeLock, lockFree)
	}
}

// writeSlot issues one sink write of slot i's remaining window. A full
// write recycles the slot; a partial write advances the window and leaves
// the slot ready for a later attempt; an error or zero-length write leaves
// the slot untouched so no bytes are lost or re-emitted. Must only be
// called while holding the write lock.
func (p *Pool) writeSlot(w io.Writer, i int) {
	sl := &p.slots[i]
	start := i*p.bufferSize + sl.dataOffset
	n, err := w.Write(p.slab[start : start+sl.dataSize])

	switch {
	case n == sl.dataSize:
		atomic.StoreInt32(&p.states[i], slotUnused)
		metrics.FlushedBytes.Add(float64(n))
	case n > 0:
		sl.dataOffset += n
		sl.dataSize -= n
		metrics.FlushedBytes.Add(float64(n))
		metrics.PartialWrites.Inc()
	default:
		// Nothing consumed; the bytes stay buffered for the next flush
	}

	if err != nil {
		metrics.SinkWriteErrors.Inc()
	}
}

// Shutdown permanently acquires the write lock and performs one final
// best-effort drain of every ready slot. The lock is never released, so
// all future reservations, commits and flushes against this pool fail
// their lock CAS and become no-ops.
//
// Acquisition spins with a short sleep: flush holders only ever do one
// bounded scan, so the wait is short. Slots still being filled by a
// producer at shutdown time are abandoned; their data is never written.
// Calling Shutdown on an already shut down pool returns without draining
// again.
func (p *Pool) Shutdown(w io.Writer) {
	for !atomic.CompareAndSwapInt32(&p.writeLock, lockFree, lockShutdown) {
		if atomic.LoadInt32(&p.writeLock) == lockShutdown {
			return
		}
		time.Sleep(shutdownRetryDelay)
	}

	// Last chance to flush; partial writes here are final
	for i := 0; i < p.bufferCount; i++ {
		if atomic.LoadInt32(&p.states[i]) == slotReady {
			p.writeSlot(w, i)
		}
	}
}

// Closed reports whether Shutdown has permanently sealed the pool.
func (p *Pool) Closed() bool {
	return atomic.LoadInt32(&p.writeLock) == lockShutdown
}

// Stats returns a snapshot of slot occupancy for monitoring.
func (p *Pool) Stats() Stats {
	var st Stats
	for i := 0; i < p.bufferCount; i++ {
		switch atomic.LoadInt32(&p.states[i]) {
		case slotFilling:
			st.Filling++
		case slotReady:
			st.Ready++
		default:
			st.Unused++
		}
	}
	st.Closed = p.Closed()
	return st
}
