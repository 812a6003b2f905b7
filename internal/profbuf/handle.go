package profbuf

import "errors"

// ErrSlotFull is returned by Append when a record does not fit in the
// slot's remaining capacity. Records are never split across slots.
var ErrSlotFull = errors.New("profbuf: record does not fit in slot")

// Handle is an exclusive view of one slot in the filling state. It is
// valid from a successful Reserve until the matching Commit; after Commit
// the slot belongs to the flush side and the handle must not be reused.
// A handle must only be used by the goroutine that reserved it.
type Handle struct {
	pool   *Pool
	index  int
	buf    []byte
	filled int
}

// Append copies one complete record into the slot. Returns ErrSlotFull
// without consuming anything if the record does not fit.
func (h *Handle) Append(record []byte) error {
	if len(record) > len(h.buf)-h.filled {
		return ErrSlotFull
	}
	copy(h.buf[h.filled:], record)
	h.filled += len(record)
	return nil
}

// Len returns the number of payload bytes written so far.
func (h *Handle) Len() int {
	return h.filled
}

// Cap returns the slot's total payload capacity.
func (h *Handle) Cap() int {
	return len(h.buf)
}

// Remaining returns the unfilled capacity in bytes.
func (h *Handle) Remaining() int {
	return len(h.buf) - h.filled
}
