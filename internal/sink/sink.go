package sink

import "io"

// Sink is a byte-oriented flush destination for the buffer pool.
// Write follows the io.Writer contract with one addition the pool relies
// on: a partial write (0 < n < len(p)) consumes exactly the first n bytes,
// and a failed write consumes nothing. Sinks must never retain p past the
// call; the underlying buffer is recycled by the pool.
type Sink interface {
	io.Writer

	// Sync forces buffered data to the destination, where that applies
	Sync() error

	// Close releases the destination; Write must not be called afterwards
	Close() error
}
