//go:build linux

package sink

import (
	"os"

	"golang.org/x/sys/unix"
)

// writeFile issues a single write(2) on the file's descriptor. Unlike
// (*os.File).Write it does not loop on short writes, so the pool sees the
// true partial-write behavior of the descriptor.
func writeFile(f *os.File, p []byte) (int, error) {
	n, err := unix.Write(int(f.Fd()), p)
	if n < 0 {
		n = 0
	}
	return n, err
}
