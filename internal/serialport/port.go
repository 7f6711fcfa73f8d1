// Package serialport provides the transport used by the GNSS link manager: a
// small Port abstraction over a serial device whose speed can be changed
// while it stays open, a go.bug.st/serial implementation and test doubles.
package serialport

import (
	"io"
	"time"
)

// Port defines the minimal interface needed for a receiver serial port.
// This abstraction enables unit testing without real serial hardware.
type Port interface {
	io.ReadWriter
	io.Closer
	// SetBaudRate reconfigures the speed of the already open port. Readers
	// blocked on the same handle keep running.
	SetBaudRate(baud int) error
	// SetReadTimeout bounds how long Read waits for data. A Read that times
	// out returns 0, nil.
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens a port at path with the given options.
type Opener func(path string, opts Options) (Port, error)
