package serialport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

var _ Opener = Open

// Open opens the serial device at path. The read timeout is left to the
// caller through Port.SetReadTimeout.
func Open(path string, opts Options) (Port, error) {
	opts, err := opts.Normalise()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	return &devicePort{port: port, mode: *mode}, nil
}

// devicePort adapts serial.Port to Port. SetMode applies to the open handle,
// so a reader goroutine keeps reading across speed changes.
type devicePort struct {
	port serial.Port

	mu   sync.Mutex
	mode serial.Mode
}

func (d *devicePort) Read(p []byte) (int, error) {
	return d.port.Read(p)
}

func (d *devicePort) Write(p []byte) (int, error) {
	return d.port.Write(p)
}

func (d *devicePort) Close() error {
	return d.port.Close()
}

func (d *devicePort) SetReadTimeout(timeout time.Duration) error {
	return d.port.SetReadTimeout(timeout)
}

func (d *devicePort) SetBaudRate(baud int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	mode := d.mode
	mode.BaudRate = baud
	if err := d.port.SetMode(&mode); err != nil {
		return fmt.Errorf("failed to set baud rate %d: %w", baud, err)
	}
	d.mode = mode

	// Bytes the driver buffered at the old speed are garbage now.
	_ = d.port.ResetInputBuffer()
	return nil
}
