package serialport

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the speed most receivers ship with.
	DefaultBaudRate = 9600
	// DefaultReadTimeout keeps background reads short so the reader can
	// notice a disconnect quickly.
	DefaultReadTimeout = 50 * time.Millisecond
)

// Options describes the serial connection parameters used when opening a
// port.
type Options struct {
	BaudRate    int           `json:"baud_rate" yaml:"baud_rate"`
	DataBits    int           `json:"data_bits" yaml:"data_bits"`
	StopBits    int           `json:"stop_bits" yaml:"stop_bits"`
	Parity      string        `json:"parity" yaml:"parity"`
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`
}

// Normalise validates the options and applies defaults for any unset values.
func (o Options) Normalise() (Options, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}

	return opts, nil
}

// WithBaudRate returns a copy of the options at a different speed.
func (o Options) WithBaudRate(baud int) Options {
	o.BaudRate = baud
	return o
}

// SerialMode converts the options into the serial.Mode structure required by
// go.bug.st/serial.
func (o Options) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalise()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}

	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", opts.Parity)
	}

	return mode, nil
}
