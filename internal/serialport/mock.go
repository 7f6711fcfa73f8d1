package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by the test doubles after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestablePort implements Port with configurable behaviour for testing.
// Reads never block: an empty read buffer behaves like a read timeout.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// BaudError is returned by the next SetBaudRate call if set
	BaudError error

	// CloseError is returned by Close if set
	CloseError error

	// TimeoutError is returned by the next SetReadTimeout call if set
	TimeoutError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// BaudRate is the currently configured speed
	BaudRate int

	// BaudChanges records every successful SetBaudRate call in order
	BaudChanges []int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration
}

// NewTestablePort creates a new TestablePort configured at baud.
func NewTestablePort(baud int) *TestablePort {
	return &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		BaudRate:    baud,
	}
}

// Read reads from the read buffer, returning 0, nil when it is empty.
func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, ErrPortClosed
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer.
func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, ErrPortClosed
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	return t.CloseError
}

// SetBaudRate records the new speed.
func (t *TestablePort) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.BaudError != nil {
		err := t.BaudError
		t.BaudError = nil
		return err
	}
	t.BaudRate = baud
	t.BaudChanges = append(t.BaudChanges, baud)
	return nil
}

// SetReadTimeout implements Port.
func (t *TestablePort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.TimeoutError != nil {
		err := t.TimeoutError
		t.TimeoutError = nil
		return err
	}
	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
}

// GetWrittenData returns a copy of all data written to the port.
func (t *TestablePort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return bytes.Clone(t.WriteBuffer.Bytes())
}

// CurrentBaudRate returns the configured speed.
func (t *TestablePort) CurrentBaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.BaudRate
}

// IsClosed reports whether Close was called.
func (t *TestablePort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// reopener is implemented by doubles that reset their state when handed out
// again by MockOpener.
type reopener interface {
	reopen(baud int)
}

func (t *TestablePort) reopen(baud int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = false
	if baud > 0 {
		t.BaudRate = baud
	}
}

// MockOpener records Open calls and hands out a fixed port.
type MockOpener struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port Port

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path    string
	Options Options
}

// NewMockOpener creates a new MockOpener.
func NewMockOpener(port Port) *MockOpener {
	return &MockOpener{Port: port}
}

// Open returns the configured port or error. It has the Opener signature so
// callers can pass the method value.
func (o *MockOpener) Open(path string, opts Options) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.OpenCalls = append(o.OpenCalls, MockOpenCall{Path: path, Options: opts})

	if o.Error != nil {
		return nil, o.Error
	}
	if r, ok := o.Port.(reopener); ok {
		r.reopen(opts.BaudRate)
	}
	return o.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (o *MockOpener) LastCall() *MockOpenCall {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.OpenCalls) == 0 {
		return nil
	}
	return &o.OpenCalls[len(o.OpenCalls)-1]
}
