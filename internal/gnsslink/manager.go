// Package gnsslink manages the serial link to a GNSS receiver whose baud rate
// is not known up front. A Manager opens the port, ingests bytes in the
// background, sends CRLF-terminated commands and waits for the receiver's
// OK! acknowledgment, detects the receiver's speed when the configured one is
// wrong, and changes the speed on both ends at runtime with rollback.
package gnsslink

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/gnsslink/internal/monitoring"
	"github.com/banshee-data/gnsslink/internal/serialport"
	"github.com/banshee-data/gnsslink/internal/timeutil"
)

// DefaultCandidateBauds lists the speeds tried during detection, most likely
// first.
var DefaultCandidateBauds = []int{115200, 921600, 57600, 38400, 19200, 9600, 230400, 460800, 4800, 1200}

// Config holds the protocol timings of a Manager. Zero fields take the
// defaults from DefaultConfig.
type Config struct {
	// ProbeCommand is the benign query used to check the receiver listens.
	ProbeCommand string
	// CandidateBauds is the detection order.
	CandidateBauds []int
	// ReadChunkSize bounds a single background read.
	ReadChunkSize int
	// ReaderInterval is the pause between background reads.
	ReaderInterval time.Duration
	// AckPollInterval is the pause between queue polls while waiting for OK!.
	AckPollInterval time.Duration
	// AckTimeout bounds the wait after a plain command or a speed change.
	AckTimeout time.Duration
	// ConnectProbeTimeout bounds the first probe after opening the port.
	ConnectProbeTimeout time.Duration
	// DetectProbeTimeout bounds the probe of each detection candidate.
	DetectProbeTimeout time.Duration
	// DetectSettle is the pause after re-speeding during detection.
	DetectSettle time.Duration
	// SwitchApplyDelay is the time given to the receiver to apply a speed
	// change command before the local port follows.
	SwitchApplyDelay time.Duration
	// SwitchSettle is the pause after the local port changed speed.
	SwitchSettle time.Duration
}

// DefaultConfig returns the timings the receiver protocol was tuned with.
func DefaultConfig() Config {
	return Config{
		ProbeCommand:        "log versionb",
		CandidateBauds:      DefaultCandidateBauds,
		ReadChunkSize:       1024,
		ReaderInterval:      50 * time.Millisecond,
		AckPollInterval:     200 * time.Millisecond,
		AckTimeout:          10 * time.Second,
		ConnectProbeTimeout: 3 * time.Second,
		DetectProbeTimeout:  time.Second,
		DetectSettle:        100 * time.Millisecond,
		SwitchApplyDelay:    200 * time.Millisecond,
		SwitchSettle:        200 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ProbeCommand == "" {
		c.ProbeCommand = d.ProbeCommand
	}
	if len(c.CandidateBauds) == 0 {
		c.CandidateBauds = d.CandidateBauds
	}
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = d.ReadChunkSize
	}
	if c.ReaderInterval <= 0 {
		c.ReaderInterval = d.ReaderInterval
	}
	if c.AckPollInterval <= 0 {
		c.AckPollInterval = d.AckPollInterval
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = d.AckTimeout
	}
	if c.ConnectProbeTimeout <= 0 {
		c.ConnectProbeTimeout = d.ConnectProbeTimeout
	}
	if c.DetectProbeTimeout <= 0 {
		c.DetectProbeTimeout = d.DetectProbeTimeout
	}
	if c.DetectSettle <= 0 {
		c.DetectSettle = d.DetectSettle
	}
	if c.SwitchApplyDelay <= 0 {
		c.SwitchApplyDelay = d.SwitchApplyDelay
	}
	if c.SwitchSettle <= 0 {
		c.SwitchSettle = d.SwitchSettle
	}
	return c
}

// State is the connection state of a Manager.
type State int32

const (
	StateDisconnected State = iota
	StateOpening
	StateProbing
	StateDetecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateOpening:
		return "opening"
	case StateProbing:
		return "probing"
	case StateDetecting:
		return "detecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// link is the open transport. The configured speed lives on the Manager so
// it survives reconnects.
type link struct {
	port serialport.Port
	open atomic.Bool
}

func (l *link) write(p []byte) error {
	n, err := l.port.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return ErrWriteFailed
	}
	return nil
}

// Manager owns the single link to a receiver. Foreground operations are
// serialised; the background reader talks to them only through the chunk
// queue and its lifecycle flag.
type Manager struct {
	path   string
	opts   serialport.Options
	cfg    Config
	open   serialport.Opener
	clock  timeutil.Clock
	status StatusFunc

	// opMu serialises foreground operations (CLI, admin routes).
	opMu   sync.Mutex
	link   atomic.Pointer[link]
	reader *reader
	baud   atomic.Int64
	state  atomic.Int32
	queue  *ChunkQueue

	subscriberMu sync.Mutex
	subscribers  map[string]chan []byte
	closed       bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig sets the protocol timings.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg.withDefaults() }
}

// WithOpener replaces the transport opener, serialport.Open by default.
func WithOpener(open serialport.Opener) Option {
	return func(m *Manager) { m.open = open }
}

// WithClock replaces the clock used for every sleep and timestamp.
func WithClock(clock timeutil.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithStatus sets the status sink. The default logs through
// monitoring.Logf.
func WithStatus(fn StatusFunc) Option {
	return func(m *Manager) { m.status = fn }
}

// New creates a Manager for the device at path. opts.BaudRate is the speed
// tried first on Connect.
func New(path string, opts serialport.Options, options ...Option) *Manager {
	m := &Manager{
		path:        path,
		opts:        opts,
		cfg:         DefaultConfig(),
		open:        serialport.Open,
		clock:       timeutil.RealClock{},
		status:      LogStatus(monitoring.Tagged("gnsslink")),
		queue:       NewChunkQueue(),
		subscribers: make(map[string]chan []byte),
	}
	for _, o := range options {
		o(m)
	}
	baud := opts.BaudRate
	if baud <= 0 {
		baud = serialport.DefaultBaudRate
	}
	m.baud.Store(int64(baud))
	return m
}

// Path returns the device path.
func (m *Manager) Path() string { return m.path }

// Baud returns the configured link speed. After a successful detection or
// speed change it is the speed the receiver answers at.
func (m *Manager) Baud() int { return int(m.baud.Load()) }

// State returns the current connection state.
func (m *Manager) State() State { return State(m.state.Load()) }

// IsOpen reports whether the transport is open.
func (m *Manager) IsOpen() bool {
	l := m.link.Load()
	return l != nil && l.open.Load()
}

// Pending returns the number of unread chunks.
func (m *Manager) Pending() int { return m.queue.Len() }

// Data pops the oldest received chunk without blocking.
func (m *Manager) Data() ([]byte, bool) { return m.queue.Pop() }

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

func (m *Manager) report(e Event) {
	if m.status == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = m.clock.Now()
	}
	if e.Path == "" {
		e.Path = m.path
	}
	if e.Baud == 0 {
		e.Baud = m.Baud()
	}
	m.status(e)
}

// openLink returns the link if it is open, reporting otherwise.
func (m *Manager) openLink() (*link, error) {
	l := m.link.Load()
	if l == nil || !l.open.Load() {
		m.report(Event{Kind: EventNotOpen, Message: "connection is not open"})
		return nil, ErrNotOpen
	}
	return l, nil
}

// readTimeout bounds each background read so the reader notices a
// disconnect promptly.
func (m *Manager) readTimeout() time.Duration {
	if m.opts.ReadTimeout > 0 {
		return m.opts.ReadTimeout
	}
	return serialport.DefaultReadTimeout
}

// setBaudLocked re-speeds the open port. The configured speed only changes
// once the transport accepted the new one, so both always agree.
func (m *Manager) setBaudLocked(l *link, baud int) error {
	if err := l.port.SetBaudRate(baud); err != nil {
		return err
	}
	m.baud.Store(int64(baud))
	return nil
}

// Connect opens the transport at the configured speed, starts the
// background reader and probes the receiver. When the probe fails it detects
// the receiver's speed. Connect on an open link does nothing.
func (m *Manager) Connect() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.connectLocked()
}

func (m *Manager) connectLocked() error {
	if m.IsOpen() {
		return nil
	}

	m.setState(StateOpening)
	baud := m.Baud()
	m.report(Event{Kind: EventConnecting, Baud: baud})

	port, err := m.open(m.path, m.opts.WithBaudRate(baud))
	if err != nil {
		m.setState(StateFailed)
		m.report(Event{Kind: EventTransportError, Err: err})
		m.setState(StateDisconnected)
		return fmt.Errorf("%w: %s at %d baud: %w", ErrTransportOpen, m.path, baud, err)
	}

	if err := port.SetReadTimeout(m.readTimeout()); err != nil {
		port.Close()
		m.setState(StateFailed)
		m.report(Event{Kind: EventTransportError, Message: "failed to set read timeout", Err: err})
		m.setState(StateDisconnected)
		return fmt.Errorf("%w: %s: set read timeout: %w", ErrTransportOpen, m.path, err)
	}

	l := &link{port: port}
	l.open.Store(true)
	m.link.Store(l)
	m.queue.Drain()
	m.reader = m.startReader(l)

	m.setState(StateProbing)
	if err := m.probeLocked(m.cfg.ConnectProbeTimeout, true); err == nil {
		m.setState(StateConnected)
		m.report(Event{Kind: EventConnected})
		return nil
	}

	m.report(Event{Kind: EventBaudMismatch, Baud: baud})
	m.setState(StateDetecting)
	if _, err := m.detectLocked(); err != nil {
		m.setState(StateFailed)
		m.disconnectLocked()
		return err
	}

	m.setState(StateConnected)
	m.report(Event{Kind: EventConnected})
	return nil
}

// Disconnect stops the background reader and closes the transport. It
// returns false, without error, when there was nothing to disconnect.
func (m *Manager) Disconnect() bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.disconnectLocked()
}

func (m *Manager) disconnectLocked() bool {
	l := m.link.Load()
	if l == nil || !l.open.Load() {
		m.setState(StateDisconnected)
		m.report(Event{Kind: EventNotOpen, Message: "no active connection to disconnect"})
		return false
	}

	if m.reader != nil {
		m.reader.stop()
	}
	l.open.Store(false)
	if err := l.port.Close(); err != nil {
		m.report(Event{Kind: EventTransportError, Err: err})
	}
	if m.reader != nil {
		m.reader.wait()
		m.reader = nil
	}

	m.setState(StateDisconnected)
	m.report(Event{Kind: EventDisconnected})
	return true
}

// Close disconnects and ends every raw-tap subscription. The Manager must not
// be used afterwards.
func (m *Manager) Close() error {
	m.Disconnect()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.closed = true
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return nil
}
