package serialport

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SwitchMarker identifies a receiver command that changes the port speed.
// The new speed is the last field of the command. It mirrors
// gnsslink.SpeedChangeMarker; serialport keeps its own copy because gnsslink
// imports serialport, and a gnsslink test keeps the two equal.
const SwitchMarker = "COM COM"

// SimulatedReceiver is a Port backed by an in-memory GNSS receiver. The
// receiver only understands the host when both sides use the same speed;
// output produced at one speed and read at another arrives garbled. Every
// complete command line is answered with a response containing OK!.
type SimulatedReceiver struct {
	mu sync.Mutex

	deviceBaud  int
	portBaud    int
	closed      bool
	mute        bool
	failSwitch  bool
	readTimeout time.Duration

	line    []byte
	pending []emission
	writes  []SimulatedWrite
}

// SimulatedWrite records a host write and the speed the host used.
type SimulatedWrite struct {
	Baud int
	Data []byte
}

type emission struct {
	baud int
	data []byte
}

// NewSimulatedReceiver returns a receiver listening at deviceBaud. The host
// side starts at deviceBaud too; MockOpener.Open or SetBaudRate move it.
func NewSimulatedReceiver(deviceBaud int) *SimulatedReceiver {
	return &SimulatedReceiver{deviceBaud: deviceBaud, portBaud: deviceBaud}
}

// SetMute makes the receiver stop answering commands.
func (r *SimulatedReceiver) SetMute(mute bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mute = mute
}

// SetFailSwitch makes the receiver acknowledge speed change commands but stay
// at its current speed.
func (r *SimulatedReceiver) SetFailSwitch(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSwitch = fail
}

// SetDeviceBaud moves the receiver to baud, as after a power cycle with a
// different saved configuration.
func (r *SimulatedReceiver) SetDeviceBaud(baud int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deviceBaud = baud
	r.line = r.line[:0]
}

// Emit queues unsolicited receiver output at the receiver's current speed.
func (r *SimulatedReceiver) Emit(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, emission{baud: r.deviceBaud, data: bytes.Clone(data)})
}

// DeviceBaud returns the speed the receiver talks at.
func (r *SimulatedReceiver) DeviceBaud() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deviceBaud
}

// PortBaud returns the speed the host side is configured at.
func (r *SimulatedReceiver) PortBaud() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.portBaud
}

// Writes returns every host write in order.
func (r *SimulatedReceiver) Writes() []SimulatedWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SimulatedWrite, len(r.writes))
	copy(out, r.writes)
	return out
}

// WriteBaudsContaining returns the host speed of each write that contains
// substr, in order.
func (r *SimulatedReceiver) WriteBaudsContaining(substr string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var bauds []int
	for _, w := range r.writes {
		if bytes.Contains(w.Data, []byte(substr)) {
			bauds = append(bauds, w.Baud)
		}
	}
	return bauds
}

func (r *SimulatedReceiver) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrPortClosed
	}
	if len(r.pending) == 0 {
		return 0, nil
	}

	head := &r.pending[0]
	data := head.data
	if head.baud != r.portBaud {
		data = garble(data)
	}
	n := copy(p, data)
	if n < len(head.data) {
		head.data = head.data[n:]
	} else {
		r.pending = r.pending[1:]
	}
	return n, nil
}

func (r *SimulatedReceiver) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrPortClosed
	}
	r.writes = append(r.writes, SimulatedWrite{Baud: r.portBaud, Data: bytes.Clone(p)})

	if r.portBaud != r.deviceBaud {
		// Framing errors on the receiver side; nothing usable arrives.
		r.line = r.line[:0]
		return len(p), nil
	}

	r.line = append(r.line, p...)
	for {
		i := bytes.IndexByte(r.line, '\n')
		if i < 0 {
			break
		}
		cmd := strings.TrimSpace(string(r.line[:i]))
		r.line = r.line[i+1:]
		if cmd != "" {
			r.handleLocked(cmd)
		}
	}
	return len(p), nil
}

func (r *SimulatedReceiver) handleLocked(cmd string) {
	if r.mute {
		return
	}
	r.respondLocked(cmd)

	if !strings.Contains(cmd, SwitchMarker) {
		return
	}
	fields := strings.Fields(cmd)
	baud, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || baud <= 0 {
		return
	}
	if r.failSwitch {
		return
	}
	r.deviceBaud = baud
}

func (r *SimulatedReceiver) respondLocked(cmd string) {
	body := fmt.Sprintf("command,%s,response: OK!", cmd)
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	line := fmt.Sprintf("$%s*%02X\r\n", body, sum)
	r.pending = append(r.pending, emission{baud: r.deviceBaud, data: []byte(line)})
}

func (r *SimulatedReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *SimulatedReceiver) SetBaudRate(baud int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrPortClosed
	}
	r.portBaud = baud
	r.line = r.line[:0]
	return nil
}

func (r *SimulatedReceiver) SetReadTimeout(timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readTimeout = timeout
	return nil
}

func (r *SimulatedReceiver) reopen(baud int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = false
	if baud > 0 {
		r.portBaud = baud
	}
	r.line = r.line[:0]
	r.pending = nil
}

// garble maps bytes received at the wrong speed to high-bit noise, which
// never contains ASCII tokens.
func garble(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = 0x80 | (b*7)&0x7f
	}
	return out
}
