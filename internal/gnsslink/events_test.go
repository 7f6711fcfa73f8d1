package gnsslink

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_String(t *testing.T) {
	tests := []struct {
		e    Event
		want string
	}{
		{Event{Kind: EventConnected, Path: "/dev/ttyUSB0", Baud: 115200}, "Connected to /dev/ttyUSB0 at 115200 baud"},
		{Event{Kind: EventBaudDetected, Baud: 38400}, "Device responded at baudrate: 38400"},
		{Event{Kind: EventBaudNotFound}, "No valid baudrate found"},
		{Event{Kind: EventCommandAcked, Command: "log version"}, "log version: OK!"},
		{Event{Kind: EventProbe, Baud: 9600, Message: "ERR"}, "Probe at 9600 baud: ERR"},
		{Event{Kind: EventNotOpen, Message: "connection is not open"}, "not_open (connection is not open)"},
		{Event{Kind: EventReadError, Err: errors.New("framing error")}, "read_error: framing error"},
		{Event{Kind: EventCommandFailed, Command: "x", Message: "receiver not responding", Err: ErrAckTimeout},
			"x: ERR (receiver not responding): timed out waiting for acknowledgment"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.e.String())
	}
}

func TestMultiStatus(t *testing.T) {
	var a, b []EventKind
	fn := MultiStatus(
		func(e Event) { a = append(a, e.Kind) },
		nil,
		func(e Event) { b = append(b, e.Kind) },
	)
	fn(Event{Kind: EventConnecting})
	fn(Event{Kind: EventConnected})

	want := []EventKind{EventConnecting, EventConnected}
	assert.Equal(t, want, a)
	assert.Equal(t, want, b)
}

func TestLogStatus(t *testing.T) {
	var lines []string
	fn := LogStatus(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	fn(Event{Kind: EventDisconnected, Path: "/dev/ttyS0"})
	assert.Equal(t, []string{"Disconnected from /dev/ttyS0"}, lines)
}

func TestReport_FillsLinkFields(t *testing.T) {
	m, _, rec := newSimulated(t, 19200, 19200)
	m.report(Event{Kind: EventProbe})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	e := rec.events[0]
	assert.Equal(t, "/dev/ttySIM0", e.Path)
	assert.Equal(t, 19200, e.Baud)
	assert.False(t, e.Time.IsZero())
}
