package gnsslink

import (
	"fmt"
	"time"
)

// EventKind classifies a status event.
type EventKind string

const (
	EventConnecting       EventKind = "connecting"
	EventConnected        EventKind = "connected"
	EventDisconnected     EventKind = "disconnected"
	EventNotOpen          EventKind = "not_open"
	EventTransportError   EventKind = "transport_error"
	EventReadError        EventKind = "read_error"
	EventBaudMismatch     EventKind = "baud_mismatch"
	EventBaudTrying       EventKind = "baud_trying"
	EventBaudDetected     EventKind = "baud_detected"
	EventBaudNotFound     EventKind = "baud_not_found"
	EventProbe            EventKind = "probe"
	EventCommandSent      EventKind = "command_sent"
	EventCommandAcked     EventKind = "command_acked"
	EventCommandFailed    EventKind = "command_failed"
	EventSwitchStarted    EventKind = "switch_started"
	EventSwitchCompleted  EventKind = "switch_completed"
	EventSwitchRolledBack EventKind = "switch_rolled_back"
)

// Event is a status report from the link manager. Path, Baud and Time are
// filled in by the manager when the event is emitted.
type Event struct {
	Time    time.Time
	Kind    EventKind
	Path    string
	Baud    int
	Command string
	Message string
	Err     error
}

// String renders the event as a single human-readable line.
func (e Event) String() string {
	var s string
	switch e.Kind {
	case EventConnecting:
		s = fmt.Sprintf("Connecting to %s at %d baud", e.Path, e.Baud)
	case EventConnected:
		s = fmt.Sprintf("Connected to %s at %d baud", e.Path, e.Baud)
	case EventDisconnected:
		s = fmt.Sprintf("Disconnected from %s", e.Path)
	case EventBaudMismatch:
		s = fmt.Sprintf("No response at %d baud, detecting baud rate", e.Baud)
	case EventBaudTrying:
		s = fmt.Sprintf("Trying %d", e.Baud)
	case EventBaudDetected:
		s = fmt.Sprintf("Device responded at baudrate: %d", e.Baud)
	case EventBaudNotFound:
		s = "No valid baudrate found"
	case EventProbe:
		s = fmt.Sprintf("Probe at %d baud: %s", e.Baud, e.Message)
	case EventCommandSent:
		s = fmt.Sprintf("%s: sent", e.Command)
	case EventCommandAcked:
		s = fmt.Sprintf("%s: OK!", e.Command)
	case EventCommandFailed:
		s = fmt.Sprintf("%s: ERR", e.Command)
	case EventSwitchStarted:
		s = fmt.Sprintf("%s: switching to %d baud", e.Command, e.Baud)
	case EventSwitchCompleted:
		s = fmt.Sprintf("%s: now at %d baud", e.Command, e.Baud)
	case EventSwitchRolledBack:
		s = fmt.Sprintf("%s: no response, restored %d baud", e.Command, e.Baud)
	default:
		s = string(e.Kind)
	}
	if e.Message != "" && e.Kind != EventProbe {
		s += " (" + e.Message + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// StatusFunc receives status events. It is called from both the foreground
// and the background reader goroutine, so implementations must be safe for
// concurrent use.
type StatusFunc func(Event)

// MultiStatus fans every event out to each non-nil sink in order.
func MultiStatus(fns ...StatusFunc) StatusFunc {
	var sinks []StatusFunc
	for _, fn := range fns {
		if fn != nil {
			sinks = append(sinks, fn)
		}
	}
	return func(e Event) {
		for _, fn := range sinks {
			fn(e)
		}
	}
}

// LogStatus adapts a printf-style logger into a StatusFunc.
func LogStatus(logf func(format string, v ...interface{})) StatusFunc {
	return func(e Event) {
		logf("%s", e)
	}
}
