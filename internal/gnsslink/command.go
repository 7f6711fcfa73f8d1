package gnsslink

import (
	"fmt"
	"strconv"
	"strings"
)

// SpeedChangeMarker identifies a command that changes the receiver's port
// speed. The new speed is the command's last field.
const SpeedChangeMarker = "COM COM"

// Command is a line sent to the receiver. It is either a PlainCommand or a
// SpeedChangeCommand.
type Command interface {
	// Line returns the command text without terminator.
	Line() string
	isCommand()
}

// PlainCommand is acknowledged by the receiver with OK!.
type PlainCommand struct {
	Text string
}

func (c PlainCommand) Line() string { return c.Text }
func (PlainCommand) isCommand()     {}

// SpeedChangeCommand moves the receiver to Baud; the local port follows.
type SpeedChangeCommand struct {
	Text string
	Baud int
}

func (c SpeedChangeCommand) Line() string { return c.Text }
func (SpeedChangeCommand) isCommand()     {}

// ParseCommand classifies text once, at the call boundary.
func ParseCommand(text string) (Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	if !strings.Contains(text, SpeedChangeMarker) {
		return PlainCommand{Text: text}, nil
	}

	fields := strings.Fields(text)
	baud, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || baud <= 0 {
		return nil, fmt.Errorf("%w: %q has no trailing baud rate", ErrInvalidCommand, text)
	}
	return SpeedChangeCommand{Text: text, Baud: baud}, nil
}

// Result is the outcome of one command sent by SendSettings.
type Result struct {
	Command string
	Err     error
}

// OK reports whether the command was acknowledged.
func (r Result) OK() bool { return r.Err == nil }

// SendSetting parses text and sends it. Plain commands wait AckTimeout for
// OK!; speed change commands run the switch protocol.
func (m *Manager) SendSetting(text string) error {
	cmd, err := ParseCommand(text)
	if err != nil {
		m.report(Event{Kind: EventCommandFailed, Command: text, Err: err})
		return err
	}
	return m.SendCommand(cmd)
}

// SendSettings sends each setting in order. A failure does not stop the
// remaining settings.
func (m *Manager) SendSettings(settings []string) []Result {
	results := make([]Result, 0, len(settings))
	for _, s := range settings {
		results = append(results, Result{Command: s, Err: m.SendSetting(s)})
	}
	return results
}

// SendCommand sends an already classified command.
func (m *Manager) SendCommand(cmd Command) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.sendCommandLocked(cmd)
}

func (m *Manager) sendCommandLocked(cmd Command) error {
	l, err := m.openLink()
	if err != nil {
		return err
	}

	line := cmd.Line()
	switch c := cmd.(type) {
	case SpeedChangeCommand:
		return m.switchBaudLocked(l, c)
	case PlainCommand:
		if err := l.write([]byte(line + "\r\n")); err != nil {
			m.report(Event{Kind: EventCommandFailed, Command: line, Err: err})
			return fmt.Errorf("write %q: %w", line, err)
		}
		m.report(Event{Kind: EventCommandSent, Command: line})
		if err := m.waitForAck(m.cfg.AckTimeout); err != nil {
			m.report(Event{Kind: EventCommandFailed, Command: line})
			return fmt.Errorf("%q: %w", line, err)
		}
		m.report(Event{Kind: EventCommandAcked, Command: line})
		return nil
	default:
		return fmt.Errorf("%w: unsupported command type %T", ErrInvalidCommand, cmd)
	}
}

// Send writes data as is, without terminator or acknowledgment. Use it for
// payloads the receiver does not acknowledge line by line.
func (m *Manager) Send(data []byte) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	l, err := m.openLink()
	if err != nil {
		return err
	}
	if err := l.write(data); err != nil {
		m.report(Event{Kind: EventTransportError, Err: err})
		return fmt.Errorf("write %d bytes: %w", len(data), err)
	}
	return nil
}
