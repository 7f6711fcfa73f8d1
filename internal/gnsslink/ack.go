package gnsslink

import (
	"bytes"
	"fmt"
	"time"
)

// AckToken is the receiver's acknowledgment. Any received chunk containing it
// acknowledges the last command.
var AckToken = []byte("OK!")

// WaitForAck polls the chunk queue every AckPollInterval, popping at most one
// chunk per poll, until a chunk contains AckToken. It gives up after
// ceil(timeout/AckPollInterval) polls with ErrAckTimeout.
func (m *Manager) WaitForAck(timeout time.Duration) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.waitForAck(timeout)
}

func (m *Manager) waitForAck(timeout time.Duration) error {
	interval := m.cfg.AckPollInterval
	polls := int((timeout + interval - 1) / interval)
	for i := 0; i < polls; i++ {
		m.clock.Sleep(interval)
		chunk, ok := m.queue.Pop()
		if ok && bytes.Contains(chunk, AckToken) {
			return nil
		}
	}
	return ErrAckTimeout
}

// ProbeConnection writes the probe command and waits up to timeout for the
// acknowledgment. A nil error means the receiver is listening at the current
// speed.
func (m *Manager) ProbeConnection(timeout time.Duration) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.probeLocked(timeout, false)
}

// probeLocked sends "\r\n<probe>\r\n"; the leading CRLF terminates whatever
// partial line the receiver was holding. Muted probes report nothing.
func (m *Manager) probeLocked(timeout time.Duration, mute bool) error {
	l, err := m.openLink()
	if err != nil {
		return err
	}
	if err := l.write([]byte("\r\n" + m.cfg.ProbeCommand + "\r\n")); err != nil {
		m.report(Event{Kind: EventTransportError, Command: m.cfg.ProbeCommand, Err: err})
		return fmt.Errorf("write probe: %w", err)
	}

	err = m.waitForAck(timeout)
	if !mute {
		msg := "OK!"
		if err != nil {
			msg = "ERR"
		}
		m.report(Event{Kind: EventProbe, Command: m.cfg.ProbeCommand, Message: msg})
	}
	return err
}
