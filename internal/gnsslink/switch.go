package gnsslink

import "fmt"

// switchBaudLocked changes the speed of both ends:
//
//  1. probe at the current speed, abort if the receiver is silent
//  2. drain, send the command at the current speed, give the receiver
//     SwitchApplyDelay to apply it (its acknowledgment is not checked)
//  3. re-speed the local port, settle, drain
//  4. probe at the new speed; on silence restore the old speed
func (m *Manager) switchBaudLocked(l *link, cmd SpeedChangeCommand) error {
	old := m.Baud()
	line := cmd.Line()
	m.report(Event{Kind: EventSwitchStarted, Command: line, Baud: cmd.Baud})

	if err := m.probeLocked(m.cfg.AckTimeout, true); err != nil {
		m.report(Event{Kind: EventCommandFailed, Command: line, Message: "receiver not responding", Err: err})
		return fmt.Errorf("%q: receiver not responding at %d baud: %w", line, old, err)
	}

	m.queue.Drain()
	if err := l.write([]byte(line + "\r\n")); err != nil {
		m.report(Event{Kind: EventCommandFailed, Command: line, Err: err})
		return fmt.Errorf("write %q: %w", line, err)
	}
	m.clock.Sleep(m.cfg.SwitchApplyDelay)

	if err := m.setBaudLocked(l, cmd.Baud); err != nil {
		// The local port never left the old speed.
		m.report(Event{Kind: EventCommandFailed, Command: line, Message: "failed to set baud rate", Err: err})
		return fmt.Errorf("%q: set local baud rate %d: %w", line, cmd.Baud, err)
	}
	m.clock.Sleep(m.cfg.SwitchSettle)
	m.queue.Drain()

	if err := m.probeLocked(m.cfg.AckTimeout, false); err != nil {
		if rerr := m.setBaudLocked(l, old); rerr != nil {
			m.report(Event{Kind: EventTransportError, Baud: old, Message: "failed to restore baud rate", Err: rerr})
		}
		m.report(Event{Kind: EventSwitchRolledBack, Command: line, Baud: old})
		return fmt.Errorf("%w: %q: no response at %d baud, back at %d", ErrSwitchRollback, line, cmd.Baud, m.Baud())
	}

	m.report(Event{Kind: EventSwitchCompleted, Command: line, Baud: cmd.Baud})
	return nil
}
