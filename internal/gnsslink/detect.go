package gnsslink

// Detect finds the receiver's speed by re-speeding the open port through the
// candidate list and probing each candidate. The speed configured when
// detection starts is known not to answer and is skipped. The first speed
// that answers becomes the link speed and is returned.
//
// When nothing answers the port goes back to the speed it started at and
// ErrNoBaudrate is returned.
func (m *Manager) Detect() (int, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.detectLocked()
}

func (m *Manager) detectLocked() (int, error) {
	l, err := m.openLink()
	if err != nil {
		return 0, err
	}

	start := m.Baud()
	for _, baud := range m.cfg.CandidateBauds {
		if baud == start {
			continue
		}
		m.report(Event{Kind: EventBaudTrying, Baud: baud})

		// Same handle the reader is using; the reader keeps running.
		if err := m.setBaudLocked(l, baud); err != nil {
			m.report(Event{Kind: EventTransportError, Baud: baud, Message: "failed to set baud rate", Err: err})
			continue
		}
		m.clock.Sleep(m.cfg.DetectSettle)
		m.queue.Drain()

		if err := m.probeLocked(m.cfg.DetectProbeTimeout, true); err == nil {
			m.report(Event{Kind: EventBaudDetected, Baud: baud})
			return baud, nil
		}
	}

	m.report(Event{Kind: EventBaudNotFound})
	if m.Baud() != start {
		if err := m.setBaudLocked(l, start); err != nil {
			m.report(Event{Kind: EventTransportError, Baud: start, Message: "failed to restore baud rate", Err: err})
		}
	}
	return 0, ErrNoBaudrate
}
