package gnsslink

import (
	"bytes"
	"sync/atomic"
)

// reader is the background ingestion loop for one open link.
type reader struct {
	running atomic.Bool
	done    chan struct{}
}

func (m *Manager) startReader(l *link) *reader {
	r := &reader{done: make(chan struct{})}
	r.running.Store(true)
	go m.readLoop(l, r)
	return r
}

// stop clears the lifecycle flag. The loop notices within one reader
// interval plus the transport read timeout.
func (r *reader) stop() {
	r.running.Store(false)
}

func (r *reader) wait() {
	<-r.done
}

func (m *Manager) readLoop(l *link, r *reader) {
	defer close(r.done)

	buf := make([]byte, m.cfg.ReadChunkSize)
	failing := false
	for r.running.Load() {
		if l.open.Load() {
			n, err := l.port.Read(buf)
			if n > 0 {
				m.deliver(bytes.Clone(buf[:n]))
			}
			switch {
			case err != nil:
				// Transient faults on a live serial line are expected; only
				// the first of a run is worth reporting.
				if !failing && r.running.Load() && l.open.Load() {
					m.report(Event{Kind: EventReadError, Err: err})
				}
				failing = true
			case n > 0:
				failing = false
			}
		}
		m.clock.Sleep(m.cfg.ReaderInterval)
	}
}

// deliver queues chunk for the foreground and hands copies to raw-tap
// subscribers without blocking.
func (m *Manager) deliver(chunk []byte) {
	m.queue.Push(chunk)

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- bytes.Clone(chunk):
		default:
			// if the channel is full skip so as not to stall ingestion
		}
	}
}
