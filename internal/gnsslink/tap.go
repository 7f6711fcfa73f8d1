package gnsslink

import "github.com/google/uuid"

// tapBuffer is the per-subscriber backlog. Chunks beyond it are dropped for
// that subscriber only.
const tapBuffer = 64

// Subscribe returns a channel receiving a copy of every chunk the background
// reader ingests, alongside the chunk queue. Slow subscribers miss chunks
// rather than stall ingestion. After Close the returned channel is closed.
func (m *Manager) Subscribe() (string, <-chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, tapBuffer)

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.closed {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Manager) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}
