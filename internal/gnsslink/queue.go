package gnsslink

import "sync"

// ChunkQueue is a FIFO of received byte chunks. The background reader is the
// only producer; the foreground is the only consumer. Chunk boundaries are
// kept exactly as pushed.
//
// The queue has no capacity limit. Traffic on the link is command and
// acknowledgment exchange, and the foreground drains it on every speed
// change, so growth is bounded by how long nobody reads.
type ChunkQueue struct {
	mu     sync.Mutex
	chunks [][]byte
}

// NewChunkQueue returns an empty queue.
func NewChunkQueue() *ChunkQueue {
	return &ChunkQueue{}
}

// Push appends chunk. The queue takes ownership of the slice. Empty chunks
// are ignored.
func (q *ChunkQueue) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = append(q.chunks, chunk)
}

// Pop removes and returns the oldest chunk. It never blocks; ok is false when
// the queue is empty.
func (q *ChunkQueue) Pop() (chunk []byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.chunks) == 0 {
		return nil, false
	}
	chunk = q.chunks[0]
	q.chunks[0] = nil
	q.chunks = q.chunks[1:]
	if len(q.chunks) == 0 {
		q.chunks = nil
	}
	return chunk, true
}

// Drain discards every queued chunk and returns how many were dropped.
func (q *ChunkQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.chunks)
	q.chunks = nil
	return n
}

// Len returns the number of queued chunks.
func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}
