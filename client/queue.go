package client

import "github.com/crewdesk/relay/protocol"

// sendQueue is the bounded FIFO holding message sends issued while the
// connection is down. When full, the oldest entry is dropped to make room.
// Not safe for concurrent use; the Client guards it with its own mutex.
type sendQueue struct {
	entries []protocol.MessageSend
	cap     int
}

func newSendQueue(capacity int) *sendQueue {
	return &sendQueue{cap: capacity}
}

// push appends a send, dropping the oldest entry at capacity. Returns the
// number of dropped entries (0 or 1).
func (q *sendQueue) push(m protocol.MessageSend) int {
	dropped := 0
	if q.cap > 0 && len(q.entries) >= q.cap {
		q.entries = q.entries[1:]
		dropped = 1
	}
	q.entries = append(q.entries, m)
	return dropped
}

// drain removes and returns all queued sends in FIFO order.
func (q *sendQueue) drain() []protocol.MessageSend {
	out := q.entries
	q.entries = nil
	return out
}

func (q *sendQueue) len() int { return len(q.entries) }
