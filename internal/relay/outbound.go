package relay

import (
	"sync"
	"time"
)

// OutboundQueue is the unbounded FIFO between the producers (receive loop,
// transcription worker, generation bridge) and the single sender loop. Put
// never blocks, so the worker can keep reading recognition results even when
// the client is slow; the sender's short Take timeout doubles as its
// shutdown-polling interval.
type OutboundQueue struct {
	mu    sync.Mutex
	items []OutboundMessage

	notify chan struct{}
}

func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{notify: make(chan struct{}, 1)}
}

// Put appends a message. Safe to call from any goroutine.
func (q *OutboundQueue) Put(msg OutboundMessage) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Take blocks up to timeout for the next message; ok is false on timeout.
// Take must only be called from one goroutine, the sender loop.
func (q *OutboundQueue) Take(timeout time.Duration) (OutboundMessage, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-deadline.C:
			return OutboundMessage{}, false
		}
	}
}

// Len returns the number of queued messages.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
