package parallel

import (
	"context"
	"sync"
)

type msgKey struct {
	src, tag int
}

// mailbox holds the messages posted to one rank. Each (source, tag) key has
// its own FIFO, receivers wait on the arrived channel which is closed and
// replaced on every post.
type mailbox struct {
	mu      sync.Mutex
	queues  map[msgKey][]any
	arrived chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		queues:  make(map[msgKey][]any),
		arrived: make(chan struct{}),
	}
}

func (mb *mailbox) post(key msgKey, msg any) {
	mb.mu.Lock()
	mb.queues[key] = append(mb.queues[key], msg)
	close(mb.arrived)
	mb.arrived = make(chan struct{})
	mb.mu.Unlock()
}

func (mb *mailbox) pending(key msgKey) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queues[key]) != 0
}

func (mb *mailbox) take(ctx context.Context, key msgKey) (any, error) {
	for {
		mb.mu.Lock()
		if q := mb.queues[key]; len(q) != 0 {
			msg := q[0]
			q[0] = nil
			if len(q) == 1 {
				delete(mb.queues, key)
			} else {
				mb.queues[key] = q[1:]
			}
			mb.mu.Unlock()
			return msg, nil
		}
		wait := mb.arrived
		mb.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
