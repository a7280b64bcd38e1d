// Package parallel provides the SPMD communicator used by every collective
// operation in meshcomm. A rank only ever sees its own arrays; values cross
// ranks by copy through Send/Receive.
//
// All operations built on top of a Comm are collective: every rank of the
// communicator has to call the same sequence of operations, otherwise peers
// block forever in Receive (or until the World is aborted).
package parallel

import (
	"context"
	"fmt"
)

// Comm is one rank's view of a communicator.
type Comm interface {
	// Rank is in [0, Size()).
	Rank() int
	Size() int
	// Send queues data for dest. It never blocks; messages between a given
	// (source, tag) pair are delivered in order.
	Send(dest, tag int, data any) error
	// Receive blocks until a message from src with the given tag arrives.
	Receive(src, tag int) (any, error)
}

// Reserved tags, user code should use non-negative tags.
const (
	tagGather = -1 - iota
	tagBroadcast
	tagAllToAll
)

// Serial is a single rank communicator, used when nothing is decomposed.
type Serial struct {
	box *mailbox
}

// NewSerial returns a communicator of size one.
func NewSerial() *Serial {
	return &Serial{box: newMailbox()}
}

func (s *Serial) Rank() int { return 0 }
func (s *Serial) Size() int { return 1 }

func (s *Serial) Send(dest, tag int, data any) error {
	if dest != 0 {
		return fmt.Errorf("serial communicator: destination rank %d out of range", dest)
	}
	s.box.post(msgKey{src: 0, tag: tag}, data)
	return nil
}

func (s *Serial) Receive(src, tag int) (any, error) {
	if src != 0 {
		return nil, fmt.Errorf("serial communicator: source rank %d out of range", src)
	}
	if !s.box.pending(msgKey{src: 0, tag: tag}) {
		// Nothing can ever arrive, a blocking wait would hang.
		return nil, fmt.Errorf("serial communicator: receive on tag %d with no message queued", tag)
	}
	return s.box.take(context.Background(), msgKey{src: 0, tag: tag})
}
