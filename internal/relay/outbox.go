package relay

import (
	"context"
	"errors"
	"sync"
)

// ErrOutboxClosed is returned by Push after Close, and by Next once a
// closed outbox has been drained.
var ErrOutboxClosed = errors.New("relay: outbox closed")

// Sender is the producer half of an outbound queue.
type Sender interface {
	Push(msg Message) error
}

// Outbox is an unbounded FIFO with many producers and one consumer.
// Push never blocks; Next blocks until a message is queued or the outbox is
// closed and empty.
type Outbox struct {
	mu     sync.Mutex
	queue  []Message
	closed bool
	// ready holds at most one wake-up token for the consumer.
	ready chan struct{}
}

// NewOutbox returns an empty, open outbox.
func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Push appends msg to the queue.
func (o *Outbox) Push(msg Message) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOutboxClosed
	}
	o.queue = append(o.queue, msg)
	o.mu.Unlock()

	o.wake()
	return nil
}

// Next removes and returns the oldest queued message. Messages queued
// before Close are still delivered; after that, Next returns
// ErrOutboxClosed.
func (o *Outbox) Next(ctx context.Context) (Message, error) {
	for {
		o.mu.Lock()
		if len(o.queue) > 0 {
			msg := o.queue[0]
			o.queue[0] = Message{}
			o.queue = o.queue[1:]
			if len(o.queue) == 0 {
				o.queue = nil
			}
			o.mu.Unlock()
			return msg, nil
		}
		if o.closed {
			o.mu.Unlock()
			return Message{}, ErrOutboxClosed
		}
		o.mu.Unlock()

		select {
		case <-o.ready:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close stops accepting new messages. It is safe to call more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.wake()
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *Outbox) wake() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
