package relay

import (
	"context"
	"errors"
)

// ErrStreamClosed marks a stream error caused by an ordinary shutdown of the
// underlying connection. Adapters wrap expected close errors with it so
// callers can tell a disconnect from a real failure.
var ErrStreamClosed = errors.New("relay: stream closed")

// Stream is a bidirectional message stream to one peer. Receive is only
// called from one goroutine and Send from another; Close may be called
// concurrently with both.
type Stream interface {
	// Receive blocks for the next inbound message. A peer-initiated close
	// is reported as a Close message rather than an error.
	Receive(ctx context.Context) (Message, error)
	// Send writes msg to the peer. A Close message ends the stream.
	Send(ctx context.Context, msg Message) error
	// Close releases the underlying connection.
	Close() error
}
