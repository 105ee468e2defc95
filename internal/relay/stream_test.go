package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeStream is an in-memory Stream. Tests play the remote peer by writing
// to inbound and reading from outbound.
type fakeStream struct {
	inbound  chan Message
	outbound chan Message

	mu       sync.Mutex
	sendErr  error
	closed   chan struct{}
	closeErr error
	once     sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		inbound:  make(chan Message),
		outbound: make(chan Message, 64),
		closed:   make(chan struct{}),
	}
}

func (f *fakeStream) Receive(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-f.inbound:
		if !ok {
			return Message{}, io.EOF
		}
		return msg, nil
	case <-f.closed:
		return Message{}, ErrStreamClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (f *fakeStream) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-f.closed:
		return ErrStreamClosed
	default:
	}

	f.outbound <- msg
	return nil
}

func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.closed) })
	return f.closeErr
}

func (f *fakeStream) failSends(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

// say delivers msg to the session as if the remote peer had sent it.
func (f *fakeStream) say(t *testing.T, msg Message) {
	t.Helper()
	select {
	case f.inbound <- msg:
	case <-time.After(time.Second):
		t.Fatalf("session did not read message %q", msg.Payload)
	}
}

// expect waits for the next message written to the remote peer.
func (f *fakeStream) expect(t *testing.T) Message {
	t.Helper()
	select {
	case msg := <-f.outbound:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound message")
		return Message{}
	}
}

// expectNothing asserts no message reaches the remote peer within d.
func (f *fakeStream) expectNothing(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-f.outbound:
		t.Fatalf("unexpected outbound message %v %q", msg.Kind, msg.Payload)
	case <-time.After(d):
	}
}

// served is a stream running inside a Relay.Serve goroutine.
type served struct {
	*fakeStream
	done chan error
}

func serve(t *testing.T, r *Relay, wantPeers int) *served {
	t.Helper()
	s := &served{fakeStream: newFakeStream(), done: make(chan error, 1)}
	go func() {
		s.done <- r.Serve(context.Background(), s.fakeStream)
	}()
	require.Eventually(t, func() bool { return r.Registry().Len() == wantPeers }, time.Second, 5*time.Millisecond)
	return s
}

func (s *served) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case err := <-s.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
		return errors.New("unreachable")
	}
}
