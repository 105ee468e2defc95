package relay

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is the lifecycle phase of a Session.
type State uint32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session relays messages for a single connection. It runs an outbound
// forwarder and an inbound broadcaster until the peer goes away.
type Session struct {
	id      ConnectionID
	stream  Stream
	outbox  *Outbox
	relay   *Relay
	limiter *rate.Limiter
	logger  *zap.Logger
	state   atomic.Uint32
}

// ID returns the connection id assigned to the session.
func (s *Session) ID() ConnectionID {
	return s.id
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(uint32(state))
}

// run drives the session from registration to termination. It returns once
// both loops have exited and the stream has been closed.
func (s *Session) run(ctx context.Context) {
	registry := s.relay.registry
	metrics := s.relay.metrics

	registry.Register(s.id, s.outbox)
	metrics.connectionOpened()
	s.logger.Debug("client connected", zap.Int("peers", registry.Len()))

	// A shutdown that started after the snapshot was taken would otherwise
	// miss this session.
	if s.relay.closing.Load() {
		_ = s.outbox.Push(CloseMessage())
	}

	s.setState(StateActive)
	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		s.forward(ctx)
	}()

	s.receive(ctx)

	s.setState(StateClosing)
	registry.Deregister(s.id)
	metrics.connectionClosed()
	s.outbox.Close()
	<-forwarderDone

	if err := s.stream.Close(); err != nil && !errors.Is(err, ErrStreamClosed) {
		s.logger.Debug("error closing stream", zap.Error(err))
	}
	s.setState(StateTerminated)
	s.logger.Info("client disconnected")
}

// forward writes queued messages to the peer until the outbox is drained
// or a write fails. On exit the outbox is closed, so later pushes from
// other sessions fail instead of piling up.
func (s *Session) forward(ctx context.Context) {
	defer s.outbox.Close()

	for {
		msg, err := s.outbox.Next(ctx)
		if err != nil {
			return
		}

		if err := s.stream.Send(ctx, msg); err != nil {
			if errors.Is(err, ErrStreamClosed) {
				s.logger.Debug("write to closed stream", zap.Error(err))
			} else {
				s.logger.Warn("write failed", zap.Error(err))
			}
			return
		}

		if msg.IsClose() {
			return
		}
	}
}

// receive reads inbound messages and broadcasts them until the peer closes
// the stream or a read fails.
func (s *Session) receive(ctx context.Context) {
	for {
		msg, err := s.stream.Receive(ctx)
		if err != nil {
			s.logger.Debug("read ended", zap.Error(err))
			return
		}
		if msg.IsClose() {
			return
		}

		s.relay.metrics.messageReceived()
		if s.limiter != nil && !s.limiter.Allow() {
			s.relay.metrics.messageDropped()
			s.logger.Debug("rate limit exceeded; discarding message", zap.Int("bytes", len(msg.Payload)))
			continue
		}

		s.broadcast(msg)
	}
}

// broadcast queues msg on every other registered outbox. A peer whose
// outbox is already closed is skipped; its own session deregisters it.
func (s *Session) broadcast(msg Message) {
	peers := s.relay.registry.SnapshotExcluding(s.id)
	for _, peer := range peers {
		if err := peer.Push(msg); err != nil {
			s.relay.metrics.deliveryFailed()
			continue
		}
		s.relay.metrics.messageDelivered()
	}
}
