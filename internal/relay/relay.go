package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRelayClosed is returned by Serve once Shutdown has been called.
var ErrRelayClosed = errors.New("relay: shutting down")

// RateLimit bounds how many messages one connection may broadcast.
// A non-positive Burst disables limiting.
type RateLimit struct {
	Burst          int
	RefillInterval time.Duration
}

func (rl RateLimit) enabled() bool {
	return rl.Burst > 0
}

// limiter builds a token bucket that refills Burst tokens every
// RefillInterval.
func (rl RateLimit) limiter() *rate.Limiter {
	if !rl.enabled() {
		return nil
	}
	interval := rl.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Limit(float64(rl.Burst)/interval.Seconds()), rl.Burst)
}

// Options configures a Relay.
type Options struct {
	Logger    *zap.Logger
	Metrics   *Metrics
	RateLimit RateLimit
}

// Relay owns the connection registry and tracks every live session.
type Relay struct {
	registry  *Registry
	logger    *zap.Logger
	metrics   *Metrics
	rateLimit RateLimit

	mu       sync.Mutex
	sessions sync.WaitGroup
	closing  atomic.Bool
}

// New creates a Relay with an empty registry.
func New(opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		registry:  NewRegistry(),
		logger:    logger,
		metrics:   opts.Metrics,
		rateLimit: opts.RateLimit,
	}
}

// Registry returns the shared connection registry.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Serve runs a session for stream and blocks until it terminates. The
// stream is always closed when Serve returns.
func (r *Relay) Serve(ctx context.Context, stream Stream) error {
	r.mu.Lock()
	if r.closing.Load() {
		r.mu.Unlock()
		_ = stream.Send(ctx, CloseMessage())
		_ = stream.Close()
		return ErrRelayClosed
	}
	r.sessions.Add(1)
	r.mu.Unlock()
	defer r.sessions.Done()

	s := r.newSession(stream)
	s.run(ctx)
	return nil
}

func (r *Relay) newSession(stream Stream) *Session {
	id := NextConnectionID()
	s := &Session{
		id:      id,
		stream:  stream,
		outbox:  NewOutbox(),
		relay:   r,
		limiter: r.rateLimit.limiter(),
		logger:  r.logger.With(zap.Stringer("connection_id", id)),
	}
	s.setState(StateConnecting)
	return s
}

// Shutdown asks every live session to close and waits for them to
// terminate. It returns ctx.Err() if sessions are still running when ctx
// expires. New sessions are refused once Shutdown has been called.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing.Store(true)
	r.mu.Unlock()

	peers := r.registry.Snapshot()
	r.logger.Info("closing client sessions", zap.Int("sessions", len(peers)))
	for _, peer := range peers {
		_ = peer.Push(CloseMessage())
	}

	done := make(chan struct{})
	go func() {
		r.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("relay shutdown completed")
		return nil
	case <-ctx.Done():
		r.logger.Warn("relay shutdown timed out; some sessions are still running", zap.Int("sessions", r.registry.Len()))
		return ctx.Err()
	}
}
