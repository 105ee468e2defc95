// Package server constructs and starts the gorelay HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Tyrowin/gorelay/internal/relay"
)

// Server couples the HTTP listener with the relay it feeds.
type Server struct {
	cfg        *Config
	relay      *relay.Relay
	httpServer *http.Server
	logger     *zap.Logger
}

// New builds a Server with its own metrics registry.
func New(cfg *Config, logger *zap.Logger) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := relay.New(relay.Options{
		Logger:    logger.Named("relay"),
		Metrics:   relay.NewMetrics(reg),
		RateLimit: cfg.RelayRateLimit(),
	})

	return &Server{
		cfg:        cfg,
		relay:      r,
		httpServer: CreateServer(cfg.Addr(), SetupRoutes(r, cfg, reg, logger)),
		logger:     logger,
	}
}

// Relay returns the relay behind the server.
func (s *Server) Relay() *relay.Relay {
	return s.relay
}

// CreateServer creates and configures an HTTP server with the specified address and handler.
// Read and write timeouts only apply until a connection is upgraded.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Listen binds the configured address. A bind failure is fatal for the
// process, so it is reported separately from Serve.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until Shutdown is called. It returns nil
// after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then closes every relay session. Both
// steps share ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.relay.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("relay shutdown: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("server shutdown completed")
	return nil
}
