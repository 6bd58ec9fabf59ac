// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api provides the HTTP server of the podstream daemon.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/podstream/internal/health"
	"github.com/ManuGH/podstream/internal/log"
	"github.com/ManuGH/podstream/internal/pipeline"
	"github.com/ManuGH/podstream/internal/profiles"
	"github.com/rs/zerolog"
)

// Opener starts a pipeline for one request.
type Opener interface {
	Open(ctx context.Context, req pipeline.Request) (*pipeline.Handle, error)
}

// ProfileSource resolves and lists named profiles.
type ProfileSource interface {
	Get(name string) (pipeline.Profile, error)
	List() []profiles.Info
}

// RateLimitConfig bounds audio requests per client IP and globally.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration

	GlobalRate  float64 // admissions per second across all clients; 0 disables
	GlobalBurst int
}

// Config holds the server settings.
type Config struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	TracingService  string // empty disables HTTP tracing
	RateLimit       RateLimitConfig
}

// Server represents the HTTP API server.
type Server struct {
	cfg      Config
	runner   Opener
	profiles ProfileSource
	health   *health.Manager
	logger   zerolog.Logger

	handlerOnce sync.Once
	handler     http.Handler

	mu      sync.Mutex
	httpSrv *http.Server
	started atomic.Bool
}

// New creates a Server. hm may be nil, in which case probes always report healthy.
func New(cfg Config, runner Opener, reg ProfileSource, hm *health.Manager) *Server {
	if hm == nil {
		hm = health.NewManager("")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		cfg:      cfg,
		runner:   runner,
		profiles: reg,
		health:   hm,
		logger:   log.WithComponent("api"),
	}
}

// Handler returns the configured HTTP handler with all routes and middleware applied.
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		s.handler = s.routes()
	})
	return s.handler
}

// ListenAndServe listens on the configured address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if !s.started.CompareAndSwap(false, true) {
		_ = ln.Close()
		return errors.New("server already started")
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: audio streams are open-ended.
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	s.logger.Info().
		Str(log.FieldEvent, "server.listening").
		Str("addr", ln.Addr().String()).
		Msg("HTTP server listening")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server. In-flight streams get until ctx (bounded by the
// configured shutdown timeout) to finish; remaining connections are closed, which tears
// down their pipelines through request-context cancellation.
func (s *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("shutdown context is nil")
	}
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info().Str(log.FieldEvent, "server.shutdown").Msg("shutting down server")

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Msg("graceful shutdown incomplete, closing remaining connections")
		if cerr := srv.Close(); cerr != nil {
			return fmt.Errorf("close server: %w", cerr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
