// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpserver manages the listener lifecycle for the
// provisioning API: bind, signal readiness, serve, drain on shutdown.
// The caller provides the http.Handler.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server serves HTTP on a TCP listener. Serve(ctx) blocks until the
// context is cancelled and active requests drain.
type Server struct {
	address string
	handler http.Handler
	logger  *slog.Logger

	// shutdownTimeout bounds the wait for in-flight requests after
	// the context is cancelled.
	shutdownTimeout time.Duration

	// ready is closed after the listener is bound.
	ready chan struct{}

	// addr is the resolved listen address, valid once ready is closed.
	addr net.Addr
}

// Config configures a Server.
type Config struct {
	// Address is the TCP listen address (e.g., ":9999"). Required.
	Address string

	// Handler routes incoming requests. Required.
	Handler http.Handler

	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration

	// Logger is the structured logger. If nil, a no-op logger is used.
	Logger *slog.Logger
}

// New creates a server that will listen on the configured address.
// Call Serve to start accepting connections.
func New(config Config) *Server {
	if config.Address == "" {
		panic("httpserver: Address is required")
	}
	if config.Handler == nil {
		panic("httpserver: Handler is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Server{
		address:         config.Address,
		handler:         config.Handler,
		logger:          logger,
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the server is bound and
// accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready()
// is closed. With port 0 the resolved address carries the actual port.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve accepts HTTP connections until ctx is cancelled, then stops
// accepting and waits up to ShutdownTimeout for active requests.
func (s *Server) Serve(ctx context.Context) error {
	// Bind early so the resolved address is known before the serve
	// loop starts.
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler: s.handler,

		// Provisioning request bodies are tiny; these bound slow
		// clients, not payload size.
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("http server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}
