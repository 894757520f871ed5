// Package httpserver runs the provider's HTTP listener. The port is bound
// before the daemon reports started, so an occupied port fails fast instead
// of surfacing as a late goroutine log line.
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

// Write timeouts stay unset: the readiness gate may legitimately hold a
// content request open until the first snapshot lands.
const readHeaderTimeout = 10 * time.Second

// Server wraps one http.Server plus its pre-bound listener.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
	errCh  chan error
}

// Options configures the listener.
type Options struct {
	Host    string
	Port    int
	Handler http.Handler
	Logger  *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              net.JoinHostPort(opts.Host, fmt.Sprintf("%d", opts.Port)),
			Handler:           opts.Handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger,
		errCh:  make(chan error, 1),
	}
}

// Start binds the port and begins serving. The returned error covers the
// bind only; serve failures after startup surface on Err.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.srv.Addr, err)
	}
	s.ln = ln

	go func() {
		serveErr := s.srv.Serve(ln)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", slog.String("error", serveErr.Error()))
			s.errCh <- serveErr
		}
		close(s.errCh)
	}()

	s.logger.Info("HTTP server started", slog.String("addr", ln.Addr().String()))
	return nil
}

// Err surfaces a serve failure after a successful Start. The channel closes
// when the server stops.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
