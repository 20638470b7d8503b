// Package httpserver runs an http.Server in the background and shuts it down gracefully.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 5 * time.Second
	defaultAddr            = ":80"
	defaultShutdownTimeout = 3 * time.Second
)

// Server wraps http.Server with an error channel fed by ListenAndServe.
type Server struct {
	server          *http.Server
	errCh           chan error
	shutdownTimeout time.Duration
}

// Options configures the server. Zero values fall back to defaults.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// New creates the server and starts listening in the background.
func New(handler http.Handler, opt Options) *Server {
	httpServer := &http.Server{
		Handler:           handler,
		Addr:              orDefault(opt.Addr, defaultAddr),
		ReadHeaderTimeout: orDefault(opt.ReadTimeout, defaultReadTimeout),
		ReadTimeout:       orDefault(opt.ReadTimeout, defaultReadTimeout),
		WriteTimeout:      orDefault(opt.WriteTimeout, defaultWriteTimeout),
	}

	srv := &Server{
		server:          httpServer,
		errCh:           make(chan error, 1),
		shutdownTimeout: orDefault(opt.ShutdownTimeout, defaultShutdownTimeout),
	}

	go srv.start()

	return srv
}

func (s *Server) start() {
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errCh <- err
	}

	close(s.errCh)
}

// Notify returns a channel that receives the listener error, if any, and is closed when the server stops.
func (s *Server) Notify() <-chan error {
	return s.errCh
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}

	return v
}
