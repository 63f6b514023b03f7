// Package server exposes a loaded posting store over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Options struct {
	Addr            string
	RateLimit       float64 // requests per second, 0 disables limiting
	Burst           int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	opts    Options
	handler http.Handler
	logger  *slog.Logger
}

// New wires the routes and middleware around h.
func New(h *Handler, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/query", h.Query)
	mux.HandleFunc("GET /v1/stats", h.Stats)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", h.metrics.Handler())

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	var chain http.Handler = mux
	chain = RateLimit(limiter, h.metrics)(chain)
	chain = MetricsMiddleware(h.metrics)(chain)
	chain = RequestID(chain)

	return &Server{
		opts:    opts,
		handler: chain,
		logger:  slog.Default().With("component", "server"),
	}
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on opts.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("query service listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down query service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.logger.Info("query service stopped")
	return err
}
