// SPDX-License-Identifier: GPL-3.0-or-later

package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbmk-project/common/errclass"
)

// Server exposes the metrics over HTTP at /metrics, along
// with a /health endpoint returning "OK".
//
// Construct using [NewServer].
type Server struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	addr   string
	server *http.Server
}

// NewServer creates a [*Server] that will listen on the given address
// (e.g., "127.0.0.1:9464") and serve the given gatherer. A nil gatherer
// means [prometheus.DefaultGatherer].
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Handler returns the HTTP handler serving the endpoints.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves HTTP requests until [*Server.Shutdown]. It returns
// nil after a graceful shutdown.
func (s *Server) Start() error {
	if _, _, err := net.SplitHostPort(s.addr); err != nil {
		return fmt.Errorf("metrics: invalid address %q: %w", s.addr, err)
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return s.Serve(listener)
}

// Serve is like [*Server.Start] but uses the given listener.
func (s *Server) Serve(listener net.Listener) error {
	if s.Logger != nil {
		s.Logger.Info("metricsServerStart", slog.String("localAddr", listener.Addr().String()))
	}
	err := s.server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		if s.Logger != nil {
			s.Logger.Warn(
				"metricsServerDone",
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
			)
		}
		return fmt.Errorf("metrics: HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics: shutdown error: %w", err)
	}
	if s.Logger != nil {
		s.Logger.Info("metricsServerDone")
	}
	return nil
}
