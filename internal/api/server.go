// Package api serves the operational HTTP endpoints exposed during runs.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mkosyakov/autocom-mirror/internal/metrics"
)

// ReadyCheck reports whether the service can do useful work, typically by
// pinging the database.
type ReadyCheck func(ctx context.Context) error

// Server is the ops HTTP server: health, readiness and metrics.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the ops server on the given port. ready may be nil, in
// which case readiness mirrors liveness.
func NewServer(port int, ready ReadyCheck, logger *zap.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if ready != nil {
			if err := ready(req.Context()); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready")) //nolint:errcheck
	})
	r.Handle("/metrics", metrics.Handler())

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("ops server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
