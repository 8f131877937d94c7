// Package health serves the minimal /healthz + /metrics HTTP surface
// (§13.3), a non-streaming replacement for a full WebSocket-push dashboard
// — the mux-building idiom of internal/api/server.go is kept, the
// WebSocket hub and JSON event stream it also provides are not (see
// DESIGN.md for the justification).
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dualgrid/dualgrid/internal/controller"
)

// StatusProvider is satisfied by *controller.Controller. A narrow
// interface keeps this package decoupled from the controller's other
// methods, matching the MarketSnapshotProvider pattern.
type StatusProvider interface {
	Status() controller.Status
}

// Server serves /healthz (the controller's Status()) and /metrics
// (Prometheus collectors registered by internal/metrics).
type Server struct {
	provider StatusProvider
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds the health/metrics HTTP server. It does not start
// listening until Start is called.
func NewServer(addr string, provider StatusProvider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{provider: provider, logger: logger.With("component", "health")}

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until the server is closed.
func (s *Server) Start() error {
	s.logger.Info("health server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := s.provider.Status()

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("encode health response failed", "error", err)
	}
}
