// Package api exposes the monitor over HTTP: health probes, the latest
// result, history queries, behavioral reports, forced re-analysis, and
// Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trustplane/hostsentry/internal/anomaly"
	"github.com/trustplane/hostsentry/internal/history"
	"github.com/trustplane/hostsentry/internal/monitor"
)

const shutdownTimeout = 10 * time.Second

// Server wires the HTTP routes to the monitor and history store.
type Server struct {
	monitor  *monitor.Monitor
	store    *history.Store
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	router   *mux.Router
	addr     string
}

// NewServer creates the API server. The gatherer backs the /metrics endpoint
// so tests can serve an isolated registry.
func NewServer(addr string, mon *monitor.Monitor, store *history.Store, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{
		monitor:  mon,
		store:    store,
		gatherer: gatherer,
		logger:   logger,
		router:   mux.NewRouter(),
		addr:     addr,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/readyz", s.handleReady).Methods("GET")

	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/analyze", s.handleAnalyze).Methods("POST")
	s.router.HandleFunc("/api/history", s.handleHistory).Methods("GET")
	s.router.HandleFunc("/api/history/reset", s.handleHistoryReset).Methods("POST")
	s.router.HandleFunc("/api/statistics", s.handleStatistics).Methods("GET")
	s.router.HandleFunc("/api/behavioral", s.handleBehavioral).Methods("GET")

	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	statusCode := http.StatusOK
	if !s.monitor.Ready() {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// handleStatus returns the latest result plus loop counters. The result is
// null until the first cycle completes.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	latest, _ := s.monitor.Latest()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":     s.monitor.State(),
		"result":    latest,
		"history":   s.store.Len(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.ForceAnalyze(r.Context())
	if err != nil {
		s.logger.Warn("Forced analysis aborted", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "analysis aborted")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.store.Snapshot()

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		entries = s.store.Recent(limit)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries":   entries,
		"count":     len(entries),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleHistoryReset(w http.ResponseWriter, r *http.Request) {
	cleared := s.store.Clear()
	s.logger.Info("History cleared via API", "removed", cleared)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared":   cleared,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, anomaly.ComputeStats(s.store.Snapshot()))
}

func (s *Server) handleBehavioral(w http.ResponseWriter, r *http.Request) {
	report, ok := s.monitor.LastReport()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no behavioral report yet")
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
