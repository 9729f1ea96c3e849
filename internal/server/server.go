// Package server exposes the admin HTTP endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deusflow/tickerfeed/internal/pipeline"
)

// Runner is the part of *pipeline.Runner the server drives.
type Runner interface {
	Trigger(ctx context.Context) bool
	Status() pipeline.Status
}

type Stats interface {
	GetStats() map[string]interface{}
	Healthy() bool
}

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	runner   Runner
	metrics  Stats
	quota    interface{ GetStats() map[string]interface{} }
	checks   map[string]Pinger
	interval time.Duration
	log      *slog.Logger
}

type Config struct {
	Runner   Runner
	Metrics  Stats
	Quota    interface{ GetStats() map[string]interface{} } // optional
	Checks   map[string]Pinger
	Interval time.Duration
	Logger   *slog.Logger
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		runner:   cfg.Runner,
		metrics:  cfg.Metrics,
		quota:    cfg.Quota,
		checks:   cfg.Checks,
		interval: cfg.Interval,
		log:      log.With("component", "server"),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/trigger", s.handleTrigger)
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admin server starting", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("admin server stopped")
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	st := s.runner.Status()
	resp := map[string]interface{}{
		"service":  "tickerfeed",
		"interval": s.interval.String(),
		"running":  st.Running,
	}
	if st.LastCycle != nil {
		resp["last_run"] = st.LastCycle.StartedAt.Format(time.RFC3339)
	}
	if !st.NextRun.IsZero() {
		resp["next_run"] = st.NextRun.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "check": name, "error": err.Error()})
			return
		}
	}

	stats := s.metrics.GetStats()
	status, code := "ok", http.StatusOK
	if !s.metrics.Healthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.runner.Status()
	state := "idle"
	if st.Running {
		state = "running"
	}
	resp := map[string]interface{}{
		"state":   state,
		"uptime":  time.Since(st.StartedAt).Round(time.Second).String(),
		"metrics": s.metrics.GetStats(),
	}
	if st.LastCycle != nil {
		resp["last_cycle"] = st.LastCycle
	}
	if s.quota != nil {
		resp["quota"] = s.quota.GetStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetStats())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.runner.Trigger(r.Context()) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: pipeline.ErrCycleInProgress.Error()})
		return
	}
	s.log.Info("cycle triggered manually", "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
