// Package web provides the ops HTTP server of the schedule command: health
// and readiness probes, Prometheus metrics, the latest run status and a
// token-protected manual trigger.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/rostersync/internal/runner"
	"github.com/JonMunkholm/rostersync/internal/web/middleware"
)

// readyTimeout bounds the store ping behind /readyz.
const readyTimeout = 3 * time.Second

// Pinger reports whether the person store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunStatus exposes the latest run.
type RunStatus interface {
	Status() runner.Status
}

// Triggerer starts a run on demand.
type Triggerer interface {
	Trigger() bool
}

// Deps are the collaborators the ops server reports on.
type Deps struct {
	Store        Pinger
	Runs         RunStatus
	Trigger      Triggerer // nil disables POST /runs
	TriggerToken string
}

// Server is the ops HTTP server.
type Server struct {
	deps   Deps
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/runs/latest", s.handleLatestRun)
	s.router.With(middleware.BearerToken(s.deps.TriggerToken)).Post("/runs", s.handleTriggerRun)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string, readTimeout time.Duration) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("ops server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.deps.Store.Ping(ctx); err != nil {
		slog.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "person store unreachable",
			"code":   "DB004",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Runs.Status()
	if !st.Running && st.FinishedAt == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run yet"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Trigger == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "manual runs not available"})
		return
	}
	if !s.deps.Trigger.Trigger() {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "a run is already in progress or queued",
			"code":  "RUN002",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
