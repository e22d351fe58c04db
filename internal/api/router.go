package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports whether the process is up, the session is open and
// telemetry is reachable. A telemetry outage does not fail the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.status.Snapshot()

	linkState := "down"
	if snap.SessionState == "connected" {
		linkState = "up"
	}

	telemetry := "disabled"
	if s.telemetry != nil {
		telemetry = "up"
		if err := s.telemetry.HealthCheck(r.Context()); err != nil {
			s.logger.Debug("telemetry health check failed", "error", err)
			telemetry = "down"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"link":      linkState,
		"telemetry": telemetry,
		"version":   s.version,
	})
}

// handleStatus returns the current link snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}
