package web

import (
	"context"
	"net/http"
	"time"
)

// handleIndex sends the caller to the dashboard.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// handleDashboard renders the upload form, cleaned files and history.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	files, err := s.service.ListCleaned(r.Context(), id)
	if err != nil {
		respondCoreError(w, r, err)
		return
	}
	history, err := s.service.History(r.Context(), id)
	if err != nil {
		respondCoreError(w, r, err)
		return
	}

	render(w, r, http.StatusOK, dashboardPage(dashboardData{
		Username:    id.Username,
		MaxFileSize: s.cfg.Upload.MaxFileSize,
		Files:       files,
		History:     history,
	}))
}

// handleLog renders the caller's upload history as an HTML page.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	history, err := s.service.History(r.Context(), id)
	if err != nil {
		respondCoreError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, logPage(id.Username, history))
}

// handleHealth reports liveness, history store reachability and upload
// slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":  "ok",
		"uploads": s.service.Limiter().Status(),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			body["error"] = "history store unreachable"
		}
	}

	writeJSON(w, status, body)
}
