package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/models"
)

// APIHandler serves version, health and session inspection endpoints
type APIHandler struct {
	sessions SessionInspector
	logger   arbor.ILogger
	started  time.Time
}

// SessionInspector is the read/close slice of the session manager
type SessionInspector interface {
	List() []models.BrowserSession
	Describe(sessionID string) (*models.BrowserSession, error)
	Close(ctx context.Context, sessionID string) error
}

// NewAPIHandler creates the API handler
func NewAPIHandler(sessions SessionInspector, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		sessions: sessions,
		logger:   logger,
		started:  time.Now(),
	}
}

// VersionHandler handles GET /api/version
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetFullVersion(),
	})
}

// HealthHandler handles GET /api/health
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// ListSessionsHandler handles GET /api/sessions
func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	sessions := h.sessions.List()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// SessionHandler dispatches GET and DELETE for /api/sessions/{id}
func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "session id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		session, err := h.sessions.Describe(id)
		if err != nil {
			WriteError(w, http.StatusNotFound, "session not found")
			return
		}
		WriteJSON(w, http.StatusOK, session)
	case http.MethodDelete:
		if err := h.sessions.Close(r.Context(), id); err != nil {
			WriteError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Info().Str("session_id", id).Msg("Session closed via API")
		WriteJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// NotFoundHandler is the catch-all for unknown /api/ paths
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "endpoint not found")
}
