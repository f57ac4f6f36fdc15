package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"

	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
	"github.com/ternarybob/peto/internal/orchestrator"
)

// InterventionService is the slice of the intervention layer the HTTP
// surface needs
type InterventionService interface {
	Get(ctx context.Context, id string) (*models.Intervention, error)
	List(ctx context.Context, filter models.InterventionFilter) ([]models.Intervention, error)
	Resolve(ctx context.Context, id string, action models.Resolution, notes string) (*models.Intervention, error)
	ListPausedSessions(ctx context.Context) ([]string, error)
}

// SessionResumer continues a parked application session after a human
// acted on its intervention
type SessionResumer interface {
	Resume(ctx context.Context, sessionID string, req orchestrator.Request) *orchestrator.Result
}

// InterventionHandler exposes interventions over REST
type InterventionHandler struct {
	service  InterventionService
	resumer  SessionResumer
	markdown goldmark.Markdown
	logger   arbor.ILogger
}

// NewInterventionHandler creates an intervention handler. resumer may
// be nil; resolutions then only record the human action.
func NewInterventionHandler(service InterventionService, resumer SessionResumer, logger arbor.ILogger) *InterventionHandler {
	return &InterventionHandler{
		service:  service,
		resumer:  resumer,
		markdown: goldmark.New(),
		logger:   logger,
	}
}

// ListHandler handles GET /api/interventions with optional user_id,
// session_id, type and unresolved query filters
func (h *InterventionHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	filter := models.InterventionFilter{
		UserID:     q.Get("user_id"),
		SessionID:  q.Get("session_id"),
		Type:       models.InterventionType(q.Get("type")),
		Unresolved: q.Get("unresolved") == "true",
	}

	interventions, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list interventions")
		WriteError(w, http.StatusInternalServerError, "failed to list interventions")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"interventions": interventions,
		"count":         len(interventions),
	})
}

// PausedSessionsHandler handles GET /api/interventions/paused-sessions
func (h *InterventionHandler) PausedSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sessions, err := h.service.ListPausedSessions(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list paused sessions")
		WriteError(w, http.StatusInternalServerError, "failed to list paused sessions")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_ids": sessions,
		"count":       len(sessions),
	})
}

// ItemHandler dispatches /api/interventions/{id}, {id}/resolve and
// {id}/view
func (h *InterventionHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/interventions/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	if parts[0] == "" {
		WriteError(w, http.StatusBadRequest, "intervention id required")
		return
	}

	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		h.getIntervention(w, r, id)
	case "resolve":
		h.resolveIntervention(w, r, id)
	case "view":
		h.viewIntervention(w, r, id)
	default:
		WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown action: %s", action))
	}
}

func (h *InterventionHandler) getIntervention(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	intervention, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "intervention not found")
			return
		}
		h.logger.Error().Err(err).Str("intervention_id", id).Msg("Failed to load intervention")
		WriteError(w, http.StatusInternalServerError, "failed to load intervention")
		return
	}

	WriteJSON(w, http.StatusOK, intervention)
}

type resolveRequest struct {
	Action models.Resolution `json:"action"`
	Notes  string            `json:"notes"`
}

func (h *InterventionHandler) resolveIntervention(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case models.ResolveContinue, models.ResolveCancel, models.ResolveRetry:
	default:
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid action: %s", req.Action))
		return
	}

	resolved, err := h.service.Resolve(r.Context(), id, req.Action, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
			WriteError(w, http.StatusNotFound, "intervention not found")
		case errors.Is(err, interfaces.ErrAlreadyResolved):
			WriteError(w, http.StatusConflict, "intervention already resolved")
		default:
			h.logger.Error().Err(err).Str("intervention_id", id).Msg("Failed to resolve intervention")
			WriteError(w, http.StatusInternalServerError, "failed to resolve intervention")
		}
		return
	}

	h.logger.Info().
		Str("intervention_id", id).
		Str("action", string(req.Action)).
		Msg("Intervention resolved")

	// continue and retry hand the session back to the orchestrator;
	// cancel only records the decision
	if req.Action != models.ResolveCancel && resolved.SessionID != "" && h.resumer != nil {
		h.resumeSession(resolved.SessionID)
	}

	WriteJSON(w, http.StatusOK, resolved)
}

// resumeSession re-runs a parked application in the background. The
// resumed run proceeds to submit without pausing again.
func (h *InterventionHandler) resumeSession(sessionID string) {
	common.SafeGo(h.logger, "intervention-resume", func() {
		result := h.resumer.Resume(context.Background(), sessionID, orchestrator.Request{Mode: models.ModeSemiAuto})
		h.logger.Info().
			Str("session_id", sessionID).
			Str("status", string(result.Status)).
			Str("error", result.Error).
			Msg("Session resumed after intervention")
	})
}

// viewIntervention renders the markdown page snapshot as HTML for a
// human assessing the pause
func (h *InterventionHandler) viewIntervention(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	intervention, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "intervention not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "failed to load intervention")
		return
	}

	var body bytes.Buffer
	source := fmt.Sprintf("# %s\n\n**Type:** %s\n\n**URL:** %s\n\n%s\n\n---\n\n%s",
		intervention.Title, intervention.Type, intervention.CurrentURL,
		intervention.Description, intervention.Snapshot)
	if err := h.markdown.Convert([]byte(source), &body); err != nil {
		h.logger.Error().Err(err).Str("intervention_id", id).Msg("Markdown rendering failed")
		WriteError(w, http.StatusInternalServerError, "failed to render intervention")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body.Bytes())
}
