package interventions

import (
	"context"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
)

const maxSnapshotChars = 8000

// Service wraps the intervention store with page snapshots and event
// notifications. Every create and resolve broadcasts via the event bus
// so connected clients see pauses immediately.
type Service struct {
	store  interfaces.InterventionStore
	events interfaces.EventService
	logger arbor.ILogger
}

// NewService creates an intervention service
func NewService(store interfaces.InterventionStore, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		events: events,
		logger: logger,
	}
}

// Create records a new intervention. When pageHTML is provided it is
// converted to a markdown snapshot so a human can assess the page
// without opening the browser.
func (s *Service) Create(ctx context.Context, intervention *models.Intervention, pageHTML string) (*models.Intervention, error) {
	if pageHTML != "" {
		intervention.Snapshot = s.htmlToSnapshot(pageHTML, intervention.CurrentURL)
	}

	created, err := s.store.Create(ctx, intervention)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, interfaces.EventInterventionCreated, created)
	return created, nil
}

// Get loads one intervention
func (s *Service) Get(ctx context.Context, id string) (*models.Intervention, error) {
	return s.store.Get(ctx, id)
}

// List returns interventions matching the filter
func (s *Service) List(ctx context.Context, filter models.InterventionFilter) ([]models.Intervention, error) {
	return s.store.List(ctx, filter)
}

// Resolve applies the human action and broadcasts the outcome
func (s *Service) Resolve(ctx context.Context, id string, action models.Resolution, notes string) (*models.Intervention, error) {
	resolved, err := s.store.Resolve(ctx, id, action, notes)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, interfaces.EventInterventionResolved, resolved)
	return resolved, nil
}

// ListPausedSessions returns session IDs awaiting a human
func (s *Service) ListPausedSessions(ctx context.Context) ([]string, error) {
	return s.store.ListPausedSessions(ctx)
}

// htmlToSnapshot converts page HTML to truncated markdown. Conversion
// failures fall back to a crude tag strip; a snapshot is advisory.
func (s *Service) htmlToSnapshot(html, baseURL string) string {
	converter := md.NewConverter(baseURL, true, nil)
	converted, err := converter.ConvertString(html)
	if err != nil {
		s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using fallback")
		converted = stripTags(html)
	}

	converted = strings.TrimSpace(converted)
	if len(converted) > maxSnapshotChars {
		converted = converted[:maxSnapshotChars] + "\n\n[truncated]"
	}
	return converted
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, intervention *models.Intervention) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, interfaces.Event{
		Type:      eventType,
		SessionID: intervention.SessionID,
		UserID:    intervention.UserID,
		Payload: map[string]interface{}{
			"intervention_id": intervention.ID,
			"type":            string(intervention.Type),
			"title":           intervention.Title,
			"resolution":      string(intervention.Resolution),
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("intervention_id", intervention.ID).Msg("Failed to publish intervention event")
	}
}

// stripTags is the conversion fallback: drop angle-bracketed runs
func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
