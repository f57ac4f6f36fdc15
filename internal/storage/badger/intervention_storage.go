package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// InterventionStorage implements the InterventionStore interface for Badger
type InterventionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// resolveMu serializes resolve attempts so the single-shot
	// transition is linearizable within this process
	resolveMu sync.Mutex
}

// NewInterventionStorage creates a new InterventionStorage instance
func NewInterventionStorage(db *BadgerDB, logger arbor.ILogger) *InterventionStorage {
	return &InterventionStorage{
		db:     db,
		logger: logger,
	}
}

// Create persists a new intervention, assigning ID and timestamp when absent
func (s *InterventionStorage) Create(ctx context.Context, intervention *models.Intervention) (*models.Intervention, error) {
	if intervention == nil {
		return nil, fmt.Errorf("intervention is required")
	}
	if intervention.SessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if intervention.ID == "" {
		intervention.ID = common.NewInterventionID()
	}
	if intervention.CreatedAt.IsZero() {
		intervention.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(intervention.ID, intervention); err != nil {
		return nil, fmt.Errorf("failed to save intervention: %w", err)
	}

	s.logger.Info().
		Str("intervention_id", intervention.ID).
		Str("session_id", intervention.SessionID).
		Str("type", string(intervention.Type)).
		Msg("Intervention created")

	return intervention, nil
}

// Get loads one intervention by ID
func (s *InterventionStorage) Get(ctx context.Context, id string) (*models.Intervention, error) {
	var intervention models.Intervention
	if err := s.db.Store().Get(id, &intervention); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("intervention %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get intervention: %w", err)
	}
	return &intervention, nil
}

// List returns interventions matching the filter, newest first
func (s *InterventionStorage) List(ctx context.Context, filter models.InterventionFilter) ([]models.Intervention, error) {
	query := badgerhold.Where("ID").Ne("")
	if filter.UserID != "" {
		query = query.And("UserID").Eq(filter.UserID)
	}
	if filter.SessionID != "" {
		query = query.And("SessionID").Eq(filter.SessionID)
	}
	if filter.Type != "" {
		query = query.And("Type").Eq(filter.Type)
	}
	query = query.SortBy("CreatedAt").Reverse()

	var interventions []models.Intervention
	if err := s.db.Store().Find(&interventions, query); err != nil {
		return nil, fmt.Errorf("failed to list interventions: %w", err)
	}

	if filter.Unresolved {
		unresolved := interventions[:0]
		for _, i := range interventions {
			if !i.Resolved() {
				unresolved = append(unresolved, i)
			}
		}
		interventions = unresolved
	}
	return interventions, nil
}

// Resolve applies the single human action. Concurrent resolves yield
// ErrAlreadyResolved to all but one caller.
func (s *InterventionStorage) Resolve(ctx context.Context, id string, action models.Resolution, notes string) (*models.Intervention, error) {
	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	intervention, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if intervention.Resolved() {
		return nil, interfaces.ErrAlreadyResolved
	}

	now := time.Now()
	intervention.ResolvedAt = &now
	intervention.Resolution = action
	intervention.Notes = notes

	if err := s.db.Store().Update(id, intervention); err != nil {
		return nil, fmt.Errorf("failed to resolve intervention: %w", err)
	}

	s.logger.Info().
		Str("intervention_id", id).
		Str("resolution", string(action)).
		Msg("Intervention resolved")

	return intervention, nil
}

// ListPausedSessions returns session IDs with an unresolved intervention
func (s *InterventionStorage) ListPausedSessions(ctx context.Context) ([]string, error) {
	all, err := s.List(ctx, models.InterventionFilter{Unresolved: true})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var sessions []string
	for _, i := range all {
		if !seen[i.SessionID] {
			seen[i.SessionID] = true
			sessions = append(sessions, i.SessionID)
		}
	}
	return sessions, nil
}
