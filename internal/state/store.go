package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
)

// FileStore persists application session state as one JSON file per
// session under a base directory. Writes go through a temp file plus
// rename so a crash never leaves a torn record. An in-memory cache is
// kept write-through consistent with the files.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	cache  map[string]*models.ApplicationState
	maxAge time.Duration // resumable window since pause
	logger arbor.ILogger
}

// NewFileStore opens (creating if needed) the state directory and loads
// existing records into the cache
func NewFileStore(dir string, resumableWindow time.Duration, logger arbor.ILogger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if resumableWindow <= 0 {
		resumableWindow = 24 * time.Hour
	}

	s := &FileStore{
		dir:    dir,
		cache:  make(map[string]*models.ApplicationState),
		maxAge: resumableWindow,
		logger: logger,
	}
	if err := s.warmCache(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) warmCache() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read state directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		state, err := s.readFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable state file")
			continue
		}
		s.cache[state.SessionID] = state
		loaded++
	}

	s.logger.Info().Int("sessions", loaded).Str("dir", s.dir).Msg("Session state loaded")
	return nil
}

// Save upserts one record, stamping updated_at
func (s *FileStore) Save(ctx context.Context, state *models.ApplicationState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("state with session ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now

	if err := s.writeFile(state); err != nil {
		return err
	}

	copied := *state
	s.cache[state.SessionID] = &copied
	return nil
}

// Load returns one record by session ID
func (s *FileStore) Load(ctx context.Context, sessionID string) (*models.ApplicationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.cache[sessionID]
	if !ok {
		return nil, fmt.Errorf("session state %s: %w", sessionID, interfaces.ErrNotFound)
	}
	copied := *state
	return &copied, nil
}

// Delete removes the record and its file
func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[sessionID]; !ok {
		return fmt.Errorf("session state %s: %w", sessionID, interfaces.ErrNotFound)
	}
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	delete(s.cache, sessionID)
	return nil
}

// List returns records matching the optional status and user filters,
// most recently updated first
func (s *FileStore) List(ctx context.Context, status models.ApplicationStatus, userID string) ([]*models.ApplicationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ApplicationState
	for _, state := range s.cache {
		if status != "" && state.Status != status {
			continue
		}
		if userID != "" && state.UserID != userID {
			continue
		}
		copied := *state
		out = append(out, &copied)
	}
	sortByUpdatedDesc(out)
	return out, nil
}

// ListResumable returns sessions a human or the orchestrator can pick
// back up: paused or awaiting intervention, paused within the window,
// with persisted browser state.
func (s *FileStore) ListResumable(ctx context.Context, userID string) ([]*models.ApplicationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-s.maxAge)
	var out []*models.ApplicationState
	for _, state := range s.cache {
		if userID != "" && state.UserID != userID {
			continue
		}
		if state.Status != models.AppPaused && state.Status != models.AppNeedsIntervention {
			continue
		}
		pausedAt := state.UpdatedAt
		if state.PausedAt != nil {
			pausedAt = *state.PausedAt
		}
		if pausedAt.Before(cutoff) {
			continue
		}
		if !state.Browser.HasState() {
			continue
		}
		copied := *state
		out = append(out, &copied)
	}
	sortByUpdatedDesc(out)
	return out, nil
}

// UpdateStatus transitions one record, stamping paused_at on pauses
func (s *FileStore) UpdateStatus(ctx context.Context, sessionID string, status models.ApplicationStatus) error {
	return s.mutate(sessionID, func(state *models.ApplicationState) {
		state.Status = status
		if status == models.AppPaused || status == models.AppNeedsIntervention {
			now := time.Now()
			state.PausedAt = &now
		}
	})
}

// UpdateProgress records a completed step and merges filled fields
func (s *FileStore) UpdateProgress(ctx context.Context, sessionID string, step int, completedStep string, filled map[string]string) error {
	return s.mutate(sessionID, func(state *models.ApplicationState) {
		state.CurrentStep = step
		if completedStep != "" {
			state.CompletedSteps = append(state.CompletedSteps, completedStep)
		}
		if len(filled) > 0 {
			if state.FilledFields == nil {
				state.FilledFields = make(map[string]string)
			}
			for k, v := range filled {
				state.FilledFields[k] = v
			}
		}
	})
}

// SaveBrowserState persists the browser context for later restoration
func (s *FileStore) SaveBrowserState(ctx context.Context, sessionID string, browser models.BrowserState) error {
	return s.mutate(sessionID, func(state *models.ApplicationState) {
		state.Browser = browser
	})
}

// CleanupOld removes terminal records older than maxAge. Returns the
// number of records removed.
func (s *FileStore) CleanupOld(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, state := range s.cache {
		if !state.Status.IsTerminal() || state.UpdatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to remove old state file")
			continue
		}
		delete(s.cache, id)
		removed++
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Old session state cleaned up")
	}
	return removed, nil
}

// RecoverInterrupted marks sessions that were mid-flight when the
// process died as failed. Called once at startup, before any new work.
func (s *FileStore) RecoverInterrupted(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recovered := 0
	for _, state := range s.cache {
		if state.Status != models.AppInProgress && state.Status != models.AppPending {
			continue
		}
		state.Status = models.AppFailed
		state.BlockerMessage = "interrupted by restart"
		state.UpdatedAt = time.Now()
		if err := s.writeFile(state); err != nil {
			return recovered, err
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Warn().Int("sessions", recovered).Msg("Interrupted sessions marked failed after restart")
	}
	return recovered, nil
}

func (s *FileStore) mutate(sessionID string, fn func(*models.ApplicationState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.cache[sessionID]
	if !ok {
		return fmt.Errorf("session state %s: %w", sessionID, interfaces.ErrNotFound)
	}

	fn(state)
	state.UpdatedAt = time.Now()
	return s.writeFile(state)
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// writeFile serializes to a temp file then renames over the target
func (s *FileStore) writeFile(state *models.ApplicationState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	target := s.path(state.SessionID)
	tmp, err := os.CreateTemp(s.dir, state.SessionID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (s *FileStore) readFile(path string) (*models.ApplicationState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state models.ApplicationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("malformed state file %s: %w", filepath.Base(path), err)
	}
	if state.SessionID == "" {
		return nil, fmt.Errorf("state file %s has no session ID", filepath.Base(path))
	}
	return &state, nil
}

func sortByUpdatedDesc(states []*models.ApplicationState) {
	sort.Slice(states, func(i, j int) bool {
		return states[i].UpdatedAt.After(states[j].UpdatedAt)
	})
}
