package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/browser"
	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
)

// managedSession pairs session metadata with its live adapter
type managedSession struct {
	mu      sync.Mutex
	session models.BrowserSession
	adapter interfaces.BrowserAdapter
}

// Manager owns the lifecycle of browser sessions: creation, lookup,
// activity tracking, idle reaping, and shutdown.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*managedSession

	defaults    models.BrowserOptions
	idleTimeout time.Duration
	events      interfaces.EventService
	logger      arbor.ILogger
	cron        *cron.Cron
	factory     AdapterFactory
}

// AdapterFactory constructs a browser adapter for a session
type AdapterFactory func(opts models.BrowserOptions, logger arbor.ILogger) (interfaces.BrowserAdapter, error)

// NewManager creates a session manager with the given adapter defaults
func NewManager(defaults models.BrowserOptions, idleTimeout time.Duration, events interfaces.EventService, logger arbor.ILogger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:    make(map[string]*managedSession),
		defaults:    defaults,
		idleTimeout: idleTimeout,
		events:      events,
		logger:      logger,
		factory:     browser.New,
	}
}

// SetAdapterFactory overrides adapter construction, for tests
func (m *Manager) SetAdapterFactory(factory AdapterFactory) {
	m.factory = factory
}

// Start schedules the idle sweep on the given interval
func (m *Manager) Start(sweepInterval time.Duration) error {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	m.cron = cron.New()
	_, err := m.cron.AddFunc(fmt.Sprintf("@every %s", sweepInterval), func() {
		m.SweepIdle(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule idle sweep: %w", err)
	}
	m.cron.Start()
	m.logger.Info().
		Str("idle_timeout", m.idleTimeout.String()).
		Str("sweep_interval", sweepInterval.String()).
		Msg("Session manager started")
	return nil
}

// Create launches a new browser session. Option zero-values fall back
// to the manager defaults.
func (m *Manager) Create(ctx context.Context, opts models.BrowserOptions) (*models.BrowserSession, error) {
	merged := m.mergeOptions(opts)

	adapter, err := m.factory(merged, m.logger)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := models.BrowserSession{
		ID:           common.NewSessionID(),
		Status:       models.SessionCreating,
		Backend:      adapter.Backend(),
		CreatedAt:    now,
		LastActionAt: now,
	}

	if res := adapter.Initialize(ctx); !res.Success {
		return nil, fmt.Errorf("browser initialization failed: %s", res.Error)
	}
	session.Status = models.SessionActive

	m.mu.Lock()
	m.sessions[session.ID] = &managedSession{session: session, adapter: adapter}
	m.mu.Unlock()

	m.logger.Info().
		Str("session_id", session.ID).
		Str("backend", string(session.Backend)).
		Msg("Browser session created")
	m.publishStatus(session.ID, session.Status)

	return &session, nil
}

// Get returns the adapter for a session, or an error when it does not
// exist or is already closed
func (m *Manager) Get(sessionID string) (interfaces.BrowserAdapter, error) {
	ms := m.lookup(sessionID)
	if ms == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, interfaces.ErrNotFound)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.session.Status == models.SessionClosed {
		return nil, fmt.Errorf("session %s is closed", sessionID)
	}
	return ms.adapter, nil
}

// Describe returns a copy of the session metadata
func (m *Manager) Describe(sessionID string) (*models.BrowserSession, error) {
	ms := m.lookup(sessionID)
	if ms == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, interfaces.ErrNotFound)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	copied := ms.session
	return &copied, nil
}

// List returns metadata for all live sessions
func (m *Manager) List() []models.BrowserSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.BrowserSession, 0, len(m.sessions))
	for _, ms := range m.sessions {
		ms.mu.Lock()
		out = append(out, ms.session)
		ms.mu.Unlock()
	}
	return out
}

// Touch records activity on a session, resetting its idle clock
func (m *Manager) Touch(sessionID string) {
	ms := m.lookup(sessionID)
	if ms == nil {
		return
	}
	ms.mu.Lock()
	ms.session.LastActionAt = time.Now()
	ms.session.ActionCount++
	if ms.session.Status == models.SessionIdle {
		ms.session.Status = models.SessionActive
	}
	ms.mu.Unlock()
}

// UpdateLocation records the page the session is currently on
func (m *Manager) UpdateLocation(sessionID, url, title string) {
	ms := m.lookup(sessionID)
	if ms == nil {
		return
	}
	ms.mu.Lock()
	ms.session.CurrentURL = url
	ms.session.PageTitle = title
	ms.mu.Unlock()
}

// SetStatus transitions a session and publishes the change
func (m *Manager) SetStatus(sessionID string, status models.SessionStatus) {
	ms := m.lookup(sessionID)
	if ms == nil {
		return
	}
	ms.mu.Lock()
	changed := ms.session.Status != status
	ms.session.Status = status
	ms.mu.Unlock()
	if changed {
		m.publishStatus(sessionID, status)
	}
}

// Close shuts down one session and removes it from the registry
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	ms, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, interfaces.ErrNotFound)
	}

	ms.mu.Lock()
	ms.session.Status = models.SessionClosed
	adapter := ms.adapter
	ms.mu.Unlock()

	if res := adapter.Close(ctx); !res.Success {
		m.logger.Warn().
			Str("session_id", sessionID).
			Str("error", res.Error).
			Msg("Browser close reported an error")
	}

	m.logger.Info().Str("session_id", sessionID).Msg("Browser session closed")
	m.publishStatus(sessionID, models.SessionClosed)
	return nil
}

// SweepIdle closes sessions that have been inactive past the idle
// timeout. Returns the number of sessions reaped.
func (m *Manager) SweepIdle(ctx context.Context) int {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.RLock()
	var stale []string
	for id, ms := range m.sessions {
		ms.mu.Lock()
		if ms.session.LastActionAt.Before(cutoff) {
			stale = append(stale, id)
		}
		ms.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.logger.Info().
			Str("session_id", id).
			Str("idle_timeout", m.idleTimeout.String()).
			Msg("Reaping idle session")
		if err := m.Close(ctx, id); err != nil {
			m.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to reap idle session")
		}
	}
	return len(stale)
}

// Shutdown closes all sessions in parallel and stops the sweep
func (m *Manager) Shutdown(ctx context.Context) {
	if m.cron != nil {
		m.cron.Stop()
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		sessionID := id
		common.SafeGo(m.logger, "session-shutdown", func() {
			defer wg.Done()
			_ = m.Close(ctx, sessionID)
		})
	}
	wg.Wait()

	m.logger.Info().Int("count", len(ids)).Msg("All browser sessions closed")
}

func (m *Manager) lookup(sessionID string) *managedSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

func (m *Manager) mergeOptions(opts models.BrowserOptions) models.BrowserOptions {
	merged := m.defaults
	if opts.Backend != "" {
		merged.Backend = opts.Backend
	}
	if opts.ViewportWidth > 0 {
		merged.ViewportWidth = opts.ViewportWidth
	}
	if opts.ViewportHeight > 0 {
		merged.ViewportHeight = opts.ViewportHeight
	}
	if opts.UserAgent != "" {
		merged.UserAgent = opts.UserAgent
	}
	if opts.DefaultTimeout > 0 {
		merged.DefaultTimeout = opts.DefaultTimeout
	}
	if opts.NavTimeout > 0 {
		merged.NavTimeout = opts.NavTimeout
	}
	if opts.SlowMo > 0 {
		merged.SlowMo = opts.SlowMo
	}
	return merged
}

func (m *Manager) publishStatus(sessionID string, status models.SessionStatus) {
	if m.events == nil {
		return
	}
	_ = m.events.Publish(context.Background(), interfaces.Event{
		Type:      interfaces.EventSessionStatusChanged,
		SessionID: sessionID,
		Payload:   map[string]interface{}{"status": string(status)},
	})
}
