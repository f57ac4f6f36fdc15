package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/peto/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyResolved is returned when an intervention has already been
// resolved by a concurrent caller
var ErrAlreadyResolved = errors.New("intervention already resolved")

// JobStore is the external job store (read + status update only)
type JobStore interface {
	ListJobs(ctx context.Context, userID string, status models.JobStatus, pageSize int) ([]models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, blockerType models.BlockerType, blockerDetails string) error
}

// UserStore is the external user store (read only)
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.UserProfile, error)
	GetLinkedInStatus(ctx context.Context, userID string) (bool, error)
}

// InterventionStore records paused sessions awaiting a human
type InterventionStore interface {
	Create(ctx context.Context, intervention *models.Intervention) (*models.Intervention, error)
	Get(ctx context.Context, id string) (*models.Intervention, error)
	List(ctx context.Context, filter models.InterventionFilter) ([]models.Intervention, error)

	// Resolve applies the single human action. Concurrent resolves yield
	// ErrAlreadyResolved to all but one caller.
	Resolve(ctx context.Context, id string, action models.Resolution, notes string) (*models.Intervention, error)

	// ListPausedSessions returns session IDs with an unresolved intervention
	ListPausedSessions(ctx context.Context) ([]string, error)
}

// StateStore persists resumable application-session state across restarts
type StateStore interface {
	Save(ctx context.Context, state *models.ApplicationState) error
	Load(ctx context.Context, sessionID string) (*models.ApplicationState, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context, status models.ApplicationStatus, userID string) ([]*models.ApplicationState, error)
	ListResumable(ctx context.Context, userID string) ([]*models.ApplicationState, error)

	UpdateStatus(ctx context.Context, sessionID string, status models.ApplicationStatus) error
	UpdateProgress(ctx context.Context, sessionID string, step int, completedStep string, filled map[string]string) error
	SaveBrowserState(ctx context.Context, sessionID string, browser models.BrowserState) error

	// CleanupOld removes terminal records older than maxAge
	CleanupOld(ctx context.Context, maxAge time.Duration) (int, error)
}

// CaptchaSolver dispatches CAPTCHAs to an external solving service
type CaptchaSolver interface {
	DetectType(html string) models.CaptchaFamily
	ExtractSitekey(html string, family models.CaptchaFamily) string
	Solve(ctx context.Context, family models.CaptchaFamily, sitekey, pageURL, action string, minScore float64) (*CaptchaSolution, error)
	InjectionScript(family models.CaptchaFamily, token string) string
	SolveFromHTML(ctx context.Context, html, pageURL string) (*CaptchaSolution, error)
	GetBalance(ctx context.Context) (float64, error)
}

// CaptchaSolution is a solved token with accounting metadata
type CaptchaSolution struct {
	Family  models.CaptchaFamily `json:"family"`
	Token   string               `json:"token"`
	Elapsed time.Duration        `json:"elapsed"`
	Cost    float64              `json:"cost"`
}

// QuestionAnswerer produces answers for custom application questions.
// Implementations consult an external LLM; a nil answerer means the
// orchestrator escalates unanswered questions to an intervention.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question string, userData map[string]string, cvContent, jobContext string) (string, error)
}
