package models

import "time"

// ApplicationStatus is the lifecycle state of one application attempt
type ApplicationStatus string

const (
	AppPending           ApplicationStatus = "pending"
	AppInProgress        ApplicationStatus = "in_progress"
	AppPaused            ApplicationStatus = "paused"
	AppNeedsIntervention ApplicationStatus = "needs_intervention"
	AppSubmitted         ApplicationStatus = "submitted"
	AppFailed            ApplicationStatus = "failed"
	AppCancelled         ApplicationStatus = "cancelled"
)

// IsTerminal reports whether the status ends the application lifecycle
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case AppSubmitted, AppFailed, AppCancelled:
		return true
	}
	return false
}

// ExecutionMode controls how much autonomy the orchestrator has
type ExecutionMode string

const (
	ModeAssisted ExecutionMode = "assisted"  // Pause before submit
	ModeSemiAuto ExecutionMode = "semi_auto" // Submit, pause on obstacles
	ModeAuto     ExecutionMode = "auto"      // Fully autonomous
)

// BrowserState is the persisted browser context for session restoration
type BrowserState struct {
	Cookies      []Cookie          `json:"cookies,omitempty"`
	LocalStorage map[string]string `json:"local_storage,omitempty"`
	URL          string            `json:"url,omitempty"`
}

// HasState reports whether enough browser context exists to restore a page
func (b BrowserState) HasState() bool {
	return len(b.Cookies) > 0 || b.URL != ""
}

// ApplicationState is the resumable record of one in-flight application.
// Serialized to stable storage after every observable step.
type ApplicationState struct {
	SessionID      string            `json:"session_id" validate:"required"`
	UserID         string            `json:"user_id" validate:"required"`
	JobURL         string            `json:"job_url" validate:"required,url"`
	Status         ApplicationStatus `json:"status"`
	Mode           ExecutionMode     `json:"mode"`
	CurrentStep    int               `json:"current_step"`
	CompletedSteps []string          `json:"completed_steps,omitempty"`
	FilledFields   map[string]string `json:"filled_fields,omitempty"`
	Browser        BrowserState      `json:"browser"`
	UserData       map[string]string `json:"user_data,omitempty"`
	CVContent      string            `json:"cv_content,omitempty"`
	BlockerType    BlockerType       `json:"blocker_type,omitempty"`
	BlockerMessage string            `json:"blocker_message,omitempty"`
	InterventionID string            `json:"intervention_id,omitempty"`
	RetryCount     int               `json:"retry_count"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	PausedAt       *time.Time        `json:"paused_at,omitempty"`
}
