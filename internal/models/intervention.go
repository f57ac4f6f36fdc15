package models

import "time"

// InterventionType classifies why a human is needed
type InterventionType string

const (
	InterventionCaptcha          InterventionType = "captcha"
	InterventionLoginRequired    InterventionType = "login_required"
	InterventionFileUpload       InterventionType = "file_upload"
	InterventionMultiStepForm    InterventionType = "multi_step_form"
	InterventionLocationMismatch InterventionType = "location_mismatch"
	InterventionPreSubmit        InterventionType = "pre_submit"
	InterventionUnknown          InterventionType = "unknown"
)

// Resolution is the single human action applied to an intervention
type Resolution string

const (
	ResolveContinue Resolution = "continue"
	ResolveCancel   Resolution = "cancel"
	ResolveRetry    Resolution = "retry"
)

// Intervention records a paused session awaiting a human.
// Created when the orchestrator cannot proceed; mutated exactly once by
// a human resolve action and immutable thereafter.
type Intervention struct {
	ID          string           `json:"id" badgerhold:"key"`
	SessionID   string           `json:"session_id" badgerhold:"index"`
	UserID      string           `json:"user_id" badgerhold:"index"`
	Type        InterventionType `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	CurrentURL  string           `json:"current_url"`
	Snapshot    string           `json:"snapshot,omitempty"` // Markdown summary of the page
	CreatedAt   time.Time        `json:"created_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	Resolution  Resolution       `json:"resolution,omitempty"`
	Notes       string           `json:"notes,omitempty"`
}

// Resolved reports whether the intervention has been acted on
func (i *Intervention) Resolved() bool {
	return i.ResolvedAt != nil
}

// InterventionFilter narrows intervention listings
type InterventionFilter struct {
	UserID     string
	SessionID  string
	Type       InterventionType
	Unresolved bool
}
