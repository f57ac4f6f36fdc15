package models

import "time"

// AttemptResult is the outcome category of one pipeline attempt
type AttemptResult string

const (
	AttemptSuccess   AttemptResult = "success"
	AttemptPaused    AttemptResult = "paused"
	AttemptBlocked   AttemptResult = "blocked"
	AttemptFailed    AttemptResult = "failed"
	AttemptSkipped   AttemptResult = "skipped"
	AttemptJobClosed AttemptResult = "job_closed"
)

// Attempt is an append-only record of one application attempt
type Attempt struct {
	JobID          string            `json:"job_id"`
	URL            string            `json:"url"`
	Title          string            `json:"title,omitempty"`
	Company        string            `json:"company,omitempty"`
	Result         AttemptResult     `json:"result"`
	SessionID      string            `json:"session_id,omitempty"`
	FilledFields   map[string]string `json:"filled_fields,omitempty"`
	BlockerType    BlockerType       `json:"blocker_type,omitempty"`
	BlockerMessage string            `json:"blocker_message,omitempty"`
	Error          string            `json:"error,omitempty"`
	Retries        int               `json:"retries"`
	Duration       time.Duration     `json:"duration"`
	Timestamp      time.Time         `json:"timestamp"`
}

// PipelineReport summarizes one pipeline run; serialized to disk at completion
type PipelineReport struct {
	UserID      string    `json:"user_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Submitted   int       `json:"submitted"`
	Paused      int       `json:"paused"`
	Blocked     int       `json:"blocked"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	JobsClosed  int       `json:"jobs_closed"`
	Attempts    []Attempt `json:"attempts"`
}
