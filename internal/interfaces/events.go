package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventSessionStatusChanged EventType = "session_status_changed"
	EventApplicationProgress  EventType = "application_progress"
	EventInterventionCreated  EventType = "intervention_created"
	EventInterventionResolved EventType = "intervention_resolved"
	EventPipelineAttempt      EventType = "pipeline_attempt"
	EventPipelineFinished     EventType = "pipeline_finished"
)

// Event represents a system event
type Event struct {
	Type      EventType
	SessionID string
	UserID    string
	Payload   map[string]interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
