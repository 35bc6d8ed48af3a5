package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	// Match events
	EventTypeMatchCreated EventType = "match.created"

	// Run lifecycle events
	EventTypeRunStarted   EventType = "pipeline.run.started"
	EventTypeRunCompleted EventType = "pipeline.run.completed"
	EventTypeRunFailed    EventType = "pipeline.run.failed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// MatchCreatedEvent is emitted for each decision persisted by a run
type MatchCreatedEvent struct {
	BaseEvent
	UserID            string   `json:"user_id"`
	LoanProductID     string   `json:"loan_product_id"`
	MatchScore        float64  `json:"match_score"`
	EligibilityStatus string   `json:"eligibility_status"`
	Reasons           []string `json:"reasons,omitempty"`
}

// RunStartedEvent is emitted when a matching run begins
type RunStartedEvent struct {
	BaseEvent
}

// RunCompletedEvent is emitted when a matching run reaches a completed state
type RunCompletedEvent struct {
	BaseEvent
	UsersProcessed int `json:"users_processed"`
	MatchesCreated int `json:"matches_created"`
}

// RunFailedEvent is emitted when a matching run fails
type RunFailedEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
