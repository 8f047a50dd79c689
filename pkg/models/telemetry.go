package models

import (
	"time"

	"github.com/google/uuid"
)

// Telemetry event types. Events are append-only; no analytics run on them
// in-process.
const (
	EventAdventureStarted = "adventure_started"
	EventChapterViewed    = "chapter_viewed"
	EventChoiceMade       = "choice_made"
	EventSummaryViewed    = "summary_viewed"
	EventPlannerWarning   = "planner_warning"
	EventStateRepaired    = "state_repaired"
)

// TelemetryEvent is a single recorded event. Every event carries the
// adventure id, the optional user id, the deployment environment tag, and a
// timestamp; type-specific fields ride in Payload.
type TelemetryEvent struct {
	EventType   string         `json:"event_type"`
	AdventureID uuid.UUID      `json:"adventure_id"`
	UserID      string         `json:"user_id,omitempty"`
	Environment string         `json:"environment"`
	Timestamp   time.Time      `json:"timestamp"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// NewTelemetryEvent builds an event stamped with the current time.
func NewTelemetryEvent(eventType string, adventureID uuid.UUID, userID string, payload map[string]any) TelemetryEvent {
	return TelemetryEvent{
		EventType:   eventType,
		AdventureID: adventureID,
		UserID:      userID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}
