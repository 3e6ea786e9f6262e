// Package events defines the event payloads shared between the collector,
// the API process, and downstream consumers.
package events

import "time"

// Event kinds.
const (
	KindStarted = "started"
	KindEnded   = "ended"
)

// Entity types.
const (
	EntityActivity = "activity"
	EntityStatus   = "status"
)

// SessionEvent is emitted after every successful session open or close.
// Delivery is best-effort: consumers must tolerate gaps and derive correct
// state from the session tables, never from the event stream alone.
type SessionEvent struct {
	EventID       string     `json:"event_id"`
	UserID        string     `json:"user_id"`
	Kind          string     `json:"kind"`
	EntityType    string     `json:"entity_type"`
	Name          string     `json:"name"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	UnexpectedEnd bool       `json:"unexpected_end,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
