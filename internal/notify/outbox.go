// Package notify binds session event emission to the transactional outbox.
package notify

import (
	"context"

	"example.com/presence/internal/events"
)

// EventInserter is the persistence hook the emitter writes through.
type EventInserter interface {
	InsertSessionEvent(ctx context.Context, evt events.SessionEvent) error
}

// OutboxEmitter records session events as outbox rows for asynchronous
// delivery. Callers treat emission as best effort; a failed insert is
// reported but never blocks the session write that produced it.
type OutboxEmitter struct {
	store EventInserter
}

// NewOutboxEmitter constructs an OutboxEmitter.
func NewOutboxEmitter(store EventInserter) *OutboxEmitter {
	return &OutboxEmitter{store: store}
}

// Emit persists the event for the dispatcher to pick up.
func (e *OutboxEmitter) Emit(ctx context.Context, evt events.SessionEvent) error {
	return e.store.InsertSessionEvent(ctx, evt)
}
