// Package ledger applies presence diffs to the session store, opening and
// closing session records while holding the at-most-one-open invariant.
package ledger

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"example.com/presence/internal/domain"
	"example.com/presence/internal/events"
	"example.com/presence/internal/observability"
	"example.com/presence/internal/presence"
)

// Emitter receives session events after each successful open or close.
// Delivery is best-effort: the ledger logs and swallows emit failures and
// never lets them affect session state.
type Emitter interface {
	Emit(ctx context.Context, event events.SessionEvent) error
}

// Option configures optional behaviour for the Ledger.
type Option func(*Ledger)

// WithLogger overrides the logger used to report non-fatal conditions.
func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger owns all mutations of session records. Calls for the same user must
// be serialized by the caller (see Dispatcher); the ledger itself does not
// lock.
type Ledger struct {
	store   domain.SessionStore
	users   domain.UserStore
	emitter Emitter
	logger  *log.Logger
	now     func() time.Time
}

// New constructs a Ledger. users and emitter may be nil when the caller has
// no use for them (tests, reconcile-only tooling).
func New(store domain.SessionStore, users domain.UserStore, emitter Emitter, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		users:   users,
		emitter: emitter,
		logger:  log.New(log.Writer(), "[ledger] ", log.LstdFlags),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ApplyDiff applies one diff result for a user. Ended activities are closed
// with endTime = observedAt; started activities open with the source start
// timestamp when available, else observedAt. A storage failure for one entity
// is surfaced but does not stop the remaining entities: the next update
// re-derives correct state from live truth.
func (l *Ledger) ApplyDiff(ctx context.Context, userID string, diff presence.Diff, observedAt time.Time) error {
	var errs []error

	for _, obs := range diff.Ended {
		if err := l.CloseOpenActivity(ctx, userID, obs.Name, observedAt); err != nil {
			errs = append(errs, err)
		}
	}

	for _, obs := range diff.Started {
		if _, err := l.OpenActivity(ctx, userID, obs, observedAt); err != nil {
			errs = append(errs, err)
		}
	}

	if diff.StatusChanged {
		if err := l.transitionStatus(ctx, userID, diff.NewStatus, observedAt); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// OpenActivity opens a new activity session. The observation's start
// timestamp wins over the fallback when the source supplied one. When an open
// session with the same name already exists it is the same session still
// running, seen again by a path that lost its previous snapshot; the existing
// session is returned and no second row is opened.
func (l *Ledger) OpenActivity(ctx context.Context, userID string, obs domain.ActivityObservation, fallbackStart time.Time) (domain.ActivitySession, error) {
	existing, err := l.store.FindOpenActivity(ctx, userID, obs.Name)
	if err != nil {
		return domain.ActivitySession{}, err
	}
	if existing != nil {
		l.logger.Printf("session already open, treating as continuation (user=%s, activity=%q)", userID, obs.Name)
		return *existing, nil
	}

	start := fallbackStart
	if obs.StartedAt != nil {
		start = *obs.StartedAt
	}

	session := domain.ActivitySession{
		ID:           uuid.NewString(),
		UserID:       userID,
		ActivityName: obs.Name,
		StartTime:    start.UTC(),
	}
	if err := l.store.OpenActivity(ctx, session); err != nil {
		return domain.ActivitySession{}, err
	}

	observability.RecordSessionOpened(events.EntityActivity)
	l.emit(ctx, events.SessionEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		Kind:       events.KindStarted,
		EntityType: events.EntityActivity,
		Name:       session.ActivityName,
		StartTime:  session.StartTime,
		OccurredAt: l.now(),
	})
	return session, nil
}

// CloseOpenActivity closes the open session for (userID, activityName), if
// one exists. A missing open session is not an error: a concurrent path
// already closed it, so the ledger logs and moves on.
func (l *Ledger) CloseOpenActivity(ctx context.Context, userID, activityName string, endTime time.Time) error {
	open, err := l.store.FindOpenActivity(ctx, userID, activityName)
	if err != nil {
		return err
	}
	if open == nil {
		l.logger.Printf("no open session to close (user=%s, activity=%q)", userID, activityName)
		return nil
	}
	return l.CloseActivitySession(ctx, *open, endTime, false)
}

// CloseActivitySession closes a known open session.
func (l *Ledger) CloseActivitySession(ctx context.Context, session domain.ActivitySession, endTime time.Time, unexpected bool) error {
	endTime = endTime.UTC()
	if err := l.store.CloseActivity(ctx, session.ID, endTime, unexpected); err != nil {
		return err
	}

	observability.RecordSessionClosed(events.EntityActivity, unexpected)
	l.emit(ctx, events.SessionEvent{
		EventID:       uuid.NewString(),
		UserID:        session.UserID,
		Kind:          events.KindEnded,
		EntityType:    events.EntityActivity,
		Name:          session.ActivityName,
		StartTime:     session.StartTime,
		EndTime:       &endTime,
		UnexpectedEnd: unexpected,
		OccurredAt:    l.now(),
	})
	return nil
}

// OpenStatus opens a new status session.
func (l *Ledger) OpenStatus(ctx context.Context, userID, status string, start time.Time) (domain.StatusSession, error) {
	session := domain.StatusSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    status,
		StartTime: start.UTC(),
	}
	if err := l.store.OpenStatus(ctx, session); err != nil {
		return domain.StatusSession{}, err
	}

	observability.RecordSessionOpened(events.EntityStatus)
	l.emit(ctx, events.SessionEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		Kind:       events.KindStarted,
		EntityType: events.EntityStatus,
		Name:       status,
		StartTime:  session.StartTime,
		OccurredAt: l.now(),
	})
	return session, nil
}

// CloseStatusSession closes a known open status session.
func (l *Ledger) CloseStatusSession(ctx context.Context, session domain.StatusSession, endTime time.Time, unexpected bool) error {
	endTime = endTime.UTC()
	if err := l.store.CloseStatus(ctx, session.ID, endTime, unexpected); err != nil {
		return err
	}

	observability.RecordSessionClosed(events.EntityStatus, unexpected)
	l.emit(ctx, events.SessionEvent{
		EventID:       uuid.NewString(),
		UserID:        session.UserID,
		Kind:          events.KindEnded,
		EntityType:    events.EntityStatus,
		Name:          session.Status,
		StartTime:     session.StartTime,
		EndTime:       &endTime,
		UnexpectedEnd: unexpected,
		OccurredAt:    l.now(),
	})
	return nil
}

// transitionStatus closes the current open status session, if any, and opens
// one for the new value. Both edges carry observedAt so the history stays
// gapless.
func (l *Ledger) transitionStatus(ctx context.Context, userID, newStatus string, observedAt time.Time) error {
	open, err := l.store.FindOpenStatus(ctx, userID)
	if err != nil {
		return err
	}
	if open != nil {
		if open.Status == newStatus {
			return nil
		}
		if err := l.CloseStatusSession(ctx, *open, observedAt, false); err != nil {
			return err
		}
	}

	_, err = l.OpenStatus(ctx, userID, newStatus, observedAt)
	return err
}

// RecordUser upserts the user row from a presence update. Failures are
// logged only; user metadata is display sugar, not session state.
func (l *Ledger) RecordUser(ctx context.Context, userID, username string) {
	if l.users == nil || username == "" {
		return
	}
	err := l.users.UpsertUser(ctx, domain.User{ID: userID, Username: username, CreatedAt: l.now()})
	if err != nil {
		l.logger.Printf("user upsert failed (user=%s): %v", userID, err)
	}
}

func (l *Ledger) emit(ctx context.Context, event events.SessionEvent) {
	if l.emitter == nil {
		return
	}
	if err := l.emitter.Emit(ctx, event); err != nil {
		l.logger.Printf("event emit failed (user=%s, kind=%s/%s): %v", event.UserID, event.EntityType, event.Kind, err)
	}
}
