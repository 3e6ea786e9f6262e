// Package reconcile repairs session state at process start, using live
// presence as ground truth, before any live diff is applied.
package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"example.com/presence/internal/domain"
	"example.com/presence/internal/ledger"
	"example.com/presence/internal/presence"
	"example.com/presence/internal/source"
)

// sessionKey identifies one potentially-continuing activity session.
type sessionKey struct {
	userID       string
	activityName string
}

// keepSet is the result of the close pass, handed to the seed pass so it
// does not duplicate sessions that were confirmed as still running.
type keepSet struct {
	activities map[sessionKey]struct{}
	statuses   map[string]struct{}
}

// Option configures optional behaviour for the Reconciler.
type Option func(*Reconciler)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// Reconciler closes sessions left open by the previous process run and seeds
// the ledger with live activity and status that has no open record. Run must
// complete before the live update path starts; otherwise a live diff can race
// a seed and double-open a session.
type Reconciler struct {
	store     domain.SessionStore
	src       source.Source
	ledger    *ledger.Ledger
	tolerance time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// New constructs a Reconciler.
func New(store domain.SessionStore, src source.Source, led *ledger.Ledger, tolerance time.Duration, opts ...Option) *Reconciler {
	if tolerance <= 0 {
		tolerance = presence.DefaultDriftTolerance
	}
	r := &Reconciler{
		store:     store,
		src:       src,
		ledger:    led,
		tolerance: tolerance,
		logger:    log.New(log.Writer(), "[reconcile] ", log.LstdFlags),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the close pass over every user with open sessions, then the
// seed pass over every observable user. A failure for one user never blocks
// the others; only a failure to enumerate users aborts the sweep. The
// returned map holds the live snapshot observed for each user; the caller
// hands it to the poller as the initial previous-snapshot cache, so the first
// live sweep diffs against what this sweep already recorded instead of
// re-opening every kept session.
func (r *Reconciler) Run(ctx context.Context) (map[string]*domain.Snapshot, error) {
	start := time.Now()
	defer func() {
		sweepDuration.Observe(time.Since(start).Seconds())
	}()

	seen := make(map[string]*domain.Snapshot)
	kept, err := r.closePass(ctx, seen)
	if err != nil {
		return nil, err
	}
	if err := r.seedPass(ctx, kept, seen); err != nil {
		return nil, err
	}
	return seen, nil
}

func (r *Reconciler) closePass(ctx context.Context, seen map[string]*domain.Snapshot) (keepSet, error) {
	kept := keepSet{
		activities: make(map[sessionKey]struct{}),
		statuses:   make(map[string]struct{}),
	}

	owners, err := r.store.ListOpenSessionOwners(ctx)
	if err != nil {
		return kept, err
	}

	for _, userID := range owners {
		if err := r.closeUser(ctx, userID, kept, seen); err != nil {
			r.logger.Printf("close pass failed (user=%s): %v", userID, err)
		}
	}
	return kept, nil
}

// closeUser resolves every open session for one user against live truth.
func (r *Reconciler) closeUser(ctx context.Context, userID string, kept keepSet, seen map[string]*domain.Snapshot) error {
	observable, err := r.src.Observable(ctx, userID)
	if err != nil {
		return err
	}

	var snap *domain.Snapshot
	if observable {
		if snap, err = r.src.LiveSnapshot(ctx, userID); err != nil {
			return err
		}
		if snap != nil {
			seen[userID] = snap
		}
	}

	now := r.now()
	var errs []error

	openActivities, err := r.store.ListOpenActivities(ctx, userID)
	if err != nil {
		return err
	}
	for _, session := range openActivities {
		if snap != nil && r.continues(session, *snap) {
			kept.activities[sessionKey{userID: userID, activityName: session.ActivityName}] = struct{}{}
			sessionsKept.Inc()
			continue
		}
		if err := r.ledger.CloseActivitySession(ctx, session, now, true); err != nil {
			errs = append(errs, err)
			continue
		}
		sessionsClosed.Inc()
	}

	openStatus, err := r.store.FindOpenStatus(ctx, userID)
	if err != nil {
		return err
	}
	if openStatus != nil {
		liveStatus := domain.StatusOffline
		if snap != nil && snap.Status != "" {
			liveStatus = snap.Status
		}
		if openStatus.Status == liveStatus {
			// Same value as live truth; closing and reopening would only
			// fabricate an edge, and would make a second sweep non-idempotent.
			kept.statuses[userID] = struct{}{}
		} else {
			if err := r.ledger.CloseStatusSession(ctx, *openStatus, now, true); err != nil {
				errs = append(errs, err)
			} else {
				sessionsClosed.Inc()
				if !observable {
					// Observable users get their new status in the seed pass;
					// unobservable users are not visited there, so the offline
					// interval starts here.
					if _, err := r.ledger.OpenStatus(ctx, userID, domain.StatusOffline, now); err != nil {
						errs = append(errs, err)
					} else {
						sessionsSeeded.Inc()
					}
				}
			}
		}
	}

	return errors.Join(errs...)
}

// continues applies the continuation heuristic: a live entry with the same
// name whose reported start time is within the drift tolerance of the
// session's recorded start. A live entry with no timestamp cannot confirm
// continuation; the ambiguous case resolves to closing, never to guessing.
func (r *Reconciler) continues(session domain.ActivitySession, snap domain.Snapshot) bool {
	for _, obs := range snap.Activities {
		if presence.CompareSession(session, obs, r.tolerance) == presence.MatchSame {
			return true
		}
	}
	return false
}

func (r *Reconciler) seedPass(ctx context.Context, kept keepSet, seen map[string]*domain.Snapshot) error {
	users, err := r.src.ObservableUsers(ctx)
	if err != nil {
		return err
	}

	for _, userID := range users {
		if err := r.seedUser(ctx, userID, kept, seen); err != nil {
			r.logger.Printf("seed pass failed (user=%s): %v", userID, err)
		}
	}
	return nil
}

func (r *Reconciler) seedUser(ctx context.Context, userID string, kept keepSet, seen map[string]*domain.Snapshot) error {
	snap, err := r.src.LiveSnapshot(ctx, userID)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	seen[userID] = snap

	now := r.now()
	r.ledger.RecordUser(ctx, userID, snap.Username)

	var errs []error
	opened := make(map[string]struct{})
	for _, obs := range snap.Activities {
		if _, ok := kept.activities[sessionKey{userID: userID, activityName: obs.Name}]; ok {
			continue
		}
		if _, ok := opened[obs.Name]; ok {
			continue
		}
		if _, err := r.ledger.OpenActivity(ctx, userID, obs, now); err != nil {
			errs = append(errs, err)
			continue
		}
		opened[obs.Name] = struct{}{}
		sessionsSeeded.Inc()
	}

	if _, ok := kept.statuses[userID]; !ok {
		status := snap.Status
		if status == "" {
			status = domain.StatusOffline
		}
		if _, err := r.ledger.OpenStatus(ctx, userID, status, now); err != nil {
			errs = append(errs, err)
		} else {
			sessionsSeeded.Inc()
		}
	}

	return errors.Join(errs...)
}
