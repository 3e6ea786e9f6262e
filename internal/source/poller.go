package source

import (
	"context"
	"errors"
	"log"
	"time"

	"example.com/presence/internal/domain"
	"example.com/presence/internal/ledger"
)

// Sink receives presence transitions produced by the poller.
type Sink interface {
	Submit(ledger.Update)
}

// Option configures optional behaviour for the Poller.
type Option func(*Poller)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// WithInitialSnapshots primes the previous-snapshot cache, typically with the
// snapshots the startup sweep observed. Without priming the first sweep would
// diff every user against nil and report every already-open session as newly
// started.
func WithInitialSnapshots(snapshots map[string]*domain.Snapshot) Option {
	return func(p *Poller) {
		for userID, snap := range snapshots {
			if snap == nil {
				continue
			}
			cached := *snap
			p.previous[userID] = &cached
		}
	}
}

// Poller periodically reads live presence and turns it into per-user
// transitions. It owns the previous-snapshot cache: a user who drops out of
// the observable set gets one synthesized offline snapshot so their open
// sessions close, then no further updates until they reappear.
type Poller struct {
	src      Source
	sink     Sink
	interval time.Duration
	previous map[string]*domain.Snapshot
	logger   *log.Logger
	now      func() time.Time
}

// NewPoller constructs a Poller.
func NewPoller(src Source, sink Sink, interval time.Duration, opts ...Option) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p := &Poller{
		src:      src,
		sink:     sink,
		interval: interval,
		previous: make(map[string]*domain.Snapshot),
		logger:   log.New(log.Writer(), "[poller] ", log.LstdFlags),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Printf("poll failed: %v", err)
			pollErrors.Inc()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll performs one sweep over the observable set.
func (p *Poller) poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		pollDuration.Observe(time.Since(start).Seconds())
	}()

	users, err := p.src.ObservableUsers(ctx)
	if err != nil {
		return err
	}
	observedUsers.Set(float64(len(users)))

	seen := make(map[string]struct{}, len(users))
	for _, userID := range users {
		seen[userID] = struct{}{}

		snap, err := p.src.LiveSnapshot(ctx, userID)
		if err != nil {
			p.logger.Printf("snapshot failed (user=%s): %v", userID, err)
			pollErrors.Inc()
			continue
		}
		if snap == nil {
			continue
		}
		p.push(userID, *snap)
	}

	// Users that vanished since the last sweep transition to offline exactly
	// once, then their cache entry is dropped so the map does not grow with
	// every user ever observed.
	for userID, prev := range p.previous {
		if _, ok := seen[userID]; ok {
			continue
		}
		offline := domain.Snapshot{Status: domain.StatusOffline, Username: prev.Username}
		p.push(userID, offline)
		delete(p.previous, userID)
	}

	return nil
}

// push submits an update when the snapshot changed since the last sweep.
func (p *Poller) push(userID string, current domain.Snapshot) {
	prev := p.previous[userID]
	if prev != nil && snapshotEqual(*prev, current) {
		return
	}

	p.sink.Submit(ledger.Update{
		UserID:     userID,
		Previous:   prev,
		Current:    current,
		ObservedAt: p.now(),
	})
	updatesSubmitted.Inc()

	cached := current
	p.previous[userID] = &cached
}

func snapshotEqual(a, b domain.Snapshot) bool {
	if a.Status != b.Status || a.Username != b.Username {
		return false
	}
	if len(a.Activities) != len(b.Activities) {
		return false
	}
	for i := range a.Activities {
		if a.Activities[i].Name != b.Activities[i].Name {
			return false
		}
		at, bt := a.Activities[i].StartedAt, b.Activities[i].StartedAt
		if (at == nil) != (bt == nil) {
			return false
		}
		if at != nil && !at.Equal(*bt) {
			return false
		}
	}
	return true
}
