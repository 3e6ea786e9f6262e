package source

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/presence/internal/domain"
	"example.com/presence/internal/ledger"
)

type stubSource struct {
	users     []string
	snapshots map[string]*domain.Snapshot
}

func (s *stubSource) Observable(_ context.Context, userID string) (bool, error) {
	return s.snapshots[userID] != nil, nil
}

func (s *stubSource) LiveSnapshot(_ context.Context, userID string) (*domain.Snapshot, error) {
	return s.snapshots[userID], nil
}

func (s *stubSource) ObservableUsers(_ context.Context) ([]string, error) {
	return s.users, nil
}

type captureSink struct {
	updates []ledger.Update
}

func (c *captureSink) Submit(u ledger.Update) {
	c.updates = append(c.updates, u)
}

func ts(t time.Time) *time.Time { return &t }

func newTestPoller(src *stubSource, sink *captureSink, now time.Time) *Poller {
	return NewPoller(src, sink, time.Minute,
		WithLogger(log.New(io.Discard, "", 0)),
		WithClock(func() time.Time { return now }),
	)
}

func TestPollerSubmitsNewSnapshot(t *testing.T) {
	now := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	src := &stubSource{
		users: []string{"u1"},
		snapshots: map[string]*domain.Snapshot{
			"u1": {Status: "online", Username: "alice"},
		},
	}
	sink := &captureSink{}
	p := newTestPoller(src, sink, now)

	require.NoError(t, p.poll(context.Background()))
	require.Len(t, sink.updates, 1)
	require.Equal(t, "u1", sink.updates[0].UserID)
	require.Nil(t, sink.updates[0].Previous, "first sight has no previous snapshot")
	require.Equal(t, "online", sink.updates[0].Current.Status)
	require.Equal(t, now, sink.updates[0].ObservedAt)
}

func TestPollerSkipsUnchangedSnapshot(t *testing.T) {
	now := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	started := now.Add(-time.Hour)
	src := &stubSource{
		users: []string{"u1"},
		snapshots: map[string]*domain.Snapshot{
			"u1": {
				Status:     "online",
				Activities: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(started)}},
			},
		},
	}
	sink := &captureSink{}
	p := newTestPoller(src, sink, now)

	require.NoError(t, p.poll(context.Background()))
	require.NoError(t, p.poll(context.Background()))
	require.Len(t, sink.updates, 1, "identical snapshot must not produce a second update")
}

func TestPollerCarriesPreviousSnapshot(t *testing.T) {
	now := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	src := &stubSource{
		users: []string{"u1"},
		snapshots: map[string]*domain.Snapshot{
			"u1": {Status: "online"},
		},
	}
	sink := &captureSink{}
	p := newTestPoller(src, sink, now)

	require.NoError(t, p.poll(context.Background()))

	src.snapshots["u1"] = &domain.Snapshot{Status: "idle"}
	require.NoError(t, p.poll(context.Background()))

	require.Len(t, sink.updates, 2)
	require.NotNil(t, sink.updates[1].Previous)
	require.Equal(t, "online", sink.updates[1].Previous.Status)
	require.Equal(t, "idle", sink.updates[1].Current.Status)
}

func TestPollerSynthesizesOfflineForVanishedUser(t *testing.T) {
	now := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	src := &stubSource{
		users: []string{"u1"},
		snapshots: map[string]*domain.Snapshot{
			"u1": {Status: "online", Username: "alice"},
		},
	}
	sink := &captureSink{}
	p := newTestPoller(src, sink, now)

	require.NoError(t, p.poll(context.Background()))

	src.users = nil
	delete(src.snapshots, "u1")
	require.NoError(t, p.poll(context.Background()))

	require.Len(t, sink.updates, 2)
	offline := sink.updates[1]
	require.Equal(t, domain.StatusOffline, offline.Current.Status)
	require.Empty(t, offline.Current.Activities)
	require.Equal(t, "alice", offline.Current.Username)

	// Still gone: the cache entry was evicted with the offline transition, so
	// further sweeps stay quiet and the map does not accumulate departed users.
	require.Empty(t, p.previous)
	require.NoError(t, p.poll(context.Background()))
	require.Len(t, sink.updates, 2)
}

func TestPollerPrimedCacheSuppressesFirstSweep(t *testing.T) {
	now := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	started := now.Add(-time.Hour)
	live := &domain.Snapshot{
		Status:     "online",
		Username:   "alice",
		Activities: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(started)}},
	}
	src := &stubSource{
		users:     []string{"u1"},
		snapshots: map[string]*domain.Snapshot{"u1": live},
	}
	sink := &captureSink{}
	p := NewPoller(src, sink, time.Minute,
		WithLogger(log.New(io.Discard, "", 0)),
		WithClock(func() time.Time { return now }),
		WithInitialSnapshots(map[string]*domain.Snapshot{"u1": live}),
	)

	// The startup sweep already recorded this state; the first live sweep
	// must not replay it as a batch of session starts.
	require.NoError(t, p.poll(context.Background()))
	require.Empty(t, sink.updates)

	src.snapshots["u1"] = &domain.Snapshot{Status: "idle", Username: "alice"}
	require.NoError(t, p.poll(context.Background()))

	require.Len(t, sink.updates, 1)
	require.NotNil(t, sink.updates[0].Previous, "primed snapshot must flow through as previous")
	require.Equal(t, "online", sink.updates[0].Previous.Status)
	require.Len(t, sink.updates[0].Previous.Activities, 1)
}
