package ledger

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/presence/internal/domain"
	"example.com/presence/internal/events"
	"example.com/presence/internal/persistence/memory"
	"example.com/presence/internal/presence"
)

type captureEmitter struct {
	events []events.SessionEvent
	err    error
}

func (e *captureEmitter) Emit(_ context.Context, event events.SessionEvent) error {
	e.events = append(e.events, event)
	return e.err
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func ts(t time.Time) *time.Time { return &t }

func TestApplyDiffClosesEndedActivity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	emitter := &captureEmitter{}
	led := New(store, nil, emitter, WithLogger(quietLogger()))

	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	_, err := led.OpenActivity(ctx, "u1", domain.ActivityObservation{Name: "Chess", StartedAt: ts(t0)}, t0)
	require.NoError(t, err)

	observedAt := t0.Add(30 * time.Minute)
	diff := presence.Diff{Ended: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0)}}}
	require.NoError(t, led.ApplyDiff(ctx, "u1", diff, observedAt))

	sessions := store.ActivitySessions("u1")
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].EndTime)
	require.Equal(t, observedAt, *sessions[0].EndTime)
	require.False(t, sessions[0].UnexpectedEnd)

	require.Len(t, emitter.events, 2)
	require.Equal(t, events.KindStarted, emitter.events[0].Kind)
	require.Equal(t, events.KindEnded, emitter.events[1].Kind)
	require.Equal(t, events.EntityActivity, emitter.events[1].EntityType)
}

func TestApplyDiffStartedPrefersSourceTimestamp(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	led := New(store, nil, nil, WithLogger(quietLogger()))

	observedAt := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	sourceStart := observedAt.Add(-90 * time.Second)
	diff := presence.Diff{Started: []domain.ActivityObservation{
		{Name: "Chess", StartedAt: ts(sourceStart)},
		{Name: "Spotify"},
	}}
	require.NoError(t, led.ApplyDiff(ctx, "u1", diff, observedAt))

	sessions := store.ActivitySessions("u1")
	require.Len(t, sessions, 2)
	require.Equal(t, sourceStart, sessions[0].StartTime)
	require.Equal(t, observedAt, sessions[1].StartTime)
}

func TestApplyDiffMissingOpenSessionIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	led := New(store, nil, nil, WithLogger(quietLogger()))

	diff := presence.Diff{Ended: []domain.ActivityObservation{{Name: "Chess"}}}
	require.NoError(t, led.ApplyDiff(ctx, "u1", diff, time.Now().UTC()))
	require.Empty(t, store.ActivitySessions("u1"))
}

func TestApplyDiffStatusTransition(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	led := New(store, nil, nil, WithLogger(quietLogger()))

	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	diff := presence.Diff{StatusChanged: true, OldStatus: domain.StatusOffline, NewStatus: "online"}
	require.NoError(t, led.ApplyDiff(ctx, "u1", diff, t0))

	t1 := t0.Add(time.Hour)
	diff = presence.Diff{StatusChanged: true, OldStatus: "online", NewStatus: "idle"}
	require.NoError(t, led.ApplyDiff(ctx, "u1", diff, t1))

	sessions := store.StatusSessions("u1")
	require.Len(t, sessions, 2)
	require.NotNil(t, sessions[0].EndTime)
	require.Equal(t, t1, *sessions[0].EndTime)
	require.Equal(t, "idle", sessions[1].Status)
	require.True(t, sessions[1].Open())

	open := 0
	for _, session := range sessions {
		if session.Open() {
			open++
		}
	}
	require.Equal(t, 1, open)
}

func TestAtMostOneOpenActivityPerName(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	led := New(store, nil, nil, WithLogger(quietLogger()))

	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	steps := []presence.Diff{
		{Started: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0)}}},
		{
			Ended:   []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0)}},
			Started: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0.Add(10 * time.Minute))}},
		},
		{Ended: []domain.ActivityObservation{{Name: "Chess"}}},
		{Started: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0.Add(time.Hour))}}},
	}

	for i, diff := range steps {
		require.NoError(t, led.ApplyDiff(ctx, "u1", diff, t0.Add(time.Duration(i)*time.Minute)))

		open := 0
		for _, session := range store.ActivitySessions("u1") {
			if session.Open() {
				open++
			}
		}
		require.LessOrEqual(t, open, 1, "step %d", i)
	}
}

func TestStartedDiffForOpenActivityIsContinuation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	emitter := &captureEmitter{}
	led := New(store, nil, emitter, WithLogger(quietLogger()))

	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	opened, err := led.OpenActivity(ctx, "u1", domain.ActivityObservation{Name: "Chess", StartedAt: ts(t0)}, t0)
	require.NoError(t, err)

	// A caller that lost its previous snapshot diffs against nil and reports
	// the still-running activity as started again.
	snap := domain.Snapshot{
		Status:     "online",
		Activities: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0)}},
	}
	diff := presence.Compute(nil, snap, presence.DefaultDriftTolerance)
	require.NoError(t, led.ApplyDiff(ctx, "u1", diff, t0.Add(time.Minute)))

	sessions := store.ActivitySessions("u1")
	require.Len(t, sessions, 1, "re-reported open activity must not open a second row")
	require.True(t, sessions[0].Open())
	require.Equal(t, opened.ID, sessions[0].ID)

	started := 0
	for _, event := range emitter.events {
		if event.Kind == events.KindStarted && event.EntityType == events.EntityActivity {
			started++
		}
	}
	require.Equal(t, 1, started, "continuation must not emit a second started event")
}

func TestEmitFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	emitter := &captureEmitter{err: errors.New("kafka down")}
	led := New(store, nil, emitter, WithLogger(quietLogger()))

	_, err := led.OpenActivity(ctx, "u1", domain.ActivityObservation{Name: "Chess"}, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, store.ActivitySessions("u1"), 1)
}

func TestRecordUserUpserts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	led := New(store, store, nil, WithLogger(quietLogger()))

	led.RecordUser(ctx, "u1", "alice")
	led.RecordUser(ctx, "u1", "alice2")

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "alice2", user.Username)
}

func TestDispatcherSerializesPerUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	led := New(store, nil, nil, WithLogger(quietLogger()))
	dispatcher := NewDispatcher(led, 4, presence.DefaultDriftTolerance)
	dispatcher.Start(ctx)

	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	online := domain.Snapshot{
		Activities: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0)}},
		Status:     "online",
	}
	offline := domain.Snapshot{Status: domain.StatusOffline}

	dispatcher.Submit(Update{UserID: "u1", Previous: nil, Current: online, ObservedAt: t0})
	dispatcher.Submit(Update{UserID: "u1", Previous: &online, Current: offline, ObservedAt: t0.Add(time.Minute)})

	require.Eventually(t, func() bool {
		sessions := store.ActivitySessions("u1")
		return len(sessions) == 1 && !sessions[0].Open()
	}, time.Second, 10*time.Millisecond)

	sessions := store.ActivitySessions("u1")
	require.Equal(t, t0, sessions[0].StartTime)
	require.Equal(t, t0.Add(time.Minute), *sessions[0].EndTime)
}
