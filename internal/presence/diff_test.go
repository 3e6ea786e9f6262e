package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/presence/internal/domain"
)

func ts(t time.Time) *time.Time { return &t }

func TestComputeFirstObservationStartsEverything(t *testing.T) {
	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	current := domain.Snapshot{
		Activities: []domain.ActivityObservation{
			{Name: "Chess", StartedAt: ts(t0)},
			{Name: "Spotify"},
		},
		Status: "online",
	}

	diff := Compute(nil, current, DefaultDriftTolerance)

	require.Len(t, diff.Started, 2)
	require.Empty(t, diff.Ended)
	require.True(t, diff.StatusChanged)
	require.Equal(t, domain.StatusOffline, diff.OldStatus)
	require.Equal(t, "online", diff.NewStatus)
}

func TestComputeEndedActivity(t *testing.T) {
	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	previous := &domain.Snapshot{
		Activities: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0)}},
		Status:     "online",
	}
	current := domain.Snapshot{Status: "online"}

	diff := Compute(previous, current, DefaultDriftTolerance)

	require.Empty(t, diff.Started)
	require.Len(t, diff.Ended, 1)
	require.Equal(t, "Chess", diff.Ended[0].Name)
	require.False(t, diff.StatusChanged)
}

func TestComputeRestartReportsBothEndedAndStarted(t *testing.T) {
	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Minute)
	previous := &domain.Snapshot{
		Activities: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0)}},
		Status:     "online",
	}
	current := domain.Snapshot{
		Activities: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t1)}},
		Status:     "online",
	}

	diff := Compute(previous, current, DefaultDriftTolerance)

	require.Len(t, diff.Ended, 1)
	require.Len(t, diff.Started, 1)
	require.Equal(t, t0, *diff.Ended[0].StartedAt)
	require.Equal(t, t1, *diff.Started[0].StartedAt)
}

func TestComputeWithinToleranceIsContinuation(t *testing.T) {
	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	previous := &domain.Snapshot{
		Activities: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0)}},
		Status:     "online",
	}
	current := domain.Snapshot{
		Activities: []domain.ActivityObservation{{Name: "Chess", StartedAt: ts(t0.Add(500 * time.Millisecond))}},
		Status:     "online",
	}

	diff := Compute(previous, current, DefaultDriftTolerance)
	require.True(t, diff.Empty())
}

func TestComputeMissingTimestampPairsAsContinuing(t *testing.T) {
	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	previous := &domain.Snapshot{
		Activities: []domain.ActivityObservation{{Name: "Spotify", StartedAt: ts(t0)}},
		Status:     "online",
	}
	current := domain.Snapshot{
		Activities: []domain.ActivityObservation{{Name: "Spotify"}},
		Status:     "online",
	}

	diff := Compute(previous, current, DefaultDriftTolerance)
	require.True(t, diff.Empty())
}

func TestComputeStartedAndEndedAreDisjoint(t *testing.T) {
	t0 := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	previous := &domain.Snapshot{
		Activities: []domain.ActivityObservation{
			{Name: "Chess", StartedAt: ts(t0)},
			{Name: "Spotify"},
		},
		Status: "online",
	}
	current := domain.Snapshot{
		Activities: []domain.ActivityObservation{
			{Name: "Chess", StartedAt: ts(t0.Add(10 * time.Minute))},
			{Name: "Factorio", StartedAt: ts(t0.Add(9 * time.Minute))},
		},
		Status: "idle",
	}

	diff := Compute(previous, current, DefaultDriftTolerance)

	type identity struct {
		name string
		at   time.Time
	}
	seen := make(map[identity]bool)
	for _, obs := range diff.Started {
		key := identity{name: obs.Name}
		if obs.StartedAt != nil {
			key.at = *obs.StartedAt
		}
		seen[key] = true
	}
	for _, obs := range diff.Ended {
		key := identity{name: obs.Name}
		if obs.StartedAt != nil {
			key.at = *obs.StartedAt
		}
		require.False(t, seen[key], "entry %q in both started and ended", obs.Name)
	}

	require.True(t, diff.StatusChanged)
	require.Equal(t, "online", diff.OldStatus)
	require.Equal(t, "idle", diff.NewStatus)
}

func TestCompareSession(t *testing.T) {
	start := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	session := domain.ActivitySession{UserID: "u1", ActivityName: "Chess", StartTime: start}

	cases := []struct {
		name string
		live domain.ActivityObservation
		want Match
	}{
		{"within tolerance", domain.ActivityObservation{Name: "Chess", StartedAt: ts(start.Add(500 * time.Millisecond))}, MatchSame},
		{"negative drift within tolerance", domain.ActivityObservation{Name: "Chess", StartedAt: ts(start.Add(-1500 * time.Millisecond))}, MatchSame},
		{"beyond tolerance", domain.ActivityObservation{Name: "Chess", StartedAt: ts(start.Add(3 * time.Second))}, MatchDifferent},
		{"no timestamp", domain.ActivityObservation{Name: "Chess"}, MatchUnknown},
		{"different name", domain.ActivityObservation{Name: "Go", StartedAt: ts(start)}, MatchDifferent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CompareSession(session, tc.live, DefaultDriftTolerance))
		})
	}
}

func TestComputeEmptyStatusDefaultsToOffline(t *testing.T) {
	previous := &domain.Snapshot{Status: ""}
	current := domain.Snapshot{Status: ""}

	diff := Compute(previous, current, DefaultDriftTolerance)
	require.False(t, diff.StatusChanged)
	require.Equal(t, domain.StatusOffline, diff.NewStatus)
}
