package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/presence/internal/domain"
)

func TestListActivitiesKeysetPagination(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		end := start.Add(30 * time.Minute)
		require.NoError(t, store.OpenActivity(ctx, domain.ActivitySession{
			ID:           fmt.Sprintf("s%d", i),
			UserID:       "u1",
			ActivityName: "Chess",
			StartTime:    start,
			EndTime:      &end,
		}))
	}

	filter := domain.ListFilter{UserID: "u1", Limit: 2}
	page1, cursor, err := store.ListActivities(ctx, filter)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.True(t, page1[0].StartTime.After(page1[1].StartTime), "newest first")
	require.NotNil(t, cursor, "full page carries a cursor")

	// The final page is exactly full, so it still carries a cursor; the end
	// of the result set shows up as one extra empty page, the same
	// termination the Postgres repository produces.
	filter.Cursor = cursor
	page2, cursor, err := store.ListActivities(ctx, filter)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.NotNil(t, cursor)

	filter.Cursor = cursor
	page3, cursor, err := store.ListActivities(ctx, filter)
	require.NoError(t, err)
	require.Empty(t, page3)
	require.Nil(t, cursor)

	seen := map[string]struct{}{}
	for _, session := range append(page1, page2...) {
		seen[session.ID] = struct{}{}
	}
	require.Len(t, seen, 4, "pages must not overlap or skip")
}

func TestListStatusesPaginationTermination(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		require.NoError(t, store.OpenStatus(ctx, domain.StatusSession{
			ID:        fmt.Sprintf("st%d", i),
			UserID:    "u1",
			Status:    "online",
			StartTime: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, cursor, err := store.ListStatuses(ctx, domain.ListFilter{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, cursor)

	rest, cursor, err := store.ListStatuses(ctx, domain.ListFilter{UserID: "u1", Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Nil(t, cursor)
}
