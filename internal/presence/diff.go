// Package presence turns pairs of consecutive presence snapshots into
// started/ended events. Everything here is pure: the same functions back the
// live update path and the startup reconciler, so they must not touch I/O or
// clocks.
package presence

import (
	"time"

	"example.com/presence/internal/domain"
)

// DefaultDriftTolerance is the maximum discrepancy between a stored session
// start time and a live-reported start time for the two to be considered the
// same logical session.
const DefaultDriftTolerance = 2 * time.Second

// Match is the outcome of comparing a recorded activity against a live
// observation. Unknown means the live entry carries no start timestamp, so
// continuation can be neither confirmed nor refuted; callers on the
// reconciliation path must resolve Unknown by closing rather than guessing.
type Match int

const (
	MatchDifferent Match = iota
	MatchSame
	MatchUnknown
)

// CompareSession compares an open session against a live observation.
func CompareSession(session domain.ActivitySession, live domain.ActivityObservation, tolerance time.Duration) Match {
	if session.ActivityName != live.Name {
		return MatchDifferent
	}
	if live.StartedAt == nil {
		return MatchUnknown
	}
	if absDuration(live.StartedAt.Sub(session.StartTime)) <= tolerance {
		return MatchSame
	}
	return MatchDifferent
}

// compareObservations compares two observations of the same diff boundary.
func compareObservations(previous, current domain.ActivityObservation, tolerance time.Duration) Match {
	if previous.Name != current.Name {
		return MatchDifferent
	}
	if previous.StartedAt == nil || current.StartedAt == nil {
		return MatchUnknown
	}
	if absDuration(current.StartedAt.Sub(*previous.StartedAt)) <= tolerance {
		return MatchSame
	}
	return MatchDifferent
}

// Diff is the result of comparing two consecutive snapshots for one user.
type Diff struct {
	Started       []domain.ActivityObservation
	Ended         []domain.ActivityObservation
	StatusChanged bool
	OldStatus     string
	NewStatus     string
}

// Empty reports whether the diff carries no work for the ledger.
func (d Diff) Empty() bool {
	return len(d.Started) == 0 && len(d.Ended) == 0 && !d.StatusChanged
}

// Compute diffs the previous snapshot against the current one. A nil previous
// marks the first observation for a user: every current activity is started,
// nothing is ended, and the status is compared against the offline sentinel.
//
// An activity restarted between two snapshots (same name, start timestamps
// further apart than the tolerance) is reported as both ended and started;
// the two occurrences are distinct sessions. When either side lacks a start
// timestamp the entries are paired as continuing, since a restart cannot be
// proven.
func Compute(previous *domain.Snapshot, current domain.Snapshot, tolerance time.Duration) Diff {
	diff := Diff{
		OldStatus: domain.StatusOffline,
		NewStatus: normalizeStatus(current.Status),
	}

	if previous == nil {
		diff.Started = append(diff.Started, current.Activities...)
		diff.StatusChanged = diff.OldStatus != diff.NewStatus
		return diff
	}

	diff.OldStatus = normalizeStatus(previous.Status)
	diff.StatusChanged = diff.OldStatus != diff.NewStatus

	matched := make([]bool, len(previous.Activities))
	for _, cur := range current.Activities {
		continued := false
		for i, prev := range previous.Activities {
			if matched[i] {
				continue
			}
			if compareObservations(prev, cur, tolerance) != MatchDifferent {
				matched[i] = true
				continued = true
				break
			}
		}
		if !continued {
			diff.Started = append(diff.Started, cur)
		}
	}

	for i, prev := range previous.Activities {
		if !matched[i] {
			diff.Ended = append(diff.Ended, prev)
		}
	}

	return diff
}

func normalizeStatus(status string) string {
	if status == "" {
		return domain.StatusOffline
	}
	return status
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
