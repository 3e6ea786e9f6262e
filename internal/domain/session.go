// Package domain defines the session records and storage contracts for the
// presence tracker.
package domain

import (
	"errors"
	"time"
)

// StatusOffline is the sentinel status assumed for a user that has never been
// observed, or that has dropped out of the live presence source.
const StatusOffline = "offline"

var (
	// ErrUserNotFound is returned when a tracked user cannot be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned when a session id does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// ActivitySession is one interval during which a named activity was
// continuously active for a user. Identity is (UserID, ActivityName,
// StartTime); a user may hold several open sessions for distinct activity
// names but never two for the same name.
type ActivitySession struct {
	ID            string
	UserID        string
	ActivityName  string
	StartTime     time.Time
	EndTime       *time.Time
	UnexpectedEnd bool
}

// Open reports whether the session has no recorded end.
func (s ActivitySession) Open() bool { return s.EndTime == nil }

// StatusSession is one interval during which a coarse status value (online,
// idle, dnd, offline, ...) was active for a user. At most one StatusSession
// per user is open at any time.
type StatusSession struct {
	ID            string
	UserID        string
	Status        string
	StartTime     time.Time
	EndTime       *time.Time
	UnexpectedEnd bool
}

// Open reports whether the session has no recorded end.
func (s StatusSession) Open() bool { return s.EndTime == nil }

// ActivityObservation is a single activity entry within a presence snapshot.
// StartedAt is only populated when the source supplies a start timestamp for
// the activity; most sources do for games, few do for anything else.
type ActivityObservation struct {
	Name      string
	StartedAt *time.Time
}

// Snapshot is one point-in-time presence observation for a user.
type Snapshot struct {
	Activities []ActivityObservation
	Status     string
	Username   string
}

// User is a tracked user, upserted from presence updates.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}
