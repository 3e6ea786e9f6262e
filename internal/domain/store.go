package domain

import (
	"context"
	"time"
)

// Cursor models the keyset pagination token for list endpoints.
type Cursor struct {
	StartTime time.Time
	ID        string
}

// ListFilter narrows session list queries. Search matches the activity name
// or status value with a case-insensitive substring.
type ListFilter struct {
	UserID string
	Search string
	Cursor *Cursor
	Limit  int
}

// SessionStore captures persistence operations for session records. Find
// methods return (nil, nil) when no open session exists; that is an expected
// outcome, not an error.
type SessionStore interface {
	OpenActivity(ctx context.Context, session ActivitySession) error
	FindOpenActivity(ctx context.Context, userID, activityName string) (*ActivitySession, error)
	ListOpenActivities(ctx context.Context, userID string) ([]ActivitySession, error)
	CloseActivity(ctx context.Context, id string, endTime time.Time, unexpected bool) error

	OpenStatus(ctx context.Context, session StatusSession) error
	FindOpenStatus(ctx context.Context, userID string) (*StatusSession, error)
	CloseStatus(ctx context.Context, id string, endTime time.Time, unexpected bool) error

	// ListOpenSessionOwners returns the ids of every user holding at least
	// one open activity or status session.
	ListOpenSessionOwners(ctx context.Context) ([]string, error)

	// QueryActivityRange returns sessions overlapping [rangeStart, rangeEnd):
	// startTime < rangeEnd and (endTime >= rangeStart or endTime is null).
	QueryActivityRange(ctx context.Context, userID string, rangeStart, rangeEnd time.Time) ([]ActivitySession, error)
	QueryStatusRange(ctx context.Context, userID string, rangeStart, rangeEnd time.Time) ([]StatusSession, error)

	ListActivities(ctx context.Context, filter ListFilter) ([]ActivitySession, *Cursor, error)
	ListStatuses(ctx context.Context, filter ListFilter) ([]StatusSession, *Cursor, error)
}

// UserStore captures persistence operations for tracked users.
type UserStore interface {
	UpsertUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}
