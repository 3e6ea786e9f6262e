// Package memory provides an in-memory session store for unit tests and
// local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/presence/internal/domain"
)

// Store implements domain.SessionStore and domain.UserStore with mutex-held
// maps. Semantics mirror the Postgres repository.
type Store struct {
	mu         sync.RWMutex
	activities []domain.ActivitySession
	statuses   []domain.StatusSession
	users      map[string]domain.User
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{users: make(map[string]domain.User)}
}

// OpenActivity implements domain.SessionStore.
func (s *Store) OpenActivity(_ context.Context, session domain.ActivitySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(session.ID) == "" {
		session.ID = uuid.NewString()
	}
	s.activities = append(s.activities, session)
	return nil
}

// FindOpenActivity implements domain.SessionStore.
func (s *Store) FindOpenActivity(_ context.Context, userID, activityName string) (*domain.ActivitySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.activities {
		candidate := s.activities[i]
		if candidate.UserID == userID && candidate.ActivityName == activityName && candidate.Open() {
			out := candidate
			return &out, nil
		}
	}
	return nil, nil
}

// ListOpenActivities implements domain.SessionStore.
func (s *Store) ListOpenActivities(_ context.Context, userID string) ([]domain.ActivitySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ActivitySession
	for _, candidate := range s.activities {
		if candidate.UserID == userID && candidate.Open() {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// CloseActivity implements domain.SessionStore.
func (s *Store) CloseActivity(_ context.Context, id string, endTime time.Time, unexpected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.activities {
		if s.activities[i].ID == id {
			end := endTime
			s.activities[i].EndTime = &end
			s.activities[i].UnexpectedEnd = unexpected
			return nil
		}
	}
	return domain.ErrSessionNotFound
}

// OpenStatus implements domain.SessionStore.
func (s *Store) OpenStatus(_ context.Context, session domain.StatusSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(session.ID) == "" {
		session.ID = uuid.NewString()
	}
	s.statuses = append(s.statuses, session)
	return nil
}

// FindOpenStatus implements domain.SessionStore.
func (s *Store) FindOpenStatus(_ context.Context, userID string) (*domain.StatusSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.statuses {
		candidate := s.statuses[i]
		if candidate.UserID == userID && candidate.Open() {
			out := candidate
			return &out, nil
		}
	}
	return nil, nil
}

// CloseStatus implements domain.SessionStore.
func (s *Store) CloseStatus(_ context.Context, id string, endTime time.Time, unexpected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.statuses {
		if s.statuses[i].ID == id {
			end := endTime
			s.statuses[i].EndTime = &end
			s.statuses[i].UnexpectedEnd = unexpected
			return nil
		}
	}
	return domain.ErrSessionNotFound
}

// ListOpenSessionOwners implements domain.SessionStore.
func (s *Store) ListOpenSessionOwners(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, candidate := range s.activities {
		if candidate.Open() {
			seen[candidate.UserID] = struct{}{}
		}
	}
	for _, candidate := range s.statuses {
		if candidate.Open() {
			seen[candidate.UserID] = struct{}{}
		}
	}

	owners := make([]string, 0, len(seen))
	for id := range seen {
		owners = append(owners, id)
	}
	sort.Strings(owners)
	return owners, nil
}

// QueryActivityRange implements domain.SessionStore.
func (s *Store) QueryActivityRange(_ context.Context, userID string, rangeStart, rangeEnd time.Time) ([]domain.ActivitySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ActivitySession
	for _, candidate := range s.activities {
		if candidate.UserID != userID {
			continue
		}
		if overlaps(candidate.StartTime, candidate.EndTime, rangeStart, rangeEnd) {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// QueryStatusRange implements domain.SessionStore.
func (s *Store) QueryStatusRange(_ context.Context, userID string, rangeStart, rangeEnd time.Time) ([]domain.StatusSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StatusSession
	for _, candidate := range s.statuses {
		if candidate.UserID != userID {
			continue
		}
		if overlaps(candidate.StartTime, candidate.EndTime, rangeStart, rangeEnd) {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// ListActivities implements domain.SessionStore.
func (s *Store) ListActivities(_ context.Context, filter domain.ListFilter) ([]domain.ActivitySession, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.ActivitySession, 0)
	for _, candidate := range s.activities {
		if filter.UserID != "" && candidate.UserID != filter.UserID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(candidate.ActivityName), strings.ToLower(filter.Search)) {
			continue
		}
		matches = append(matches, candidate)
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].StartTime.Equal(matches[j].StartTime) {
			return matches[i].StartTime.After(matches[j].StartTime)
		}
		return matches[i].ID > matches[j].ID
	})

	matches = afterCursorActivities(matches, filter.Cursor)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	// A full page yields a cursor, same as the Postgres binding; the caller
	// discovers the end of the result set with one extra empty page.
	var next *domain.Cursor
	if len(matches) == limit {
		last := matches[len(matches)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return matches, next, nil
}

// ListStatuses implements domain.SessionStore.
func (s *Store) ListStatuses(_ context.Context, filter domain.ListFilter) ([]domain.StatusSession, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.StatusSession, 0)
	for _, candidate := range s.statuses {
		if filter.UserID != "" && candidate.UserID != filter.UserID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(candidate.Status), strings.ToLower(filter.Search)) {
			continue
		}
		matches = append(matches, candidate)
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].StartTime.Equal(matches[j].StartTime) {
			return matches[i].StartTime.After(matches[j].StartTime)
		}
		return matches[i].ID > matches[j].ID
	})

	matches = afterCursorStatuses(matches, filter.Cursor)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	var next *domain.Cursor
	if len(matches) == limit {
		last := matches[len(matches)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return matches, next, nil
}

// UpsertUser implements domain.UserStore.
func (s *Store) UpsertUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.ID]; ok {
		existing.Username = user.Username
		s.users[user.ID] = existing
		return nil
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	return nil
}

// GetUser implements domain.UserStore.
func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	out := user
	return &out, nil
}

// ListUsers implements domain.UserStore.
func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ActivitySessions returns a copy of every stored activity session for a
// user, oldest first. Test helper.
func (s *Store) ActivitySessions(userID string) []domain.ActivitySession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ActivitySession
	for _, candidate := range s.activities {
		if candidate.UserID == userID {
			out = append(out, candidate)
		}
	}
	return out
}

// StatusSessions returns a copy of every stored status session for a user,
// oldest first. Test helper.
func (s *Store) StatusSessions(userID string) []domain.StatusSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StatusSession
	for _, candidate := range s.statuses {
		if candidate.UserID == userID {
			out = append(out, candidate)
		}
	}
	return out
}

func overlaps(start time.Time, end *time.Time, rangeStart, rangeEnd time.Time) bool {
	if !start.Before(rangeEnd) {
		return false
	}
	return end == nil || !end.Before(rangeStart)
}

func afterCursorActivities(sessions []domain.ActivitySession, cursor *domain.Cursor) []domain.ActivitySession {
	if cursor == nil {
		return sessions
	}
	for i, candidate := range sessions {
		if candidate.StartTime.Before(cursor.StartTime) ||
			(candidate.StartTime.Equal(cursor.StartTime) && candidate.ID < cursor.ID) {
			return sessions[i:]
		}
	}
	return nil
}

func afterCursorStatuses(sessions []domain.StatusSession, cursor *domain.Cursor) []domain.StatusSession {
	if cursor == nil {
		return sessions
	}
	for i, candidate := range sessions {
		if candidate.StartTime.Before(cursor.StartTime) ||
			(candidate.StartTime.Equal(cursor.StartTime) && candidate.ID < cursor.ID) {
			return sessions[i:]
		}
	}
	return nil
}
