package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/presence/internal/domain"
	"example.com/presence/internal/events"
)

// Repository provides Postgres-backed persistence for session records,
// tracked users and the transactional outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = "session_id, user_id, activity_name, start_time, end_time, unexpected_end"

const statusColumns = "session_id, user_id, status, start_time, end_time, unexpected_end"

// OpenActivity inserts a new open activity session.
func (r *Repository) OpenActivity(ctx context.Context, session domain.ActivitySession) error {
	const stmt = `INSERT INTO activity_sessions (session_id, user_id, activity_name, start_time)
        VALUES ($1,$2,$3,$4)`

	_, err := r.pool.Exec(ctx, stmt, session.ID, session.UserID, session.ActivityName, session.StartTime)
	return err
}

// FindOpenActivity returns the open session for (userID, activityName), or
// (nil, nil) when none exists.
func (r *Repository) FindOpenActivity(ctx context.Context, userID, activityName string) (*domain.ActivitySession, error) {
	query := `SELECT ` + activityColumns + `
        FROM activity_sessions WHERE user_id=$1 AND activity_name=$2 AND end_time IS NULL
        ORDER BY start_time LIMIT 1`

	rows, err := r.pool.Query(ctx, query, userID, activityName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	session, err := scanActivity(rows)
	if err != nil {
		return nil, err
	}
	return &session, rows.Err()
}

// ListOpenActivities returns every open activity session for a user.
func (r *Repository) ListOpenActivities(ctx context.Context, userID string) ([]domain.ActivitySession, error) {
	query := `SELECT ` + activityColumns + `
        FROM activity_sessions WHERE user_id=$1 AND end_time IS NULL ORDER BY start_time`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivitySession
	for rows.Next() {
		session, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// CloseActivity sets the end time on an open session. Closing an already
// closed or unknown session returns domain.ErrSessionNotFound.
func (r *Repository) CloseActivity(ctx context.Context, id string, endTime time.Time, unexpected bool) error {
	const stmt = `UPDATE activity_sessions SET end_time=$2, unexpected_end=$3
        WHERE session_id=$1 AND end_time IS NULL`

	tag, err := r.pool.Exec(ctx, stmt, id, endTime, unexpected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// OpenStatus inserts a new open status session.
func (r *Repository) OpenStatus(ctx context.Context, session domain.StatusSession) error {
	const stmt = `INSERT INTO status_sessions (session_id, user_id, status, start_time)
        VALUES ($1,$2,$3,$4)`

	_, err := r.pool.Exec(ctx, stmt, session.ID, session.UserID, session.Status, session.StartTime)
	return err
}

// FindOpenStatus returns the user's open status session, or (nil, nil).
func (r *Repository) FindOpenStatus(ctx context.Context, userID string) (*domain.StatusSession, error) {
	query := `SELECT ` + statusColumns + `
        FROM status_sessions WHERE user_id=$1 AND end_time IS NULL
        ORDER BY start_time LIMIT 1`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	session, err := scanStatus(rows)
	if err != nil {
		return nil, err
	}
	return &session, rows.Err()
}

// CloseStatus sets the end time on an open status session.
func (r *Repository) CloseStatus(ctx context.Context, id string, endTime time.Time, unexpected bool) error {
	const stmt = `UPDATE status_sessions SET end_time=$2, unexpected_end=$3
        WHERE session_id=$1 AND end_time IS NULL`

	tag, err := r.pool.Exec(ctx, stmt, id, endTime, unexpected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ListOpenSessionOwners returns every user holding at least one open session.
func (r *Repository) ListOpenSessionOwners(ctx context.Context) ([]string, error) {
	const query = `SELECT user_id FROM activity_sessions WHERE end_time IS NULL
        UNION
        SELECT user_id FROM status_sessions WHERE end_time IS NULL
        ORDER BY user_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// QueryActivityRange returns sessions overlapping [rangeStart, rangeEnd).
// A session with no end time overlaps any range that starts before now.
func (r *Repository) QueryActivityRange(ctx context.Context, userID string, rangeStart, rangeEnd time.Time) ([]domain.ActivitySession, error) {
	query := `SELECT ` + activityColumns + `
        FROM activity_sessions
        WHERE user_id=$1 AND start_time < $3 AND (end_time >= $2 OR end_time IS NULL)
        ORDER BY start_time, session_id`

	rows, err := r.pool.Query(ctx, query, userID, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivitySession
	for rows.Next() {
		session, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// QueryStatusRange returns status sessions overlapping [rangeStart, rangeEnd).
func (r *Repository) QueryStatusRange(ctx context.Context, userID string, rangeStart, rangeEnd time.Time) ([]domain.StatusSession, error) {
	query := `SELECT ` + statusColumns + `
        FROM status_sessions
        WHERE user_id=$1 AND start_time < $3 AND (end_time >= $2 OR end_time IS NULL)
        ORDER BY start_time, session_id`

	rows, err := r.pool.Query(ctx, query, userID, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StatusSession
	for rows.Next() {
		session, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// ListActivities returns sessions newest-first with keyset pagination.
func (r *Repository) ListActivities(ctx context.Context, filter domain.ListFilter) ([]domain.ActivitySession, *domain.Cursor, error) {
	query, args, limit := buildListQuery("activity_sessions", activityColumns, "activity_name", filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivitySession, 0, limit)
	for rows.Next() {
		session, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, session)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}

// ListStatuses returns status sessions newest-first with keyset pagination.
func (r *Repository) ListStatuses(ctx context.Context, filter domain.ListFilter) ([]domain.StatusSession, *domain.Cursor, error) {
	query, args, limit := buildListQuery("status_sessions", statusColumns, "status", filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.StatusSession, 0, limit)
	for rows.Next() {
		session, err := scanStatus(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, session)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}

// UpsertUser inserts or refreshes a tracked user. The original creation time
// is preserved on conflict.
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) error {
	const stmt = `INSERT INTO users (user_id, username, created_at)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username`

	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, stmt, user.ID, user.Username, createdAt)
	return err
}

// GetUser returns a user by id, or (nil, nil) when unknown.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT user_id, username, created_at FROM users WHERE user_id=$1`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var user domain.User
	if err := rows.Scan(&user.ID, &user.Username, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, rows.Err()
}

// ListUsers returns all tracked users, oldest first.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT user_id, username, created_at FROM users ORDER BY created_at, user_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Username, &user.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// InsertSessionEvent records an outbox row for asynchronous delivery. The
// dedupe key makes re-emission of the same lifecycle edge a no-op.
func (r *Repository) InsertSessionEvent(ctx context.Context, evt events.SessionEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	eventType := "session." + evt.Kind
	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", evt.EventID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = r.pool.Exec(ctx, stmt,
		"session",
		evt.EventID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		evt.UserID,
		body,
		dedupeKey,
	)
	return err
}

// buildListQuery assembles the filtered keyset query shared by both session
// tables. searchColumn is matched with a case-insensitive substring.
func buildListQuery(table, columns, searchColumn string, filter domain.ListFilter) (string, []interface{}, int) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var clauses []string
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", searchColumn, len(args)))
	}
	if filter.Cursor != nil {
		args = append(args, filter.Cursor.StartTime, filter.Cursor.ID)
		clauses = append(clauses, fmt.Sprintf("(start_time, session_id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT ` + columns + ` FROM ` + table
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY start_time DESC, session_id DESC LIMIT $%d", len(args))

	return query, args, limit
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"session.started": {
		Topic:         "presence_session_events",
		SchemaSubject: "presence_session_events-value",
	},
	"session.ended": {
		Topic:         "presence_session_events",
		SchemaSubject: "presence_session_events-value",
	},
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (domain.ActivitySession, error) {
	var session domain.ActivitySession
	err := row.Scan(&session.ID, &session.UserID, &session.ActivityName, &session.StartTime, &session.EndTime, &session.UnexpectedEnd)
	return session, err
}

func scanStatus(row rowScanner) (domain.StatusSession, error) {
	var session domain.StatusSession
	err := row.Scan(&session.ID, &session.UserID, &session.Status, &session.StartTime, &session.EndTime, &session.UnexpectedEnd)
	return session, err
}
