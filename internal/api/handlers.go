// Package api exposes HTTP handlers for the presence service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/presence/internal/auth"
	"example.com/presence/internal/domain"
	"example.com/presence/internal/persistence"
	"example.com/presence/internal/timeline"
)

// Handler coordinates HTTP requests with the session store.
type Handler struct {
	sessions domain.SessionStore
	users    domain.UserStore
}

// NewHandler builds a Handler.
func NewHandler(sessions domain.SessionStore, users domain.UserStore) *Handler {
	return &Handler{sessions: sessions, users: users}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.listActivities)
	mux.HandleFunc("/v1/status", h.listStatuses)
	mux.HandleFunc("/v1/users", h.listUsers)
	mux.HandleFunc("/v1/users/", h.userByID)
	mux.HandleFunc("/v1/stats/weekly-timeline", h.weeklyTimeline)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func requireRead(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(auth.ScopePresenceRead) && !claims.HasScope(auth.ScopePresenceAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "scope presence:read required")
		return false
	}
	return true
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireRead(w, r) {
		return
	}

	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}

	sessions, next, err := h.sessions.ListActivities(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, toActivityView(session))
	}

	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) listStatuses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireRead(w, r) {
		return
	}

	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}

	sessions, next, err := h.sessions.ListStatuses(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]StatusView, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, toStatusView(session))
	}

	writeJSON(w, http.StatusOK, ListStatusesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireRead(w, r) {
		return
	}

	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]UserView, 0, len(users))
	for _, user := range users {
		items = append(items, toUserView(user))
	}
	writeJSON(w, http.StatusOK, ListUsersResponse{Items: items})
}

func (h *Handler) userByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireRead(w, r) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing user id")
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user))
}

func (h *Handler) weeklyTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireRead(w, r) {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	now := time.Now().UTC()
	rangeStart := now.AddDate(0, 0, -6)
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "start must be YYYY-MM-DD")
			return
		}
		rangeStart = parsed
	}
	rangeStart = time.Date(rangeStart.Year(), rangeStart.Month(), rangeStart.Day(), 0, 0, 0, 0, time.UTC)
	rangeEnd := rangeStart.AddDate(0, 0, 7)

	activities, err := h.sessions.QueryActivityRange(r.Context(), userID, rangeStart, rangeEnd)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	statuses, err := h.sessions.QueryStatusRange(r.Context(), userID, rangeStart, rangeEnd)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, timeline.Project(activities, statuses, rangeStart, now))
}

// parseListFilter extracts the shared list query parameters.
func parseListFilter(w http.ResponseWriter, r *http.Request) (domain.ListFilter, bool) {
	filter := domain.ListFilter{
		UserID: r.URL.Query().Get("user_id"),
		Search: r.URL.Query().Get("search"),
		Limit:  20,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return domain.ListFilter{}, false
		}
		if parsed > 100 {
			parsed = 100
		}
		filter.Limit = parsed
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return domain.ListFilter{}, false
	}
	filter.Cursor = cursor

	return filter, true
}

// ActivityView exposes one activity session.
type ActivityView struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	ActivityName  string     `json:"activity_name"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	UnexpectedEnd bool       `json:"unexpected_end"`
	Open          bool       `json:"open"`
}

// StatusView exposes one status session.
type StatusView struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Status        string     `json:"status"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	UnexpectedEnd bool       `json:"unexpected_end"`
	Open          bool       `json:"open"`
}

// UserView exposes one tracked user.
type UserView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ListStatusesResponse packages list results.
type ListStatusesResponse struct {
	Items      []StatusView `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// ListUsersResponse packages the tracked user set.
type ListUsersResponse struct {
	Items []UserView `json:"items"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(session domain.ActivitySession) ActivityView {
	return ActivityView{
		ID:            session.ID,
		UserID:        session.UserID,
		ActivityName:  session.ActivityName,
		StartTime:     session.StartTime,
		EndTime:       session.EndTime,
		UnexpectedEnd: session.UnexpectedEnd,
		Open:          session.Open(),
	}
}

func toStatusView(session domain.StatusSession) StatusView {
	return StatusView{
		ID:            session.ID,
		UserID:        session.UserID,
		Status:        session.Status,
		StartTime:     session.StartTime,
		EndTime:       session.EndTime,
		UnexpectedEnd: session.UnexpectedEnd,
		Open:          session.Open(),
	}
}

func toUserView(user domain.User) UserView {
	return UserView{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	}
}
