package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"example.com/presence/internal/domain"
)

// GatewayClient reads live presence from the gateway's HTTP API.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGatewayClient constructs a client with sane defaults.
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// snapshotPayload is the gateway's wire representation of one user's presence.
type snapshotPayload struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Status     string `json:"status"`
	Activities []struct {
		Name      string     `json:"name"`
		StartedAt *time.Time `json:"started_at,omitempty"`
	} `json:"activities"`
}

// Observable reports whether the gateway currently sees the user.
func (c *GatewayClient) Observable(ctx context.Context, userID string) (bool, error) {
	snap, err := c.LiveSnapshot(ctx, userID)
	if err != nil {
		return false, err
	}
	return snap != nil, nil
}

// LiveSnapshot fetches the user's current presence, or (nil, nil) when the
// gateway does not see the user.
func (c *GatewayClient) LiveSnapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	endpoint := fmt.Sprintf("%s/presence/users/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("presence gateway error: %s", body)
	}

	var payload snapshotPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.toSnapshot(), nil
}

// ObservableUsers lists every user the gateway currently sees.
func (c *GatewayClient) ObservableUsers(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/presence/users", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("presence gateway error: %s", body)
	}

	var payload struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.UserIDs, nil
}

func (p *snapshotPayload) toSnapshot() *domain.Snapshot {
	snap := &domain.Snapshot{
		Status:   p.Status,
		Username: p.Username,
	}
	for _, act := range p.Activities {
		snap.Activities = append(snap.Activities, domain.ActivityObservation{
			Name:      act.Name,
			StartedAt: act.StartedAt,
		})
	}
	return snap
}
