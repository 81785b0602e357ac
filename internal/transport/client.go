package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/plotbound/plotbound/presence-go/internal/presence"
)

const requestTimeout = 10 * time.Second

// Client talks to the platform's presence endpoints: the heartbeat write
// endpoint and the active-users bootstrap call.
type Client struct {
	baseURL   string
	token     string
	sessionID string
	client    *http.Client
}

func NewClient(baseURL, token, sessionID string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		sessionID: sessionID,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

// Send posts one heartbeat. Callers treat failures as transient; the next
// tick or state change resends current truth.
func (c *Client) Send(ctx context.Context, snap presence.Snapshot) error {
	payload := HeartbeatPayload{
		UserID:        snap.UserID,
		SessionID:     c.sessionID,
		ActivityType:  snap.ActivityType,
		ActivityLevel: snap.ActivityLevel,
		PageType:      snap.PageType,
		WorkspaceID:   snap.WorkspaceID,
		DocumentID:    snap.DocumentID,
		ParentID:      snap.ParentID,
		SentAt:        snap.SourceTimestamp,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/presence/heartbeat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("heartbeat rejected: status %d", resp.StatusCode)
	}
	return nil
}

// FetchActive returns the currently-active users' snapshots for batch
// bootstrap.
func (c *Client) FetchActive(ctx context.Context) ([]presence.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/presence/active", nil)
	if err != nil {
		return nil, fmt.Errorf("build bootstrap request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch active users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch active users: status %d", resp.StatusCode)
	}

	var out ActiveUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode active users: %w", err)
	}
	return out.Users, nil
}
