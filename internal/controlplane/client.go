// Package controlplane talks to the database fleet's control plane to
// carry out remediation actions. When no endpoint is configured the
// client runs in simulated mode and reports what the action would have
// done, which keeps the rest of the agent exercisable without a fleet.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

// Client executes remediation actions against the fleet control plane.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a client for the configured control plane. An
// empty baseURL selects simulated mode.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Simulated reports whether actions are simulated rather than applied.
func (c *Client) Simulated() bool { return c.baseURL == "" }

// Execute performs the action against the named database and returns
// operator-readable result notes.
func (c *Client) Execute(ctx context.Context, database string, action models.ActionType, details string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("control plane client not initialised")
	}
	if c.baseURL == "" {
		return simulatedNotes(action, database), nil
	}

	payload := map[string]any{
		"database": database,
		"action":   string(action),
		"details":  details,
	}

	var response struct {
		Success bool   `json:"success"`
		Notes   string `json:"notes"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/api/v1/actions/execute", payload, &response); err != nil {
		return "", fmt.Errorf("control plane execute failed: %w", err)
	}
	if !response.Success {
		return "", fmt.Errorf("control plane rejected %s on %s: %s", action, database, response.Notes)
	}
	return response.Notes, nil
}

func simulatedNotes(action models.ActionType, database string) string {
	switch action {
	case models.ActionKillQuery:
		return fmt.Sprintf("Terminated longest-running query on %s", database)
	case models.ActionCreateIndex:
		return fmt.Sprintf("Created suggested index on %s", database)
	case models.ActionRebuildIndex:
		return fmt.Sprintf("Rebuilt fragmented index on %s", database)
	case models.ActionScaleConnections:
		return fmt.Sprintf("Raised max_connections on %s", database)
	case models.ActionClearLogs:
		return fmt.Sprintf("Archived and purged old log files on %s", database)
	case models.ActionUpdateStatistics:
		return fmt.Sprintf("Refreshed table statistics on %s", database)
	case models.ActionAlertDBA:
		return fmt.Sprintf("Paged on-call DBA about %s", database)
	default:
		return fmt.Sprintf("Executed %s on %s", action, database)
	}
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
