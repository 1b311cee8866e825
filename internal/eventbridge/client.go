package eventbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/rolestate"
	"github.com/kingrea/rolechain/internal/scheduler"
)

// ErrNotFound is returned when the bridge answers 404 (unknown role).
var ErrNotFound = errors.New("eventbridge: not found")

// Client talks to a running bridge server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the bridge at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// BaseURL returns the bridge address this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks that the bridge is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Status fetches the aggregate system status.
func (c *Client) Status(ctx context.Context) (scheduler.SystemStatus, error) {
	var out scheduler.SystemStatus
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

// Roles fetches every role's state.
func (c *Client) Roles(ctx context.Context) ([]rolestate.RoleRow, error) {
	var out []rolestate.RoleRow
	err := c.do(ctx, http.MethodGet, "/roles", nil, &out)
	return out, err
}

// History fetches up to limit recent events.
func (c *Client) History(ctx context.Context, limit int) ([]history.Event, error) {
	var out HistoryResponse
	err := c.do(ctx, http.MethodGet, "/history?limit="+strconv.Itoa(limit), nil, &out)
	return out.Events, err
}

// Complete reports a finished run for role.
func (c *Client) Complete(ctx context.Context, role string, success bool, output string) (rolestate.RoleRow, error) {
	var out rolestate.RoleRow
	err := c.do(ctx, http.MethodPost, rolePath(role, "complete"), CompleteRequest{Success: &success, Output: output}, &out)
	return out, err
}

// SetStatus overrides role's status.
func (c *Client) SetStatus(ctx context.Context, role string, status rolestate.Status) (rolestate.RoleRow, error) {
	var out rolestate.RoleRow
	err := c.do(ctx, http.MethodPost, rolePath(role, "status"), StatusRequest{Status: string(status)}, &out)
	return out, err
}

// Trigger asks the bridge to kick off the chain from the head.
func (c *Client) Trigger(ctx context.Context) (scheduler.TriggerResult, error) {
	var out scheduler.TriggerResult
	err := c.do(ctx, http.MethodPost, "/trigger", nil, &out)
	return out, err
}

// WaitForWake long-polls for the next wake addressed to role. The boolean is
// false when the poll timed out without a wake.
func (c *Client) WaitForWake(ctx context.Context, role string, timeout time.Duration) (WakeEvent, bool, error) {
	path := rolePath(role, "wake") + "?timeout=" + url.QueryEscape(timeout.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return WakeEvent{}, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return WakeEvent{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return WakeEvent{}, false, nil
	}
	if err := checkResponse(resp); err != nil {
		return WakeEvent{}, false, err
	}
	var event WakeEvent
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		return WakeEvent{}, false, fmt.Errorf("eventbridge: decode wake: %w", err)
	}
	return event, true, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("eventbridge: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("eventbridge: decode %s: %w", path, err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	var payload errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	msg := payload.Error
	if msg == "" {
		msg = resp.Status
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return fmt.Errorf("eventbridge: %d: %s", resp.StatusCode, msg)
}

func rolePath(role, action string) string {
	return "/roles/" + url.PathEscape(role) + "/" + action
}
