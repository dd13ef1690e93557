// Package backend is the HTTP client for the Emergency Console API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/emconsole/internal/emergency"
)

const (
	defaultTimeout  = 10 * time.Second
	maxSnapshotSize = 8 << 20 // 8MB
	maxErrorBody    = 4 << 10
)

// ErrStreamClosed is returned by OpenStream when the server answers 204 No
// Content, which tells event-stream clients to stop reconnecting.
var ErrStreamClosed = errors.New("stream closed by server")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to the backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout; streams live until cancelled.
	streamClient *http.Client
}

// New creates a Client for baseURL. Request/response calls are bounded by
// timeout; if timeout is <= 0 it defaults to 10s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{Timeout: 0},
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListEmergencies fetches the full list of active emergencies.
// A response that is not a JSON array is treated as an empty list.
func (c *Client) ListEmergencies(ctx context.Context) ([]emergency.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/emergencies", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting emergencies: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("reading emergencies: %w", err)
	}
	records, err := emergency.DecodeList(body)
	if err != nil {
		return nil, fmt.Errorf("decoding emergencies: %w", err)
	}
	return records, nil
}

// Submit posts the operator's form data for an emergency.
func (c *Client) Submit(ctx context.Context, id string, data json.RawMessage) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPost, "/api/emergencies/"+url.PathEscape(id)+"/submit", data)
}

// Patch applies a partial update to an emergency.
func (c *Client) Patch(ctx context.Context, id string, patch json.RawMessage) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPatch, "/api/emergencies/"+url.PathEscape(id), patch)
}

// CallStreamURL returns the event-stream URL for a single call.
func (c *Client) CallStreamURL(id string) string {
	return c.baseURL + "/api/calls/" + url.PathEscape(id) + "/stream"
}

// OpenStream opens a server-sent event stream at path. lastEventID, when
// non-empty, is sent as Last-Event-ID so the server can resume. The caller
// must close the returned body.
func (c *Client) OpenStream(ctx context.Context, path, lastEventID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return nil, ErrStreamClosed
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) send(ctx context.Context, method, path string, body json.RawMessage) (json.RawMessage, error) {
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, nil
	}
	return out, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
