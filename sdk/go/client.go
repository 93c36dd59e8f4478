// Package bulkmail is a Go client for the bulkmail HTTP API.
package bulkmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Config holds the configuration for the bulkmail client.
type Config struct {
	// BaseURL is the root URL of the bulkmail server, e.g. "http://localhost:8080".
	BaseURL string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 30s timeout is used.
	HTTPClient *http.Client

	// Dialer is used by Watch. If nil, websocket.DefaultDialer is used.
	Dialer *websocket.Dialer
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
}

// Client calls the bulkmail API.
type Client struct {
	cfg Config
}

// NewClient creates a new bulkmail client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg}
}

// State returns the current send state.
func (c *Client) State(ctx context.Context) (*State, error) {
	var st State
	if err := c.do(ctx, http.MethodGet, "/api/v1/state", nil, "", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SetTemplate replaces the email template.
func (c *Client) SetTemplate(ctx context.Context, template string) (*State, error) {
	var st State
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/template", map[string]string{"template": template}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Refresh reloads recipients from the server's configured source.
func (c *Client) Refresh(ctx context.Context) (*State, error) {
	var st State
	if err := c.do(ctx, http.MethodPost, "/api/v1/recipients/refresh", nil, "", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Upload sends a CSV or XLSX file to replace the recipient list.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*State, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("bulkmail: failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("bulkmail: failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("bulkmail: failed to build upload: %w", err)
	}

	var st State
	if err := c.do(ctx, http.MethodPost, "/api/v1/recipients/upload", &buf, mw.FormDataContentType(), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Recipients returns the loaded recipient list.
func (c *Client) Recipients(ctx context.Context) (*Recipients, error) {
	var out Recipients
	if err := c.do(ctx, http.MethodGet, "/api/v1/recipients", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetAutoRefresh toggles periodic background refresh on the server.
func (c *Client) SetAutoRefresh(ctx context.Context, enabled bool) (*State, error) {
	var st State
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auto-refresh", map[string]bool{"enabled": enabled}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Start launches a send run and returns its id.
func (c *Client) Start(ctx context.Context) (string, error) {
	var resp startResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/send/start", nil, "", &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// Stop halts the running send.
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/send/stop", nil, "", nil)
}

// Runs lists recent runs. limit <= 0 uses the server default.
func (c *Client) Runs(ctx context.Context, limit int) ([]Run, error) {
	path := "/api/v1/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Runs []Run `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// Run returns one run with its delivery attempts.
func (c *Client) Run(ctx context.Context, id string) (*RunDetail, error) {
	var out RunDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/runs/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Watch streams progress events to fn until ctx is cancelled, the connection
// drops, or fn returns false.
func (c *Client) Watch(ctx context.Context, fn func(Progress) bool) error {
	u, err := url.Parse(c.cfg.BaseURL + "/ws")
	if err != nil {
		return fmt.Errorf("bulkmail: invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := c.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("bulkmail: failed to connect: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bulkmail: stream closed: %w", err)
		}
		if env.Type != "progress" {
			continue
		}

		var p Progress
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("bulkmail: failed to parse progress: %w", err)
		}
		if !fn(p) {
			return nil
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bulkmail: failed to marshal request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(data), "application/json", out)
}

// do sends a request to the bulkmail API and decodes a successful response into out.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("bulkmail: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("bulkmail: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bulkmail: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("bulkmail: failed to parse response: %w", err)
	}
	return nil
}
