package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/burrowapp/burrow/health"
	"github.com/burrowapp/burrow/progress"
)

// DefaultClientTimeout bounds connect plus round trip for one request.
const DefaultClientTimeout = 5 * time.Second

// StatusError is returned when the daemon answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon returned status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// Client talks to a daemon over its unix socket. Every request opens a new
// connection.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient returns a client for the daemon socket at socketPath. A timeout
// of zero means DefaultClientTimeout.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: true,
	}

	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, routeStatus, nil, &resp)
	return resp, err
}

func (c *Client) Shutdown(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, routeShutdown, nil, nil)
}

func (c *Client) Progress(ctx context.Context) (progress.Progress, error) {
	var resp progress.Progress
	err := c.do(ctx, http.MethodGet, routeProgress, nil, &resp)
	return resp, err
}

// StartIndexer asks the daemon to begin a run. A run already in progress is
// reported through StartResponse.Started=false, not as an error.
func (c *Client) StartIndexer(ctx context.Context, full bool) (StartResponse, error) {
	var resp StartResponse
	err := c.do(ctx, http.MethodPost, routeStart, StartRequest{Full: full}, &resp)
	return resp, err
}

func (c *Client) Health(ctx context.Context) (health.Report, error) {
	var resp health.Report
	err := c.do(ctx, http.MethodGet, routeHealth, nil, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context) (StatsResponse, error) {
	var resp StatsResponse
	err := c.do(ctx, http.MethodGet, routeStats, nil, &resp)
	return resp, err
}

func (c *Client) Models(ctx context.Context) (ModelsResponse, error) {
	var resp ModelsResponse
	err := c.do(ctx, http.MethodGet, routeModels, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	// The host is ignored by the unix dialer.
	req, err := http.NewRequestWithContext(ctx, method, "http://burrow"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", c.socketPath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read daemon response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode daemon response from %s: %w", path, err)
	}
	return nil
}
