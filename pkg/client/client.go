package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/loykin/readyup/internal/graph"
	tlsutil "github.com/loykin/readyup/internal/tls"
)

// Client talks to a readyup daemon over its HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	TLS     *tlsutil.ClientConfig
}

// DefaultConfig returns a configuration for a local daemon.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates an API client. TLS settings apply when the base URL uses
// https.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	transport := &http.Transport{}
	if config.TLS != nil {
		tc, err := tlsutil.ClientTLS(*config.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tc
	}
	return &Client{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}, nil
}

// Submit posts a service graph and returns the run ID.
func (c *Client) Submit(ctx context.Context, specs []graph.Spec) (string, error) {
	body, err := json.Marshal(map[string]any{"services": specs})
	if err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/runs", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetRun fetches the current status and report of a run.
func (c *Client) GetRun(ctx context.Context, id string) (*RunInfo, error) {
	var run RunInfo
	if err := c.do(ctx, http.MethodGet, "/runs/"+id, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns summaries of all runs known to the daemon.
func (c *Client) ListRuns(ctx context.Context) ([]RunInfo, error) {
	var runs []RunInfo
	if err := c.do(ctx, http.MethodGet, "/runs", nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// CancelRun aborts a running run.
func (c *Client) CancelRun(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/runs/"+id, nil, nil)
}

// WaitRun polls until the run reaches a terminal status or ctx expires.
func (c *Client) WaitRun(ctx context.Context, id string, poll time.Duration) (*RunInfo, error) {
	if poll <= 0 {
		poll = time.Second
	}
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		run, err := c.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status != "running" {
			return run, nil
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Healthy checks the daemon liveness endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
