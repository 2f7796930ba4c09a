// Package probe checks on a running memkeeper server over HTTP.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const httpTimeout = 5 * time.Second

// Health is the body of GET /api/health.
type Health struct {
	Status  string  `json:"status"`
	Version string  `json:"version"`
	Uptime  float64 `json:"uptime"`
	DB      bool    `json:"db"`
	Driver  string  `json:"driver"`
}

// Client talks to a memkeeper server.
type Client struct {
	http      *http.Client
	serverURL string
}

// NewClient creates a client for the server at serverURL.
func NewClient(serverURL string) *Client {
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// Get sends a GET request. Returns response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, data)
	}
	return data, nil
}

// Health fetches the server's health report. A reachable server with an
// unreachable database is reported as an error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	data, err := c.Get(ctx, "/api/health")
	if err != nil {
		return nil, err
	}
	var h Health
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	if h.Status != "ok" || !h.DB {
		return &h, fmt.Errorf("unhealthy: status=%q db=%t", h.Status, h.DB)
	}
	return &h, nil
}

// Ping hits /ping, which keeps sleeping hosted instances awake.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Get(ctx, "/ping")
	return err
}

// KeepAlive pings every interval until ctx is done. Failures are logged
// and do not stop the loop.
func (c *Client) KeepAlive(ctx context.Context, interval time.Duration, log *slog.Logger) {
	ping := func() {
		if err := c.Ping(ctx); err != nil && ctx.Err() == nil {
			log.Warn("keep-alive ping failed", "url", c.serverURL, "error", err)
			return
		}
		log.Debug("keep-alive ping", "url", c.serverURL)
	}

	ping()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ping()
		case <-ctx.Done():
			return
		}
	}
}
