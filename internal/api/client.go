// Package api is a small client for the map web server that hosts the
// observer UI.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 10 * time.Second

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("map server returned status %d", e.Code)
	}
	return fmt.Sprintf("map server returned status %d: %s", e.Code, e.Body)
}

type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// New trims any trailing slash from baseURL. apiKey may be empty.
func New(baseURL, apiKey string) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: requestTimeout},
	}
}

// Healthcheck issues GET /healthcheck.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("build healthcheck request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// WaitReady polls Healthcheck every interval until it succeeds or ctx ends.
// Authentication failures are returned at once since retrying cannot help.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		err := c.Healthcheck(ctx)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("map server not ready: %w", errors.Join(ctx.Err(), err))
		case <-ticker.C:
		}
	}
}
