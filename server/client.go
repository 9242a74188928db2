// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultPollInterval is how often Client.Wait polls a run.
const DefaultPollInterval = 500 * time.Millisecond

// Client calls a running server.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a client for the server at baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send submits an event and returns the run it triggered.
func (c *Client) Send(ctx context.Context, name string, data any) (*RunView, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var run RunView
	if err := c.do(ctx, http.MethodPost, "/v1/events", EventRequest{Name: name, Data: raw}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Run fetches the current state of a run.
func (c *Client) Run(ctx context.Context, id string) (*RunView, error) {
	var run RunView
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// EventRuns lists the runs an event triggered.
func (c *Client) EventRuns(ctx context.Context, eventID string) ([]RunView, error) {
	var runs []RunView
	if err := c.do(ctx, http.MethodGet, "/v1/events/"+url.PathEscape(eventID)+"/runs", nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Cancel requests cancellation of a run.
func (c *Client) Cancel(ctx context.Context, id string) (*RunView, error) {
	var run RunView
	if err := c.do(ctx, http.MethodPost, "/v1/runs/"+url.PathEscape(id)+"/cancel", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Retry re-schedules a failed run.
func (c *Client) Retry(ctx context.Context, id string) (*RunView, error) {
	var run RunView
	if err := c.do(ctx, http.MethodPost, "/v1/runs/"+url.PathEscape(id)+"/retry", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Wait polls a run every interval until it is Completed or Failed.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (*RunView, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := c.Run(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
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

	if resp.StatusCode >= 300 {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
