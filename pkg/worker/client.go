/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"
)

// DefaultMiddleServerURL is where results are delivered when no URL is configured.
const DefaultMiddleServerURL = "http://host.docker.internal:30017"

// MiddleServer receives task outcomes.
type MiddleServer interface {
	AddTodoPR(ctx context.Context, taskID string, req AddTodoPRRequest) error
}

// AddTodoPRRequest is the body of POST /task/{taskID}/add-todo-pr.
type AddTodoPRRequest struct {
	PRURL       *string `json:"prUrl"`
	Signature   string  `json:"signature"`
	RoundNumber int     `json:"roundNumber"`
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for middle server requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(l logr.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// Client implements MiddleServer over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logr.Logger
}

// NewClient creates a middle server client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddTodoPR posts a task outcome. Any non-2xx status is an error.
func (c *Client) AddTodoPR(ctx context.Context, taskID string, payload AddTodoPRRequest) error {
	u := c.baseURL + "/task/" + url.PathEscape(taskID) + "/add-todo-pr"

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling add-todo-pr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting result to %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.V(1).Info("result delivered", "taskID", taskID, "status", resp.StatusCode)
	return nil
}
