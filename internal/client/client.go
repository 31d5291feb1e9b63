// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client provides the HTTP client the terminal UIs use against the
// local pipechat API server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// APIError represents an error answer from the API server.
type APIError struct {
	Status  int
	Message string
	// Partial holds any reply fragment the server salvaged before failing.
	Partial string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// ErrServerUnreachable indicates the API server could not be reached.
var ErrServerUnreachable = errors.New("api server unreachable")

// =============================================================================
// CLIENT
// =============================================================================

const (
	// DefaultBaseURL is the local API server address.
	// Uses explicit IPv4 address instead of localhost to avoid IPv6
	// resolution issues on Windows.
	DefaultBaseURL = "http://127.0.0.1:8098"

	// DefaultTimeout bounds a whole client request. Slightly above the
	// server's own request deadline so server-side timeouts surface as
	// structured errors rather than dropped connections.
	DefaultTimeout = 60 * time.Second

	maxResponseSize = 10 * 1024 * 1024
)

// Client talks to the pipechat API server.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL.
// An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// WithHTTPClient overrides the underlying HTTP client. Used in tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

type chatRequest struct {
	Message        string `json:"message"`
	ThreadID       string `json:"threadId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ChatReply is the answer to one chat turn.
type ChatReply struct {
	Response       string `json:"response"`
	ThreadID       string `json:"threadId"`
	ConversationID string `json:"conversationId"`
}

type uploadRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename,omitempty"`
}

// UploadReply is the answer to a document upload.
type UploadReply struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type errorBody struct {
	Error   string `json:"error"`
	Partial string `json:"partial"`
}

// Health is the API server health report.
type Health struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Configured bool   `json:"upstream_configured"`
	UptimeSecs int64  `json:"uptime_secs"`
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Send executes one chat turn. threadID and conversationID may be empty on
// the first turn; the reply carries the values to send on subsequent turns.
func (c *Client) Send(ctx context.Context, message, threadID, conversationID string) (*ChatReply, error) {
	var reply ChatReply
	err := c.post(ctx, "/api/chat", chatRequest{
		Message:        message,
		ThreadID:       threadID,
		ConversationID: conversationID,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// Upload stores document text in the server's memory collection.
func (c *Client) Upload(ctx context.Context, text, filename string) (*UploadReply, error) {
	var reply UploadReply
	err := c.post(ctx, "/api/upload", uploadRequest{
		Text:     text,
		Filename: filename,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// Health checks whether the API server is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}
	defer resp.Body.Close()

	var health Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// post sends a JSON request and decodes the JSON answer into out.
// Non-2xx answers become an *APIError.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: eb.Error, Partial: eb.Partial}
		}
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
