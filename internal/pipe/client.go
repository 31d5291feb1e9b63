// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipe provides the HTTP client for the hosted pipe/memory provider.
//
// The provider exposes two operations: running a pipe (a retrieval-augmented
// chat completion, streamed as newline-delimited JSON chunks) and uploading
// documents into a named memory collection. Thread continuity is carried by
// an opaque thread ID returned in a response header.
package pipe

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/pipechat/internal/model"
)

// Configuration constants for the provider API.
const (
	// DefaultBaseURL is the provider endpoint.
	DefaultBaseURL = "https://api.langbase.com"

	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry attempt count for transient upload errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize caps response bodies to prevent memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	// ThreadIDHeader carries the conversation thread ID on run responses.
	ThreadIDHeader = "lb-thread-id"
)

var (
	// sharedHTTPClient is the pooled client for non-streaming requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient has no timeout; streaming lifetime is bounded by
	// the request context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// Error variables for common provider errors.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("pipe API key not configured")

	// ErrAuthFailed indicates authentication failed.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrPipeNotFound indicates the named pipe or memory does not exist.
	ErrPipeNotFound = errors.New("pipe not found")
)

// Error represents an error response from the provider API.
type Error struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("pipe error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("pipe error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorResponse is the provider's error body.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// wireMessage is the message shape the provider expects.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunRequest describes one pipe run.
type RunRequest struct {
	// Name of the pipe to run.
	Name string
	// Messages is the full conversation buffer, oldest first.
	Messages []model.Message
	// ThreadID continues an existing provider-side thread when non-empty.
	ThreadID string
}

// runBody is the JSON body for the run endpoint.
type runBody struct {
	Name     string        `json:"name"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	ThreadID string        `json:"threadId,omitempty"`
}

// StreamChunk is a single parsed chunk of a streamed run.
type StreamChunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Error   error  `json:"-"`
}

// StreamCallback receives chunks as they arrive.
type StreamCallback func(chunk StreamChunk)

// RunResult summarizes a completed (or interrupted) run.
type RunResult struct {
	// ThreadID is the provider thread ID from the response header.
	ThreadID string
}

// UploadRequest describes one document upload.
type UploadRequest struct {
	MemoryName   string `json:"memoryName"`
	DocumentName string `json:"documentName"`
	ContentType  string `json:"contentType"`
	Document     []byte `json:"document"`
}

// UploadAck is the provider's acknowledgement of a stored document.
type UploadAck struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client communicates with the pipe/memory provider.
type Client struct {
	apiKey     string
	baseURL    string
	maxRetries int
	userAgent  string

	// overridable for tests
	httpClient      *http.Client
	streamingClient *http.Client
}

// NewClient creates a provider client with the given API key.
// An empty key is allowed at construction; requests fail with
// ErrNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:          strings.TrimSpace(apiKey),
		baseURL:         DefaultBaseURL,
		maxRetries:      DefaultMaxRetries,
		userAgent:       "pipechat/1.0",
		httpClient:      sharedHTTPClient,
		streamingClient: sharedStreamingClient,
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithMaxRetries sets the maximum number of retry attempts for uploads.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// WithHTTPClient overrides both HTTP clients. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamingClient = hc
	return c
}

// IsConfigured returns true if the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// setHeaders sets the required headers for provider requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

// =============================================================================
// RUN
// =============================================================================

// Run executes a pipe run, streaming chunks to the callback until the stream
// completes or ctx is cancelled. The returned RunResult carries the thread ID
// from the response header; content accumulation is the caller's concern.
//
// On ctx cancellation mid-stream, Run returns ctx's error; chunks delivered
// before cancellation remain valid.
func (c *Client) Run(ctx context.Context, req RunRequest, callback StreamCallback) (*RunResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	body := runBody{
		Name:     req.Name,
		Messages: msgs,
		Stream:   true,
		ThreadID: req.ThreadID,
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/pipes/run", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	start := time.Now()
	resp, err := c.streamingClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("run request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := readResponse(resp)
		if readErr != nil {
			body = nil
		}
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	result := &RunResult{ThreadID: resp.Header.Get(ThreadIDHeader)}

	reader := NewStreamReader(resp.Body)
	if err := reader.Process(ctx, callback); err != nil {
		return result, err
	}

	log.Printf("PIPE_RUN | pipe=%s chunks=%d duration=%.2fs",
		req.Name, reader.ChunkCount(), time.Since(start).Seconds())
	return result, nil
}

// =============================================================================
// UPLOAD
// =============================================================================

// UploadDocument stores a document in a memory collection. Transient failures
// (5xx, rate limiting) are retried with exponential backoff; the provider
// treats uploads as idempotent per document name.
func (c *Client) UploadDocument(ctx context.Context, req UploadRequest) (*UploadAck, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if req.MemoryName == "" {
		return nil, errors.New("memory name required")
	}

	url := c.baseURL + "/v1/memory/" + req.MemoryName + "/documents"

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		ack, err := c.doUpload(ctx, url, bodyBytes)
		if err != nil {
			if c.isRetryable(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return ack, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doUpload performs a single upload request.
func (c *Client) doUpload(ctx context.Context, url string, body []byte) (*UploadAck, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var ack UploadAck
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}

	log.Printf("PIPE_UPLOAD | document=%s status=%s duration=%.2fs",
		ack.Name, ack.Status, time.Since(start).Seconds())
	return &ack, nil
}

// =============================================================================
// ERROR HANDLING
// =============================================================================

// readResponse reads a response body with a size cap.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts HTTP error responses to typed errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		perr := &Error{
			Code:    apiErr.Error.Code,
			Message: apiErr.Error.Message,
			Status:  statusCode,
		}
		switch statusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrAuthFailed, perr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrPipeNotFound, perr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, perr.Message)
		default:
			return perr
		}
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	case http.StatusNotFound:
		return ErrPipeNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &Error{Message: string(body), Status: statusCode}
	}
}

// isRetryable determines if an error should trigger an upload retry.
func (c *Client) isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Status >= 500 && perr.Status < 600
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return false
}

// calculateBackoff returns the delay before the next retry.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
