// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the pipechat HTTP API.
//
// Endpoints:
//   - POST /api/chat   - one conversation turn against the upstream pipe
//   - POST /api/upload - store document text in the memory collection
//   - GET  /health     - health check
//
// Every response is JSON. Upstream failures surface as structured errors;
// internal detail is logged, never returned to the client.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/pipechat/internal/chat"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8098

	// DefaultRequestTimeout bounds a whole chat request. Must exceed the
	// engine's stream deadline so truncated turns still answer 200.
	DefaultRequestTimeout = 55 * time.Second

	// MaxRequestBodySize caps request bodies to prevent DoS (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxMessageLength is the maximum length of a single chat message.
	MaxMessageLength = 100000

	// Version is the server version.
	Version = "1.0.0"
)

// ============================================================================
// SERVER STATS
// ============================================================================

// Stats tracks server usage counters.
type Stats struct {
	TotalRequests  int64     `json:"total_requests"`
	ChatTurns      int64     `json:"chat_turns"`
	TruncatedTurns int64     `json:"truncated_turns"`
	Uploads        int64     `json:"uploads"`
	Failures       int64     `json:"failures"`
	StartTime      time.Time `json:"start_time"`
}

// NewStats creates a Stats instance with the start time set.
func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Stats {
	return Stats{
		TotalRequests:  atomic.LoadInt64(&s.TotalRequests),
		ChatTurns:      atomic.LoadInt64(&s.ChatTurns),
		TruncatedTurns: atomic.LoadInt64(&s.TruncatedTurns),
		Uploads:        atomic.LoadInt64(&s.Uploads),
		Failures:       atomic.LoadInt64(&s.Failures),
		StartTime:      s.StartTime,
	}
}

// Uptime returns the server uptime.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the pipechat HTTP API server.
type Server struct {
	port   int
	router *http.ServeMux
	server *http.Server

	engine *chat.Engine
	stats  *Stats

	requestTimeout time.Duration
	limiter        *IPRateLimiter

	mu sync.RWMutex
}

// NewServer creates a server for the given engine.
// If port is 0, the default port (8098) is used.
func NewServer(engine *chat.Engine, port int) *Server {
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		port:           port,
		router:         http.NewServeMux(),
		engine:         engine,
		stats:          NewStats(),
		requestTimeout: DefaultRequestTimeout,
	}

	s.setupRoutes()
	return s
}

// WithRequestTimeout sets the whole-request deadline for chat turns.
func (s *Server) WithRequestTimeout(d time.Duration) *Server {
	if d > 0 {
		s.requestTimeout = d
	}
	return s
}

// WithRateLimiter sets the per-IP rate limiter. nil disables limiting.
func (s *Server) WithRateLimiter(l *IPRateLimiter) *Server {
	s.limiter = l
	return s
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}

// Stats returns the server counters.
func (s *Server) Stats() *Stats {
	return s.stats
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/upload", s.handleUpload)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter))
	}
	return Chain(middlewares...)(s.router)
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	log.Printf("SERVER_START | port=%d", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	log.Printf("SERVER_STOP | port=%d", s.port)
	return srv.Shutdown(ctx)
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ThreadID       string `json:"threadId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ChatResponse is the success body of POST /api/chat.
type ChatResponse struct {
	Response       string `json:"response"`
	ThreadID       string `json:"threadId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// UploadRequest is the body of POST /api/upload.
type UploadRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename,omitempty"`
}

// UploadResponse is the success body of POST /api/upload.
type UploadResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Partial string `json:"partial,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Configured bool   `json:"upstream_configured"`
	UptimeSecs int64  `json:"uptime_secs"`
}

// ============================================================================
// HANDLERS
// ============================================================================

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.stats.TotalRequests, 1)
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("CHAT_BAD_REQUEST | error=%v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format", "")
		return
	}

	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "Message is required", "")
		return
	}
	if len(req.Message) > MaxMessageLength {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Message exceeds maximum length of %d", MaxMessageLength), "")
		return
	}

	// The request deadline exceeds the engine's stream deadline, so a slow
	// upstream degrades to a truncated 200 before this context expires.
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	reply, err := s.engine.Chat(ctx, req.ConversationID, req.ThreadID, req.Message)
	if err != nil {
		atomic.AddInt64(&s.stats.Failures, 1)
		s.writeChatError(w, ctx, err)
		return
	}

	atomic.AddInt64(&s.stats.ChatTurns, 1)
	if reply.Truncated {
		atomic.AddInt64(&s.stats.TruncatedTurns, 1)
	}

	s.writeJSON(w, http.StatusOK, ChatResponse{
		Response:       reply.Text,
		ThreadID:       reply.ThreadID,
		ConversationID: reply.ConversationID,
	})
}

// writeChatError maps an engine failure to a JSON error response.
func (s *Server) writeChatError(w http.ResponseWriter, ctx context.Context, err error) {
	log.Printf("CHAT_FAILED | error=%v", err)

	msg := "Failed to get response"
	if ctx.Err() == context.DeadlineExceeded {
		msg = "Request timed out"
	}

	var perr *chat.PartialError
	if errors.As(err, &perr) {
		s.writeError(w, http.StatusInternalServerError, msg, perr.Partial)
		return
	}
	if errors.Is(err, chat.ErrEmptyMessage) {
		s.writeError(w, http.StatusBadRequest, "Message is required", "")
		return
	}
	s.writeError(w, http.StatusInternalServerError, msg, "")
}

// handleUpload handles POST /api/upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.stats.TotalRequests, 1)
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("UPLOAD_BAD_REQUEST | error=%v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format", "")
		return
	}

	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "Text is required", "")
		return
	}

	ack, err := s.engine.Upload(r.Context(), req.Text, req.Filename)
	if err != nil {
		atomic.AddInt64(&s.stats.Failures, 1)
		log.Printf("UPLOAD_FAILED | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to upload", "")
		return
	}

	atomic.AddInt64(&s.stats.Uploads, 1)
	s.writeJSON(w, http.StatusOK, UploadResponse{
		Message: "Uploaded successfully",
		Data:    ack,
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    Version,
		Configured: s.engine.IsConfigured(),
		UptimeSecs: int64(s.stats.Uptime().Seconds()),
	})
}

// ============================================================================
// RESPONSE HELPERS
// ============================================================================

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WRITE_RESPONSE_FAILED | error=%v", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message, partial string) {
	s.writeJSON(w, status, ErrorResponse{Error: message, Partial: partial})
}
