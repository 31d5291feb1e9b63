// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the conversation engine sitting between the HTTP
// endpoints (or terminal clients) and the upstream pipe provider.
//
// Conversations are kept in memory, keyed by conversation ID. Each
// conversation holds an append-only message buffer and an opaque provider
// thread ID adopted from the first reply that carries one. Turns within one
// conversation are serialized; turns across conversations run concurrently.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/pipechat/internal/model"
	"github.com/jeranaias/pipechat/internal/pipe"
)

// TruncationNotice is appended to a reply cut short by the stream deadline.
const TruncationNotice = "\n\n[Note: Response was truncated due to time constraints]"

// DefaultStreamTimeout bounds a single upstream turn.
const DefaultStreamTimeout = 45 * time.Second

// Error variables for the engine.
var (
	// ErrEmptyMessage indicates a chat turn with no message text.
	ErrEmptyMessage = errors.New("message is required")

	// ErrEmptyText indicates an upload with no document text.
	ErrEmptyText = errors.New("text is required")
)

// UpstreamError wraps a provider failure that produced no usable output.
type UpstreamError struct {
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *UpstreamError) Unwrap() error { return e.Err }

// PartialError wraps a provider failure that occurred after some content had
// already streamed. Partial holds the accumulated text.
type PartialError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *PartialError) Error() string {
	return fmt.Sprintf("upstream request failed after partial output: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *PartialError) Unwrap() error { return e.Err }

// =============================================================================
// SESSIONS
// =============================================================================

// Session is one conversation: an ordered message buffer plus the provider
// thread ID. The mutex serializes turns within the conversation.
type Session struct {
	mu sync.Mutex

	id       string
	threadID string
	messages []model.Message
}

// ID returns the conversation ID.
func (s *Session) ID() string { return s.id }

// ThreadID returns the provider thread ID, or "" before the first reply.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// Messages returns a copy of the conversation buffer.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// adoptThreadID stores id only when no thread ID is held yet.
// Caller must hold s.mu.
func (s *Session) adoptThreadID(id string) {
	if s.threadID == "" && id != "" {
		s.threadID = id
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Reply is the outcome of one successful chat turn.
type Reply struct {
	// Text is the raw reply text; truncated replies carry TruncationNotice.
	Text string
	// ThreadID is the provider thread ID held by the conversation.
	ThreadID string
	// ConversationID identifies the conversation the turn belongs to.
	ConversationID string
	// Truncated is true when the stream deadline cut the reply short.
	Truncated bool
}

// Engine routes chat turns and uploads to the pipe provider.
type Engine struct {
	client        *pipe.Client
	pipeName      string
	memoryName    string
	streamTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewEngine creates an engine over the given provider client.
func NewEngine(client *pipe.Client, pipeName, memoryName string) *Engine {
	return &Engine{
		client:        client,
		pipeName:      pipeName,
		memoryName:    memoryName,
		streamTimeout: DefaultStreamTimeout,
		sessions:      make(map[string]*Session),
	}
}

// WithStreamTimeout sets the per-turn stream deadline.
func (e *Engine) WithStreamTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.streamTimeout = d
	}
	return e
}

// session returns the conversation for id, creating it if needed.
// An empty id creates a fresh conversation.
func (e *Engine) session(id string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	s, ok := e.sessions[id]
	if !ok {
		s = &Session{id: id}
		e.sessions[id] = s
	}
	return s
}

// IsConfigured reports whether the provider client carries credentials.
func (e *Engine) IsConfigured() bool {
	return e.client.IsConfigured()
}

// SessionCount returns the number of live conversations.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Reset discards the conversation with the given ID.
func (e *Engine) Reset(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
}

// Chat executes one turn of the conversation identified by conversationID
// (created when empty). threadID, when non-empty, seeds the conversation's
// provider thread before the turn; a thread ID already held wins.
//
// A turn that hits the stream deadline is still a success: the accumulated
// partial text is returned with TruncationNotice appended. Failures after
// partial output return a PartialError so callers can surface the fragment.
func (e *Engine) Chat(ctx context.Context, conversationID, threadID, message string) (*Reply, error) {
	if message == "" {
		return nil, ErrEmptyMessage
	}

	s := e.session(conversationID)

	// One turn at a time per conversation.
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adoptThreadID(threadID)
	s.messages = append(s.messages, model.NewUserMessage(message))

	runCtx, cancel := context.WithTimeout(ctx, e.streamTimeout)
	defer cancel()

	acc := pipe.NewAccumulator()
	start := time.Now()
	result, err := e.client.Run(runCtx, pipe.RunRequest{
		Name:     e.pipeName,
		Messages: s.messages,
		ThreadID: s.threadID,
	}, acc.Add)

	if result != nil {
		s.adoptThreadID(result.ThreadID)
	}

	truncated := false
	switch {
	case err == nil && acc.Err() == nil:
		// completed

	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		// The stream deadline fired, not the caller's context. Degrade to a
		// truncated success with whatever already streamed.
		truncated = true
		log.Printf("CHAT_TRUNCATED | conversation=%s elapsed=%.1fs chars=%d",
			s.id, time.Since(start).Seconds(), len(acc.Content()))

	default:
		cause := err
		if cause == nil {
			cause = acc.Err()
		}
		if acc.Content() != "" {
			return nil, &PartialError{Partial: acc.Content(), Err: cause}
		}
		return nil, &UpstreamError{Err: cause}
	}

	text := acc.Content()
	if truncated {
		text += TruncationNotice
	}

	s.messages = append(s.messages, model.NewAssistantMessage(text))

	return &Reply{
		Text:           text,
		ThreadID:       s.threadID,
		ConversationID: s.id,
		Truncated:      truncated,
	}, nil
}

// Upload stores document text in the configured memory collection.
// filename defaults to "document.txt" when empty.
func (e *Engine) Upload(ctx context.Context, text, filename string) (*pipe.UploadAck, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if filename == "" {
		filename = "document.txt"
	}

	ack, err := e.client.UploadDocument(ctx, pipe.UploadRequest{
		MemoryName:   e.memoryName,
		DocumentName: filename,
		ContentType:  "text/plain",
		Document:     []byte(text),
	})
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	return ack, nil
}
