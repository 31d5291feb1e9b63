// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/pipechat/internal/pipe"
)

// newTestEngine wires an engine to a mock provider.
func newTestEngine(t *testing.T, handler http.HandlerFunc) *Engine {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := pipe.NewClient("pk-test").WithBaseURL(srv.URL).WithHTTPClient(&http.Client{})
	return NewEngine(client, "support", "support-kb")
}

// runHandler answers /v1/pipes/run with the given chunks and thread id.
func runHandler(threadID string, lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if threadID != "" {
			w.Header().Set(pipe.ThreadIDHeader, threadID)
		}
		w.WriteHeader(http.StatusOK)
		for _, l := range lines {
			w.Write([]byte(l + "\n"))
		}
	}
}

func TestChatEmptyMessage(t *testing.T) {
	var called atomic.Bool
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	})

	_, err := e.Chat(context.Background(), "", "", "")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if called.Load() {
		t.Error("provider was called for an empty message")
	}
}

func TestChatSuccessAdoptsThreadID(t *testing.T) {
	e := newTestEngine(t, runHandler("thread-abc",
		`{"content":"Hi ","done":false}`,
		`{"content":"there","done":true}`,
	))

	reply, err := e.Chat(context.Background(), "", "", "hello")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply.Text != "Hi there" {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.ThreadID != "thread-abc" {
		t.Errorf("thread id = %q", reply.ThreadID)
	}
	if reply.ConversationID == "" {
		t.Error("conversation id not assigned")
	}
	if reply.Truncated {
		t.Error("reply wrongly marked truncated")
	}
}

func TestChatThreadIDFirstWriteWins(t *testing.T) {
	e := newTestEngine(t, runHandler("thread-new",
		`{"content":"ok","done":true}`,
	))

	// The conversation is seeded with a thread id by the caller; the
	// provider's header value must not replace it.
	reply, err := e.Chat(context.Background(), "conv-1", "thread-held", "first")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply.ThreadID != "thread-held" {
		t.Errorf("thread id = %q, want thread-held", reply.ThreadID)
	}

	reply, err = e.Chat(context.Background(), "conv-1", "", "second")
	if err != nil {
		t.Fatalf("second Chat failed: %v", err)
	}
	if reply.ThreadID != "thread-held" {
		t.Errorf("thread id after second turn = %q, want thread-held", reply.ThreadID)
	}
}

func TestChatBufferGrowsAcrossTurns(t *testing.T) {
	var lastCount atomic.Int32
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		lastCount.Store(int32(len(body.Messages)))
		w.Write([]byte(`{"content":"r","done":true}` + "\n"))
	})

	if _, err := e.Chat(context.Background(), "conv-buf", "", "one"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if got := lastCount.Load(); got != 1 {
		t.Errorf("turn 1 sent %d messages, want 1", got)
	}

	if _, err := e.Chat(context.Background(), "conv-buf", "", "two"); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	// user, assistant, user
	if got := lastCount.Load(); got != 3 {
		t.Errorf("turn 2 sent %d messages, want 3", got)
	}
}

func TestChatStreamDeadlineReturnsTruncatedPartial(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":"partial answer","done":false}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Never complete the stream.
		<-r.Context().Done()
	})
	e.WithStreamTimeout(200 * time.Millisecond)

	reply, err := e.Chat(context.Background(), "", "", "slow question")
	if err != nil {
		t.Fatalf("expected truncated success, got error %v", err)
	}
	if !reply.Truncated {
		t.Error("reply not marked truncated")
	}
	if !strings.HasPrefix(reply.Text, "partial answer") {
		t.Errorf("text = %q, want partial content first", reply.Text)
	}
	if !strings.HasSuffix(reply.Text, TruncationNotice) {
		t.Errorf("text = %q, want truncation notice appended", reply.Text)
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	})

	_, err := e.Chat(context.Background(), "", "", "hello")
	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestChatPartialThenFailure(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		// Declare a longer body than is written so the client sees an
		// unexpected EOF mid-stream.
		w.Header().Set("Content-Length", "4096")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":"half an answer","done":false}` + "\n"))
	})

	_, err := e.Chat(context.Background(), "", "", "hello")
	var perr *PartialError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PartialError, got %v", err)
	}
	if perr.Partial != "half an answer" {
		t.Errorf("partial = %q", perr.Partial)
	}
}

func TestUploadEmptyText(t *testing.T) {
	var called atomic.Bool
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	})

	_, err := e.Upload(context.Background(), "", "notes.txt")
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if called.Load() {
		t.Error("provider was called for empty text")
	}
}

func TestUploadDefaultsFilename(t *testing.T) {
	var gotName string
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		var req pipe.UploadRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotName = req.DocumentName
		json.NewEncoder(w).Encode(pipe.UploadAck{ID: "d", Name: req.DocumentName, Status: "stored"})
	})

	ack, err := e.Upload(context.Background(), "some text", "")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if gotName != "document.txt" {
		t.Errorf("document name = %q, want document.txt", gotName)
	}
	if ack.Status != "stored" {
		t.Errorf("status = %q", ack.Status)
	}
}

func TestResetDropsConversation(t *testing.T) {
	e := newTestEngine(t, runHandler("", `{"content":"x","done":true}`))

	reply, err := e.Chat(context.Background(), "", "", "hi")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if e.SessionCount() != 1 {
		t.Fatalf("session count = %d", e.SessionCount())
	}

	e.Reset(reply.ConversationID)
	if e.SessionCount() != 0 {
		t.Errorf("session count after reset = %d", e.SessionCount())
	}
}
