// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/pipechat/internal/chat"
	"github.com/jeranaias/pipechat/internal/pipe"
)

// newTestServer builds a Server whose engine talks to the given mock
// provider handler.
func newTestServer(t *testing.T, provider http.HandlerFunc) (*Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		provider(w, r)
	}))
	t.Cleanup(upstream.Close)

	client := pipe.NewClient("pk-test").WithBaseURL(upstream.URL).WithHTTPClient(&http.Client{})
	engine := chat.NewEngine(client, "support", "support-kb")
	return NewServer(engine, 0), &calls
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestChatMissingMessage(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := postJSON(t, srv.Handler(), "/api/chat", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "Message is required" {
		t.Errorf("error = %q", resp.Error)
	}
	if calls.Load() != 0 {
		t.Error("upstream was called for an invalid request")
	}
}

func TestChatSuccessPassesThreadIDUnchanged(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ThreadID string `json:"threadId"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set(pipe.ThreadIDHeader, body.ThreadID)
		w.Write([]byte(`{"content":"answer","done":true}` + "\n"))
	})

	rec := postJSON(t, srv.Handler(), "/api/chat", ChatRequest{
		Message:  "hello",
		ThreadID: "thread-held",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[ChatResponse](t, rec)
	if resp.Response != "answer" {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.ThreadID != "thread-held" {
		t.Errorf("thread id = %q, want passthrough unchanged", resp.ThreadID)
	}
	if resp.ConversationID == "" {
		t.Error("conversation id missing from response")
	}
}

func TestChatInnerTimeoutIsSuccess(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":"partial text","done":false}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	srv.engine.WithStreamTimeout(150 * time.Millisecond)
	srv.WithRequestTimeout(2 * time.Second)

	rec := postJSON(t, srv.Handler(), "/api/chat", ChatRequest{Message: "slow"})
	if rec.Code != http.StatusOK {
		t.Fatalf("inner timeout must answer 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[ChatResponse](t, rec)
	if !strings.HasPrefix(resp.Response, "partial text") {
		t.Errorf("response = %q", resp.Response)
	}
	if !strings.HasSuffix(resp.Response, chat.TruncationNotice) {
		t.Errorf("response missing truncation notice: %q", resp.Response)
	}
}

func TestChatOuterTimeoutReturns500WithPartial(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":"fragment","done":false}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	// Outer below inner: the request deadline fires first.
	srv.engine.WithStreamTimeout(5 * time.Second)
	srv.WithRequestTimeout(150 * time.Millisecond)

	rec := postJSON(t, srv.Handler(), "/api/chat", ChatRequest{Message: "slow"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "Request timed out" {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.Partial != "fragment" {
		t.Errorf("partial = %q", resp.Partial)
	}
}

func TestChatUpstreamFailureReturns500(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	})

	rec := postJSON(t, srv.Handler(), "/api/chat", ChatRequest{Message: "hello"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "Failed to get response" {
		t.Errorf("error = %q", resp.Error)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("internal error detail leaked to client")
	}
}

func TestUploadMissingText(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := postJSON(t, srv.Handler(), "/api/upload", map[string]string{"filename": "a.txt"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "Text is required" {
		t.Errorf("error = %q", resp.Error)
	}
	if calls.Load() != 0 {
		t.Error("upstream was called for an invalid upload")
	}
}

func TestUploadSuccess(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pipe.UploadAck{ID: "d1", Name: "notes.txt", Status: "stored"})
	})

	rec := postJSON(t, srv.Handler(), "/api/upload", UploadRequest{
		Text:     "document body",
		Filename: "notes.txt",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[UploadResponse](t, rec)
	if resp.Message != "Uploaded successfully" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Data == nil {
		t.Error("data missing from response")
	}
}

func TestUploadUpstreamFailure(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad document"}}`))
	})

	rec := postJSON(t, srv.Handler(), "/api/upload", UploadRequest{Text: "x"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "Failed to upload" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[HealthResponse](t, rec)
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
	if !resp.Configured {
		t.Error("upstream should report configured")
	}
}

func TestHealthReportsUnconfiguredUpstream(t *testing.T) {
	engine := chat.NewEngine(pipe.NewClient(""), "support", "support-kb")
	srv := NewServer(engine, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[HealthResponse](t, rec)
	if resp.Configured {
		t.Error("keyless upstream must report unconfigured")
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.WithRateLimiter(NewIPRateLimiter(1, 2))

	handler := srv.Handler()
	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests rejected: %v", statuses)
	}
	if statuses[3] != http.StatusTooManyRequests {
		t.Errorf("rate limit not enforced: %v", statuses)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler blew up")
	})
	handler := Chain(RecoveryMiddleware())(panicky)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	// Direct connection from a remote address ignores forwarded headers.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:4567"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	if got := GetClientIP(req); got != "198.51.100.9" {
		t.Errorf("ip = %q", got)
	}

	// Loopback connections trust the forwarded header.
	req.RemoteAddr = "127.0.0.1:4567"
	if got := GetClientIP(req); got != "10.0.0.1" {
		t.Errorf("forwarded ip = %q", got)
	}
}
