package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yukunliu/ragpipe"
)

func newTestHandler(t *testing.T) *handler {
	t.Helper()
	cfg := ragpipe.DefaultConfig()
	cfg.DimLight = 64
	cfg.DimDense = 128
	e, err := ragpipe.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return newHandler(e)
}

func TestHandleChatRejectsBadRequests(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty query", `{"user_id":"u1","session_id":"s1","query":""}`},
		{"blank query", `{"user_id":"u1","session_id":"s1","query":"   "}`},
		{"missing user", `{"session_id":"s1","query":"什么是载波聚合"}`},
		{"negative top_k", `{"user_id":"u1","session_id":"s1","query":"什么是载波聚合","top_k":-1}`},
		{"unknown field", `{"user_id":"u1","session_id":"s1","query":"什么是载波聚合","extra":1}`},
		{"malformed json", `{"user_id":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.handleChat(w, req)

			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if body["error"] == "" {
				t.Error("error body carries no message")
			}
		})
	}
}

func TestHandleChatAnswers(t *testing.T) {
	h := newTestHandler(t)

	body := `{"user_id":"u1","session_id":"s1","query":"什么是载波聚合"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp ragpipe.ChatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Answer == "" {
		t.Error("empty answer")
	}
	if resp.Source != ragpipe.SourceRAG {
		t.Errorf("source = %q, want %q", resp.Source, ragpipe.SourceRAG)
	}
}

func TestHandleChatStreamEmitsFrames(t *testing.T) {
	h := newTestHandler(t)

	body := `{"user_id":"u1","session_id":"s1","query":"什么是载波聚合"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.handleChatStream(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	out := w.Body.String()
	if !strings.HasPrefix(out, "data: ") {
		t.Errorf("stream does not start with a data frame: %q", out[:min(len(out), 40)])
	}
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Errorf("stream missing terminal frame: %q", out[max(0, len(out)-40):])
	}
}

func TestHandleChatStreamRejectsBeforeStreaming(t *testing.T) {
	h := newTestHandler(t)

	body := `{"user_id":"u1","session_id":"s1","query":""}`
	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.handleChatStream(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if strings.Contains(w.Body.String(), "data:") {
		t.Errorf("validation failure leaked stream frames: %q", w.Body.String())
	}
}

func TestHandleIngestValidation(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"doc_id":"d1","doc_name":"测试文档","content":"# 标题\n\n正文内容。"}`, http.StatusOK},
		{"missing doc_id", `{"doc_name":"测试文档","content":"正文"}`, http.StatusUnprocessableEntity},
		{"missing content", `{"doc_id":"d1","doc_name":"测试文档"}`, http.StatusUnprocessableEntity},
		{"unknown field", `{"doc_id":"d1","doc_name":"n","content":"c","oops":true}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.handleIngest(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var health ragpipe.Health
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if health.Status == "" {
		t.Error("empty health status")
	}
}
