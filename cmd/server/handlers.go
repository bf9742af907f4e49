package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/yukunliu/ragpipe"
)

type handler struct {
	engine ragpipe.Engine
}

func newHandler(e ragpipe.Engine) *handler {
	return &handler{engine: e}
}

type chatBody struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
}

// decodeStrict parses a JSON body, rejecting unknown fields.
func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// status maps engine errors to HTTP codes: validation errors are
// unprocessable, everything else is internal.
func status(err error) int {
	switch {
	case errors.Is(err, ragpipe.ErrInvalidUserID),
		errors.Is(err, ragpipe.ErrInvalidSessionID),
		errors.Is(err, ragpipe.ErrInvalidQuery),
		errors.Is(err, ragpipe.ErrInvalidTopK):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// POST /chat
func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req chatBody
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	resp, err := h.engine.Chat(ctx, ragpipe.ChatRequest{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Query:     req.Query,
		TopK:      req.TopK,
	})
	if err != nil {
		writeError(w, status(err), err.Error())
		if status(err) == http.StatusInternalServerError {
			slog.Error("chat error", "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// POST /chat/stream
// Emits text/event-stream frames: one "data: <token>" per token and a
// final "data: [DONE]".
func (h *handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req chatBody
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable intermediary buffering (nginx et al).
	w.Header().Set("X-Accel-Buffering", "no")

	headerSent := false
	_, err := h.engine.ChatStream(ctx, ragpipe.ChatRequest{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Query:     req.Query,
		TopK:      req.TopK,
	}, func(token string) error {
		headerSent = true
		if _, err := fmt.Fprintf(w, "data: %s\n\n", token); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !headerSent {
			writeError(w, status(err), err.Error())
			return
		}
		// Mid-stream failure: terminate the stream, the status line is
		// already gone.
		slog.Error("chat stream error", "error", err)
		fmt.Fprintf(w, "data: [ERROR]\n\n")
		flusher.Flush()
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// POST /ingest
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var req struct {
		DocID      string `json:"doc_id"`
		DocName    string `json:"doc_name"`
		Content    string `json:"content"`
		SourceType string `json:"source_type,omitempty"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if req.DocID == "" || req.DocName == "" || req.Content == "" {
		writeError(w, http.StatusUnprocessableEntity, "doc_id, doc_name and content are required")
		return
	}

	n, err := h.engine.Ingest(ctx, req.DocID, req.DocName, req.Content, req.SourceType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		slog.Error("ingest error", "doc_id", req.DocID, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"chunks_created": n,
	})
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if docID == "" {
		writeError(w, http.StatusUnprocessableEntity, "document id is required")
		return
	}

	n, err := h.engine.DeleteDocument(r.Context(), docID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		slog.Error("delete error", "doc_id", docID, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "deleted",
		"chunks_removed": n,
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Health(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
