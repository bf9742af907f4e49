// Package summarize compresses over-budget conversation histories in
// the background. A worker consumes jobs enqueued after each chat turn,
// re-reads the session, and when the history exceeds its token budget
// replaces the older prefix with a single system summary message.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yukunliu/ragpipe/bus"
	"github.com/yukunliu/ragpipe/cache"
	"github.com/yukunliu/ragpipe/llm"
	"github.com/yukunliu/ragpipe/textutil"
)

const summaryPrompt = "请总结上述用户与 AI 的交互核心技术点与已确认的客观事实，需以精简的要点呈现。"

// Job identifies the session to check. It is the payload of
// bus.TopicSummarize messages.
type Job struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Config tunes the worker. Zero values fall back to defaults.
type Config struct {
	// BudgetThreshold is the token total above which the history is
	// compressed.
	BudgetThreshold int

	// KeepLast messages survive compression verbatim.
	KeepLast int

	// MaxRetries bounds redelivery attempts per job.
	MaxRetries int

	// RetryDelay is the base backoff, doubled per attempt.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BudgetThreshold <= 0 {
		c.BudgetThreshold = 4000
	}
	if c.KeepLast <= 0 {
		c.KeepLast = 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	return c
}

// Worker checks and compresses session histories.
type Worker struct {
	cfg      Config
	cache    cache.Cache
	provider llm.Provider // nil means extractive summaries only
	model    string
}

// NewWorker wires a summarize worker; provider may be nil.
func NewWorker(cfg Config, c cache.Cache, provider llm.Provider, model string) *Worker {
	return &Worker{cfg: cfg.withDefaults(), cache: c, provider: provider, model: model}
}

// Enqueue publishes a summarize job for the session.
func Enqueue(ctx context.Context, b bus.Bus, userID, sessionID string) error {
	payload, err := json.Marshal(Job{UserID: userID, SessionID: sessionID})
	if err != nil {
		return err
	}
	return b.Publish(ctx, bus.TopicSummarize, userID+":"+sessionID, payload)
}

// Run consumes summarize jobs until ctx is cancelled. Jobs that keep
// failing past the retry budget are dropped; compression is best
// effort and never blocks the chat path.
func (w *Worker) Run(ctx context.Context, b bus.Bus, group string) error {
	return b.Consume(ctx, bus.TopicSummarize, group, func(ctx context.Context, key string, value []byte) error {
		var job Job
		if err := json.Unmarshal(value, &job); err != nil {
			slog.Warn("summarize: dropping malformed job", "key", key, "error", err)
			return nil
		}
		if err := w.processWithRetry(ctx, job); err != nil {
			slog.Warn("summarize: giving up on session",
				"user_id", job.UserID, "session_id", job.SessionID, "error", err)
		}
		return nil
	})
}

func (w *Worker) processWithRetry(ctx context.Context, job Job) error {
	delay := w.cfg.RetryDelay
	var lastErr error
	for attempt := 0; attempt < w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		if lastErr = w.Process(ctx, job); lastErr == nil {
			return nil
		}
		slog.Warn("summarize: attempt failed",
			"attempt", attempt+1, "session_id", job.SessionID, "error", lastErr)
	}
	return lastErr
}

// Process runs one budget check and, when over budget, rewrites the
// stored history as summary + the most recent messages. The session's
// remaining TTL survives the rewrite.
func (w *Worker) Process(ctx context.Context, job Job) error {
	messages, err := w.cache.History(ctx, job.UserID, job.SessionID)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	total := 0
	for _, m := range messages {
		total += textutil.EstimateTokens(m.Content)
	}
	if total <= w.cfg.BudgetThreshold {
		slog.Debug("summarize: under budget",
			"session_id", job.SessionID, "messages", len(messages), "tokens", total)
		return nil
	}

	summary := w.summarize(ctx, messages)
	recent := messages
	if len(recent) > w.cfg.KeepLast {
		recent = recent[len(recent)-w.cfg.KeepLast:]
	}
	replacement := append(
		[]cache.Message{{Role: "system", Content: "前情提要: " + summary}},
		recent...,
	)
	if err := w.cache.ReplaceHistory(ctx, job.UserID, job.SessionID, replacement); err != nil {
		return fmt.Errorf("replacing history: %w", err)
	}

	after := 0
	for _, m := range replacement {
		after += textutil.EstimateTokens(m.Content)
	}
	slog.Info("summarize: history compressed",
		"session_id", job.SessionID, "tokens_before", total, "tokens_after", after)
	return nil
}

// summarize produces the prefix summary, via the model when one is
// configured and extractively otherwise. Model failures fall back to
// the extractive path so a flaky provider cannot stall compression.
func (w *Worker) summarize(ctx context.Context, messages []cache.Message) string {
	if w.provider != nil {
		if s, err := w.summarizeWithModel(ctx, messages); err == nil {
			return s
		} else {
			slog.Warn("summarize: model summary failed, using extractive fallback", "error", err)
		}
	}
	return extractiveSummary(messages)
}

func (w *Worker) summarizeWithModel(ctx context.Context, messages []cache.Message) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	resp, err := w.provider.Chat(ctx, llm.ChatRequest{
		Model: w.model,
		Messages: []llm.Message{
			{Role: "system", Content: summaryPrompt},
			{Role: "user", Content: b.String()},
		},
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(resp.Content)
	if s == "" {
		return "", fmt.Errorf("empty summary")
	}
	return s, nil
}

// extractiveSummary lists the topics of the user turns, capped at the
// first eight.
func extractiveSummary(messages []cache.Message) string {
	var topics []string
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		runes := []rune(m.Content)
		if len(runes) > 50 {
			runes = runes[:50]
		}
		topics = append(topics, string(runes))
	}

	shown := topics
	if len(shown) > 8 {
		shown = shown[:8]
	}
	summary := "用户先后探讨了以下技术主题：" + strings.Join(shown, "；")
	if len(topics) > 8 {
		summary += fmt.Sprintf("等共 %d 个问题", len(topics))
	}
	return summary
}
