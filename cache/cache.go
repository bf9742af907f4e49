// Package cache is the multi-tier answer cache and session layer:
// exact query cache, semantic (vector-similarity) cache, per-session
// conversation history with sliding TTL, and a distributed lock used to
// serialize cache-miss work on hot keys.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Message is one conversation turn stored in session history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config carries tier TTLs and the semantic match threshold. Zero
// values fall back to defaults.
type Config struct {
	ExactTTL          time.Duration
	SemanticTTL       time.Duration
	SessionTTL        time.Duration
	SemanticThreshold float64
}

func (c Config) withDefaults() Config {
	if c.ExactTTL <= 0 {
		c.ExactTTL = 24 * time.Hour
	}
	if c.SemanticTTL <= 0 {
		c.SemanticTTL = 24 * time.Hour
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 2 * time.Hour
	}
	if c.SemanticThreshold <= 0 {
		c.SemanticThreshold = 0.92
	}
	return c
}

// Cache is the backend-agnostic contract for the tiered cache.
type Cache interface {
	// GetExact returns the cached answer for a query, if present.
	GetExact(ctx context.Context, query string) (string, bool, error)
	SetExact(ctx context.Context, query, answer string) error

	// GetSemantic scans cached query vectors and returns the answer
	// of the first entry whose cosine similarity with vec reaches the
	// configured threshold. Scan order across entries is unspecified.
	GetSemantic(ctx context.Context, vec []float32) (string, bool, error)
	SetSemantic(ctx context.Context, query string, vec []float32, answer string) error

	// History returns the session's messages in append order.
	History(ctx context.Context, userID, sessionID string) ([]Message, error)

	// PushMessage appends to the session and slides its TTL.
	PushMessage(ctx context.Context, userID, sessionID string, msg Message) error

	// TrimHistory keeps only the last keepLast messages.
	TrimHistory(ctx context.Context, userID, sessionID string, keepLast int) error

	// ReplaceHistory atomically swaps the stored history, preserving
	// the session's remaining TTL.
	ReplaceHistory(ctx context.Context, userID, sessionID string, msgs []Message) error

	// AcquireLock takes the named lock for at most ttl; it reports
	// false when another holder has it.
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error

	Close() error
}

// NormalizeQuery canonicalizes a query for cache keying: NFKC,
// lowercase, trimmed.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(q)))
}

// QueryHash is the MD5 hex digest of the normalized query.
func QueryHash(q string) string {
	sum := md5.Sum([]byte(NormalizeQuery(q)))
	return hex.EncodeToString(sum[:])
}

func exactKey(q string) string    { return "cache:exact:" + QueryHash(q) }
func semanticKey(q string) string { return "cache:semantic:" + QueryHash(q) }
func lockKey(name string) string  { return "lock:" + name }

func sessionKey(userID, sessionID string) string {
	return "session:" + userID + ":" + sessionID + ":messages"
}
