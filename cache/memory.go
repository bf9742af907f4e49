package cache

import (
	"context"
	"sync"
	"time"

	"github.com/yukunliu/ragpipe/embedding"
)

type memEntry struct {
	value   string
	expires time.Time
}

type semEntry struct {
	query   string
	vector  []float32
	answer  string
	expires time.Time
}

type sessionEntry struct {
	msgs    []Message
	expires time.Time
}

// Memory implements Cache in process. It backs tests and keeps the
// engine operational when Redis is unreachable.
type Memory struct {
	mu       sync.Mutex
	cfg      Config
	exact    map[string]memEntry
	semantic map[string]semEntry
	sessions map[string]sessionEntry
	locks    map[string]time.Time

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewMemory returns an empty in-process cache.
func NewMemory(cfg Config) *Memory {
	return &Memory{
		cfg:      cfg.withDefaults(),
		exact:    make(map[string]memEntry),
		semantic: make(map[string]semEntry),
		sessions: make(map[string]sessionEntry),
		locks:    make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *Memory) GetExact(_ context.Context, query string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exact[exactKey(query)]
	if !ok || m.now().After(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) SetExact(_ context.Context, query, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exact[exactKey(query)] = memEntry{value: answer, expires: m.now().Add(m.cfg.ExactTTL)}
	return nil
}

func (m *Memory) GetSemantic(_ context.Context, vec []float32) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, e := range m.semantic {
		if now.After(e.expires) {
			continue
		}
		if embedding.Cosine(vec, e.vector) >= m.cfg.SemanticThreshold {
			return e.answer, true, nil
		}
	}
	return "", false, nil
}

func (m *Memory) SetSemantic(_ context.Context, query string, vec []float32, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]float32, len(vec))
	copy(stored, vec)
	m.semantic[semanticKey(query)] = semEntry{
		query:   query,
		vector:  stored,
		answer:  answer,
		expires: m.now().Add(m.cfg.SemanticTTL),
	}
	return nil
}

func (m *Memory) History(_ context.Context, userID, sessionID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionKey(userID, sessionID)]
	if !ok || m.now().After(e.expires) {
		return nil, nil
	}
	out := make([]Message, len(e.msgs))
	copy(out, e.msgs)
	return out, nil
}

func (m *Memory) PushMessage(_ context.Context, userID, sessionID string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(userID, sessionID)
	e := m.sessions[key]
	if m.now().After(e.expires) {
		e.msgs = nil
	}
	e.msgs = append(e.msgs, msg)
	e.expires = m.now().Add(m.cfg.SessionTTL)
	m.sessions[key] = e
	return nil
}

func (m *Memory) TrimHistory(_ context.Context, userID, sessionID string, keepLast int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(userID, sessionID)
	e, ok := m.sessions[key]
	if !ok {
		return nil
	}
	if keepLast <= 0 {
		delete(m.sessions, key)
		return nil
	}
	if len(e.msgs) > keepLast {
		e.msgs = append([]Message(nil), e.msgs[len(e.msgs)-keepLast:]...)
		m.sessions[key] = e
	}
	return nil
}

func (m *Memory) ReplaceHistory(_ context.Context, userID, sessionID string, msgs []Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(userID, sessionID)
	now := m.now()

	expires := now.Add(m.cfg.SessionTTL)
	if e, ok := m.sessions[key]; ok && e.expires.After(now) {
		expires = e.expires
	}
	if len(msgs) == 0 {
		delete(m.sessions, key)
		return nil
	}
	stored := make([]Message, len(msgs))
	copy(stored, msgs)
	m.sessions[key] = sessionEntry{msgs: stored, expires: expires}
	return nil
}

func (m *Memory) AcquireLock(_ context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := lockKey(name)
	now := m.now()
	if until, held := m.locks[key]; held && until.After(now) {
		return false, nil
	}
	m.locks[key] = now.Add(ttl)
	return true, nil
}

func (m *Memory) ReleaseLock(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, lockKey(name))
	return nil
}

func (m *Memory) Close() error { return nil }
