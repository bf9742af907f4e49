package cache

import (
	"context"
	"testing"
	"time"
)

func newMem(t *testing.T) *Memory {
	t.Helper()
	return NewMemory(Config{})
}

func TestNormalizeAndHash(t *testing.T) {
	if NormalizeQuery("  什么是载波聚合？  ") != "什么是载波聚合？" {
		t.Error("trim failed")
	}
	if NormalizeQuery("What Is CA") != "what is ca" {
		t.Error("lowercase failed")
	}
	// Full-width forms fold to their ASCII counterparts under NFKC.
	if NormalizeQuery("ＣＡ") != "ca" {
		t.Error("NFKC fold failed")
	}
	if QueryHash(" 什么是CA ") != QueryHash("什么是ca") {
		t.Error("equivalent queries must share a hash")
	}
	if QueryHash("a") == QueryHash("b") {
		t.Error("distinct queries collided")
	}
}

func TestExactCache(t *testing.T) {
	m := newMem(t)
	ctx := context.Background()

	if _, ok, _ := m.GetExact(ctx, "什么是CA"); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	if err := m.SetExact(ctx, "什么是CA", "载波聚合是..."); err != nil {
		t.Fatal(err)
	}

	// Normalization-equivalent queries hit the same entry.
	got, ok, err := m.GetExact(ctx, "  什么是ca ")
	if err != nil || !ok || got != "载波聚合是..." {
		t.Fatalf("got %q, %v, %v", got, ok, err)
	}
}

func TestExactCacheExpiry(t *testing.T) {
	m := newMem(t)
	ctx := context.Background()
	base := time.Now()
	m.now = func() time.Time { return base }

	m.SetExact(ctx, "q", "a")
	m.now = func() time.Time { return base.Add(25 * time.Hour) }
	if _, ok, _ := m.GetExact(ctx, "q"); ok {
		t.Error("entry survived past its TTL")
	}
}

func TestSemanticCacheThreshold(t *testing.T) {
	m := newMem(t)
	ctx := context.Background()

	m.SetSemantic(ctx, "原始问题", []float32{1, 0, 0}, "答案")

	if ans, ok, _ := m.GetSemantic(ctx, []float32{1, 0, 0}); !ok || ans != "答案" {
		t.Errorf("identical vector missed: %q %v", ans, ok)
	}
	if ans, ok, _ := m.GetSemantic(ctx, []float32{0.99, 0.14, 0}); !ok || ans != "答案" {
		t.Errorf("near vector (cos≈0.99) missed: %q %v", ans, ok)
	}
	if _, ok, _ := m.GetSemantic(ctx, []float32{0.5, 0.87, 0}); ok {
		t.Error("cos≈0.5 should not reach the 0.92 threshold")
	}
	// Zero-norm vectors never match anything.
	if _, ok, _ := m.GetSemantic(ctx, []float32{0, 0, 0}); ok {
		t.Error("zero-norm query matched")
	}
}

func TestSessionAppendOrder(t *testing.T) {
	m := newMem(t)
	ctx := context.Background()

	m.PushMessage(ctx, "u1", "s1", Message{Role: "user", Content: "q1"})
	m.PushMessage(ctx, "u1", "s1", Message{Role: "assistant", Content: "a1"})
	m.PushMessage(ctx, "u1", "s1", Message{Role: "user", Content: "q2"})

	msgs, err := m.History(ctx, "u1", "s1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"q1", "a1", "q2"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Content != w {
			t.Errorf("message %d = %q, want %q", i, msgs[i].Content, w)
		}
	}

	// Sessions are isolated.
	if other, _ := m.History(ctx, "u1", "s2"); len(other) != 0 {
		t.Errorf("session s2 leaked messages: %+v", other)
	}
}

func TestSessionSlidingTTL(t *testing.T) {
	m := newMem(t)
	ctx := context.Background()
	base := time.Now()
	m.now = func() time.Time { return base }

	m.PushMessage(ctx, "u1", "s1", Message{Role: "user", Content: "q1"})

	// A push 1.5h later slides the window; the session is still alive
	// at 3h from the start.
	m.now = func() time.Time { return base.Add(90 * time.Minute) }
	m.PushMessage(ctx, "u1", "s1", Message{Role: "assistant", Content: "a1"})
	m.now = func() time.Time { return base.Add(3 * time.Hour) }
	if msgs, _ := m.History(ctx, "u1", "s1"); len(msgs) != 2 {
		t.Errorf("session expired despite sliding TTL: %d messages", len(msgs))
	}

	// Without further appends it expires.
	m.now = func() time.Time { return base.Add(4 * time.Hour) }
	if msgs, _ := m.History(ctx, "u1", "s1"); len(msgs) != 0 {
		t.Errorf("session should have expired, got %d messages", len(msgs))
	}
}

func TestTrimHistory(t *testing.T) {
	m := newMem(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		m.PushMessage(ctx, "u1", "s1", Message{Role: "user", Content: string(rune('a' + i))})
	}
	m.TrimHistory(ctx, "u1", "s1", 4)
	msgs, _ := m.History(ctx, "u1", "s1")
	if len(msgs) != 4 {
		t.Fatalf("got %d messages after trim, want 4", len(msgs))
	}
	if msgs[0].Content != "g" || msgs[3].Content != "j" {
		t.Errorf("trim kept wrong tail: %+v", msgs)
	}
}

func TestReplaceHistoryPreservesTTL(t *testing.T) {
	m := newMem(t)
	ctx := context.Background()
	base := time.Now()
	m.now = func() time.Time { return base }

	m.PushMessage(ctx, "u1", "s1", Message{Role: "user", Content: "old"})

	// Replace at +1h must keep the original expiry (+2h), not extend.
	m.now = func() time.Time { return base.Add(time.Hour) }
	m.ReplaceHistory(ctx, "u1", "s1", []Message{
		{Role: "system", Content: "前情提要: ..."},
		{Role: "user", Content: "new"},
	})

	m.now = func() time.Time { return base.Add(110 * time.Minute) }
	msgs, _ := m.History(ctx, "u1", "s1")
	if len(msgs) != 2 || msgs[0].Role != "system" {
		t.Fatalf("replace lost content: %+v", msgs)
	}

	m.now = func() time.Time { return base.Add(3 * time.Hour) }
	if msgs, _ := m.History(ctx, "u1", "s1"); len(msgs) != 0 {
		t.Error("replace extended the session TTL")
	}
}

func TestDistributedLock(t *testing.T) {
	m := newMem(t)
	ctx := context.Background()

	ok, err := m.AcquireLock(ctx, "chat:abc", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	if ok, _ := m.AcquireLock(ctx, "chat:abc", 10*time.Second); ok {
		t.Error("second acquire succeeded while held")
	}
	if ok, _ := m.AcquireLock(ctx, "chat:other", 10*time.Second); !ok {
		t.Error("independent lock blocked")
	}

	m.ReleaseLock(ctx, "chat:abc")
	if ok, _ := m.AcquireLock(ctx, "chat:abc", 10*time.Second); !ok {
		t.Error("acquire after release failed")
	}
}

func TestLockExpires(t *testing.T) {
	m := newMem(t)
	ctx := context.Background()
	base := time.Now()
	m.now = func() time.Time { return base }

	m.AcquireLock(ctx, "hot", 5*time.Second)
	m.now = func() time.Time { return base.Add(6 * time.Second) }
	if ok, _ := m.AcquireLock(ctx, "hot", 5*time.Second); !ok {
		t.Error("expired lock not reacquirable")
	}
}
