package summarize

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/yukunliu/ragpipe/bus"
	"github.com/yukunliu/ragpipe/cache"
	"github.com/yukunliu/ragpipe/llm"
)

func newCache(t *testing.T) cache.Cache {
	t.Helper()
	return cache.NewMemory(cache.Config{})
}

func seedHistory(t *testing.T, c cache.Cache, user, session string, msgs []cache.Message) {
	t.Helper()
	for _, m := range msgs {
		if err := c.PushMessage(context.Background(), user, session, m); err != nil {
			t.Fatalf("PushMessage: %v", err)
		}
	}
}

func TestProcessUnderBudgetIsNoOp(t *testing.T) {
	c := newCache(t)
	msgs := []cache.Message{
		{Role: "user", Content: "CA是什么"},
		{Role: "assistant", Content: "载波聚合。"},
	}
	seedHistory(t, c, "u1", "s1", msgs)

	w := NewWorker(Config{BudgetThreshold: 4000}, c, nil, "")
	if err := w.Process(context.Background(), Job{UserID: "u1", SessionID: "s1"}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, err := c.History(context.Background(), "u1", "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != len(msgs) {
		t.Errorf("history changed under budget: %d messages, want %d", len(got), len(msgs))
	}
}

func TestProcessCompressesOverBudget(t *testing.T) {
	c := newCache(t)
	long := strings.Repeat("技术细节", 200)
	var msgs []cache.Message
	for i := 0; i < 10; i++ {
		msgs = append(msgs,
			cache.Message{Role: "user", Content: fmt.Sprintf("第%d个问题：%s", i, long)},
			cache.Message{Role: "assistant", Content: long},
		)
	}
	seedHistory(t, c, "u1", "s1", msgs)

	w := NewWorker(Config{BudgetThreshold: 100}, c, nil, "")
	if err := w.Process(context.Background(), Job{UserID: "u1", SessionID: "s1"}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, err := c.History(context.Background(), "u1", "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("compressed history = %d messages, want summary + last 4", len(got))
	}
	if got[0].Role != "system" || !strings.HasPrefix(got[0].Content, "前情提要: ") {
		t.Errorf("first message = %+v, want 前情提要 system message", got[0])
	}
	// Last 4 original messages survive verbatim.
	for i := 0; i < 4; i++ {
		want := msgs[len(msgs)-4+i]
		if got[i+1] != want {
			t.Errorf("kept[%d] = %+v, want %+v", i, got[i+1], want)
		}
	}
}

func TestExtractiveSummaryListsUserTopics(t *testing.T) {
	var msgs []cache.Message
	for i := 0; i < 12; i++ {
		msgs = append(msgs,
			cache.Message{Role: "user", Content: fmt.Sprintf("主题%d", i)},
			cache.Message{Role: "assistant", Content: "答案"},
		)
	}
	s := extractiveSummary(msgs)
	if !strings.HasPrefix(s, "用户先后探讨了以下技术主题：") {
		t.Errorf("summary prefix wrong: %q", s)
	}
	if !strings.Contains(s, "主题0") || !strings.Contains(s, "主题7") {
		t.Errorf("first eight topics missing: %q", s)
	}
	if strings.Contains(s, "主题8") {
		t.Errorf("topic past cap listed: %q", s)
	}
	if !strings.Contains(s, "等共 12 个问题") {
		t.Errorf("overflow tail missing: %q", s)
	}
}

func TestExtractiveSummaryTruncatesLongTurns(t *testing.T) {
	long := strings.Repeat("长", 80)
	s := extractiveSummary([]cache.Message{{Role: "user", Content: long}})
	if strings.Contains(s, strings.Repeat("长", 51)) {
		t.Errorf("topic not truncated to 50 runes: %q", s)
	}
}

// chatProvider answers Chat with a fixed string.
type chatProvider struct {
	content string
	err     error
	calls   int
}

func (p *chatProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{Content: p.content}, nil
}

func (p *chatProvider) ChatStream(ctx context.Context, req llm.ChatRequest, fn func(string) error) error {
	return fn(p.content)
}

func TestProcessUsesModelSummary(t *testing.T) {
	c := newCache(t)
	long := strings.Repeat("内容", 500)
	seedHistory(t, c, "u1", "s1", []cache.Message{
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
	})

	p := &chatProvider{content: "讨论了载波聚合的配置要点"}
	w := NewWorker(Config{BudgetThreshold: 100}, c, p, "test-model")
	if err := w.Process(context.Background(), Job{UserID: "u1", SessionID: "s1"}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _ := c.History(context.Background(), "u1", "s1")
	if got[0].Content != "前情提要: 讨论了载波聚合的配置要点" {
		t.Errorf("model summary not used: %q", got[0].Content)
	}
}

func TestProcessModelFailureFallsBack(t *testing.T) {
	c := newCache(t)
	long := strings.Repeat("内容", 500)
	seedHistory(t, c, "u1", "s1", []cache.Message{
		{Role: "user", Content: "波束赋形" + long},
		{Role: "assistant", Content: long},
	})

	p := &chatProvider{err: fmt.Errorf("provider down")}
	w := NewWorker(Config{BudgetThreshold: 100}, c, p, "test-model")
	if err := w.Process(context.Background(), Job{UserID: "u1", SessionID: "s1"}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _ := c.History(context.Background(), "u1", "s1")
	if !strings.Contains(got[0].Content, "用户先后探讨了以下技术主题") {
		t.Errorf("extractive fallback not used: %q", got[0].Content)
	}
}

func TestWorkerConsumesJobs(t *testing.T) {
	c := newCache(t)
	long := strings.Repeat("内容", 500)
	seedHistory(t, c, "u1", "s1", []cache.Message{
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
	})

	b := bus.NewMemory()
	defer b.Close()
	if err := Enqueue(context.Background(), b, "u1", "s1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	w := NewWorker(Config{BudgetThreshold: 100}, c, nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, b, "test-group")
	}()

	deadline := time.After(2 * time.Second)
	for {
		got, err := c.History(context.Background(), "u1", "s1")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(got) == 5 && got[0].Role == "system" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("history never compressed, %d messages", len(got))
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestWorkerDropsMalformedJob(t *testing.T) {
	b := bus.NewMemory()
	defer b.Close()
	if err := b.Publish(context.Background(), bus.TopicSummarize, "k", []byte("not json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	w := NewWorker(Config{}, newCache(t), nil, "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// A malformed job must be acked, not redelivered forever; Run
	// returns when the context expires.
	if err := w.Run(ctx, b, "g"); err != context.DeadlineExceeded {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
}
