package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yukunliu/ragpipe/bus"
	"github.com/yukunliu/ragpipe/chunker"
	"github.com/yukunliu/ragpipe/embedding"
	"github.com/yukunliu/ragpipe/lexical"
	"github.com/yukunliu/ragpipe/parser"
	"github.com/yukunliu/ragpipe/store"
	"github.com/yukunliu/ragpipe/vector"
)

const sampleDoc = `# 载波聚合技术

载波聚合将多个成员载波合并为更大带宽。

## 配置流程

通过RRC信令添加辅载波，UE上报能力后激活。

## 调度策略

主载波承载控制信令，辅载波承载数据。
`

func newPipeline(t *testing.T, b bus.Bus) (*Pipeline, *store.Store, *lexical.Index, vector.Index) {
	t.Helper()
	lex, err := lexical.New()
	if err != nil {
		t.Fatalf("lexical.New: %v", err)
	}
	t.Cleanup(func() { lex.Close() })

	vec := vector.NewMemory(vector.DefaultCollections(64, 128))
	chunks := store.New()
	p := New(
		parser.NewRegistry(),
		chunker.New(chunker.Config{}),
		embedding.NewHash(64, 128),
		lex, vec, chunks, b,
	)
	p.indexWait = 200 * time.Millisecond
	return p, chunks, lex, vec
}

func TestIngestDirect(t *testing.T) {
	p, chunks, lex, vec := newPipeline(t, nil)

	got, err := p.IngestDirect(context.Background(), "doc1", "载波聚合技术", sampleDoc, "markdown")
	if err != nil {
		t.Fatalf("IngestDirect: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no chunks returned")
	}
	if chunks.Len() != len(got) {
		t.Errorf("store holds %d chunks, returned %d", chunks.Len(), len(got))
	}
	for _, c := range got {
		if len(c.VectorLight) != 64 || len(c.VectorDense) != 128 {
			t.Errorf("chunk %s vectors not attached", c.ChunkID)
		}
		if len(c.LexTokens) == 0 {
			t.Errorf("chunk %s has no lexical tokens", c.ChunkID)
		}
	}

	hits, err := lex.Search(context.Background(), "载波聚合", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Error("indexed document not searchable")
	}
	n, err := vec.Count(context.Background(), vector.CollectionLight)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != len(got) {
		t.Errorf("light collection holds %d vectors, want %d", n, len(got))
	}
}

func TestIngestThroughBus(t *testing.T) {
	b := bus.NewMemory()
	defer b.Close()
	p, chunks, _, _ := newPipeline(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.RunConsumer(ctx, "test-group")

	got, err := p.Ingest(context.Background(), "doc1", "载波聚合技术", sampleDoc, "markdown")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no chunks returned")
	}
	if chunks.Len() != len(got) {
		t.Errorf("store holds %d chunks, want %d", chunks.Len(), len(got))
	}
}

func TestIngestWithoutConsumerFallsBack(t *testing.T) {
	// Published messages that nobody consumes within the wait window
	// are indexed directly.
	b := bus.NewMemory()
	defer b.Close()
	p, chunks, _, _ := newPipeline(t, b)

	got, err := p.Ingest(context.Background(), "doc1", "载波聚合技术", sampleDoc, "markdown")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if chunks.Len() != len(got) || len(got) == 0 {
		t.Errorf("fallback indexing incomplete: returned %d, stored %d", len(got), chunks.Len())
	}
}

func TestIngestIdempotent(t *testing.T) {
	p, chunks, lex, vec := newPipeline(t, nil)
	ctx := context.Background()

	first, err := p.IngestDirect(ctx, "doc1", "载波聚合技术", sampleDoc, "markdown")
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := p.IngestDirect(ctx, "doc1", "载波聚合技术", sampleDoc, "markdown")
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if len(first) != len(second) {
		t.Errorf("chunk count changed on re-ingest: %d then %d", len(first), len(second))
	}
	if chunks.Len() != len(first) {
		t.Errorf("store holds %d chunks after re-ingest, want %d", chunks.Len(), len(first))
	}
	n, _ := lex.Count()
	if int(n) != len(first) {
		t.Errorf("lexical index holds %d docs after re-ingest, want %d", n, len(first))
	}
	nv, _ := vec.Count(ctx, vector.CollectionDense)
	if nv != len(first) {
		t.Errorf("dense collection holds %d vectors after re-ingest, want %d", nv, len(first))
	}
}

func TestIngestHTMLDocument(t *testing.T) {
	p, _, lex, _ := newPipeline(t, nil)
	html := `<h1>随机接入</h1><p>PRACH承载前导码。</p><h2>流程</h2><p>四步随机接入。</p>`

	got, err := p.IngestDirect(context.Background(), "doc2", "随机接入", html, "html")
	if err != nil {
		t.Fatalf("IngestDirect html: %v", err)
	}
	var foundHeading bool
	for _, c := range got {
		if strings.Contains(c.Meta.HeadingPath, "随机接入") {
			foundHeading = true
		}
	}
	if !foundHeading {
		t.Error("html headings not reflected in chunk paths")
	}
	hits, err := lex.Search(context.Background(), "前导码", 5)
	if err != nil || len(hits) == 0 {
		t.Errorf("html content not searchable: %v", err)
	}
}

func TestIngestUnknownFileType(t *testing.T) {
	p, _, _, _ := newPipeline(t, nil)
	if _, err := p.IngestDirect(context.Background(), "d", "n", "x", "docx"); err == nil {
		t.Fatal("expected error for unsupported file type")
	}
}

func TestDeleteDocument(t *testing.T) {
	p, chunks, lex, vec := newPipeline(t, nil)
	ctx := context.Background()

	got, err := p.IngestDirect(ctx, "doc1", "载波聚合技术", sampleDoc, "markdown")
	if err != nil {
		t.Fatalf("IngestDirect: %v", err)
	}

	n, err := p.DeleteDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if n != len(got) {
		t.Errorf("deleted %d chunks, want %d", n, len(got))
	}
	if chunks.Len() != 0 {
		t.Errorf("store still holds %d chunks", chunks.Len())
	}
	hits, _ := lex.Search(ctx, "载波聚合", 10)
	if len(hits) != 0 {
		t.Errorf("deleted document still searchable: %d hits", len(hits))
	}
	nv, _ := vec.Count(ctx, vector.CollectionLight)
	if nv != 0 {
		t.Errorf("light collection still holds %d vectors", nv)
	}
}

// flakyIndex fails the first failures Upsert calls, then delegates.
type flakyIndex struct {
	vector.Index
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyIndex) Upsert(ctx context.Context, collection, chunkID string, vec []float32) error {
	f.mu.Lock()
	f.calls++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("vector backend unavailable")
	}
	return f.Index.Upsert(ctx, collection, chunkID, vec)
}

func (f *flakyIndex) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestConsumerRetriesTransientIndexFailure(t *testing.T) {
	b := bus.NewMemory()
	defer b.Close()
	p, chunks, _, vec := newPipeline(t, b)
	flaky := &flakyIndex{Index: vec, failures: 2}
	p.vec = flaky
	p.retryDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.RunConsumer(ctx, "g1")

	payload, err := json.Marshal(envelope{
		MessageID: "m1",
		Chunk: store.Chunk{
			ChunkID: "doc1#0",
			Text:    "载波聚合将多个成员载波合并为更大带宽。",
			Meta:    store.Metadata{DocID: "doc1", DocName: "载波聚合技术"},
		},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := b.Publish(ctx, bus.TopicIngest, "doc1", payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for chunks.Len() == 0 {
		select {
		case <-deadline:
			t.Fatalf("chunk not indexed after retries (%d upsert calls)", flaky.callCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Two failing attempts, then one that upserts both collections.
	if n := flaky.callCount(); n < 4 {
		t.Errorf("upsert calls = %d, want >= 4 (two retried attempts)", n)
	}
}

func TestDeleteUnknownDocument(t *testing.T) {
	p, _, _, _ := newPipeline(t, nil)
	n, err := p.DeleteDocument(context.Background(), "nope")
	if err != nil || n != 0 {
		t.Errorf("DeleteDocument(unknown) = (%d, %v), want (0, nil)", n, err)
	}
}
