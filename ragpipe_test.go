package ragpipe

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yukunliu/ragpipe/data"
)

// newEngine builds an engine on fully in-process backends with recall
// depths sized for the sample corpus.
func newEngine(t *testing.T) Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DimLight = 64
	cfg.DimDense = 128
	cfg.L1TopK = 100
	cfg.L2TopK = 40
	e, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func ingestSample(t *testing.T, e Engine, docID string) int {
	t.Helper()
	doc := data.ByID(docID)
	if doc == nil {
		t.Fatalf("unknown sample document %s", docID)
	}
	n, err := e.Ingest(context.Background(), doc.DocID, doc.DocName, doc.Content, "markdown")
	if err != nil {
		t.Fatalf("Ingest(%s): %v", docID, err)
	}
	if n == 0 {
		t.Fatalf("Ingest(%s) indexed no chunks", docID)
	}
	return n
}

func TestChatAnswersFromIngestedDocument(t *testing.T) {
	e := newEngine(t)
	ingestSample(t, e, "doc_001")

	resp, err := e.Chat(context.Background(), ChatRequest{
		UserID:    "u1",
		SessionID: "s1",
		Query:     "5G随机接入的四步流程是什么？",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Source != SourceRAG {
		t.Errorf("source = %q, want %q", resp.Source, SourceRAG)
	}
	if len(resp.Citations) == 0 {
		t.Fatal("no citations returned")
	}
	var cited bool
	for _, c := range resp.Citations {
		if c.DocID == "doc_001" {
			cited = true
		}
	}
	if !cited {
		t.Errorf("doc_001 not cited: %+v", resp.Citations)
	}
	if !strings.Contains(resp.Citations[0].HeadingPath+resp.Citations[0].DocName, "随机接入") {
		t.Errorf("top citation unrelated: %+v", resp.Citations[0])
	}
	if resp.Answer == "" {
		t.Error("empty answer")
	}
}

func TestChatRewritesAbbreviations(t *testing.T) {
	e := newEngine(t)
	ingestSample(t, e, "doc_002")

	resp, err := e.Chat(context.Background(), ChatRequest{
		UserID:    "u1",
		SessionID: "s1",
		Query:     "CA是什么",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	var expanded bool
	for _, q := range resp.RewrittenQueries {
		if strings.Contains(q, "载波聚合") {
			expanded = true
		}
	}
	if !expanded {
		t.Errorf("rewrites missing expansion: %v", resp.RewrittenQueries)
	}
	if len(resp.Citations) == 0 || resp.Citations[0].DocID != "doc_002" {
		t.Errorf("top citation = %+v, want doc_002", resp.Citations)
	}
}

func TestChatFindsParameterValue(t *testing.T) {
	e := newEngine(t)
	ingestSample(t, e, "doc_005")

	resp, err := e.Chat(context.Background(), ChatRequest{
		UserID:    "u1",
		SessionID: "s1",
		Query:     "gNodeB AAU5613 的最大功率是多少",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.Citations) == 0 || resp.Citations[0].DocID != "doc_005" {
		t.Errorf("top citation = %+v, want doc_005", resp.Citations)
	}
	if !strings.Contains(resp.Answer, "200W") {
		t.Errorf("answer missing parameter value: %q", resp.Answer)
	}
}

func TestChatSecondCallHitsExactCache(t *testing.T) {
	e := newEngine(t)
	ingestSample(t, e, "doc_002")

	req := ChatRequest{UserID: "u1", SessionID: "s1", Query: "载波聚合的定义"}
	first, err := e.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("first Chat: %v", err)
	}
	second, err := e.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("second Chat: %v", err)
	}
	if second.Source != SourceExactCache {
		t.Errorf("second source = %q, want %q", second.Source, SourceExactCache)
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer differs from original")
	}
}

func TestChatCaseInsensitiveCacheKey(t *testing.T) {
	e := newEngine(t)
	ingestSample(t, e, "doc_002")

	if _, err := e.Chat(context.Background(), ChatRequest{
		UserID: "u1", SessionID: "s1", Query: "什么是CA技术",
	}); err != nil {
		t.Fatalf("first Chat: %v", err)
	}
	resp, err := e.Chat(context.Background(), ChatRequest{
		UserID: "u1", SessionID: "s1", Query: "  什么是ca技术  ",
	})
	if err != nil {
		t.Fatalf("second Chat: %v", err)
	}
	if resp.Source != SourceExactCache {
		t.Errorf("equivalent query source = %q, want %q", resp.Source, SourceExactCache)
	}
}

func TestChatStreamTokensAssembleAnswer(t *testing.T) {
	e := newEngine(t)
	ingestSample(t, e, "doc_001")

	var streamed strings.Builder
	resp, err := e.ChatStream(context.Background(), ChatRequest{
		UserID:    "u1",
		SessionID: "s1",
		Query:     "随机接入前导码有几种格式",
	}, func(token string) error {
		streamed.WriteString(token)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if streamed.String() != resp.Answer {
		t.Errorf("streamed text differs from response answer")
	}
}

func TestChatValidation(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name string
		req  ChatRequest
		want error
	}{
		{"empty user", ChatRequest{SessionID: "s", Query: "q"}, ErrInvalidUserID},
		{"long user", ChatRequest{UserID: strings.Repeat("u", 65), SessionID: "s", Query: "q"}, ErrInvalidUserID},
		{"empty session", ChatRequest{UserID: "u", Query: "q"}, ErrInvalidSessionID},
		{"empty query", ChatRequest{UserID: "u", SessionID: "s", Query: ""}, ErrInvalidQuery},
		{"blank query", ChatRequest{UserID: "u", SessionID: "s", Query: "   "}, ErrInvalidQuery},
		{"long query", ChatRequest{UserID: "u", SessionID: "s", Query: strings.Repeat("长", 2001)}, ErrInvalidQuery},
		{"topk too large", ChatRequest{UserID: "u", SessionID: "s", Query: "q", TopK: 51}, ErrInvalidTopK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Chat(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Chat error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestChatRefusesWithoutKnowledge(t *testing.T) {
	e := newEngine(t)
	ingestSample(t, e, "doc_001")

	resp, err := e.Chat(context.Background(), ChatRequest{
		UserID:    "u1",
		SessionID: "s1",
		Query:     "今天的股市行情如何",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	// Either the retriever returned nothing (refusal) or whatever it
	// did return is cited; no fabricated citation-free prose.
	if len(resp.Citations) == 0 && !strings.Contains(resp.Answer, "暂时无法回答") {
		t.Errorf("citation-free answer without refusal: %q", resp.Answer)
	}
}

func TestChatWritesSessionHistory(t *testing.T) {
	e := newEngine(t)
	ingestSample(t, e, "doc_002")

	if _, err := e.Chat(context.Background(), ChatRequest{
		UserID: "u7", SessionID: "s7", Query: "载波聚合有什么优势",
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	eng := e.(*engine)
	history, err := eng.cache.History(context.Background(), "u7", "s7")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("history = %+v, want user+assistant turn", history)
	}
	if history[0].Content != "载波聚合有什么优势" {
		t.Errorf("user turn content = %q", history[0].Content)
	}
}

func TestChatStoresSemanticEntryUnderLightVector(t *testing.T) {
	e := newEngine(t)
	ingestSample(t, e, "doc_002")

	const query = "载波聚合的优势是什么"
	resp, err := e.Chat(context.Background(), ChatRequest{
		UserID: "u8", SessionID: "s8", Query: query,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	// The semantic tier is keyed by the light vector; the dense
	// vector stays reserved for retrieval.
	eng := e.(*engine)
	answer, ok, err := eng.cache.GetSemantic(context.Background(), eng.embedder.EmbedLight(query))
	if err != nil {
		t.Fatalf("GetSemantic: %v", err)
	}
	if !ok {
		t.Fatal("no semantic entry under the light vector of the answered query")
	}
	if answer != resp.Answer {
		t.Errorf("semantic answer = %q, want %q", answer, resp.Answer)
	}
}

func TestDeleteDocumentRemovesCitations(t *testing.T) {
	e := newEngine(t)
	n := ingestSample(t, e, "doc_001")

	removed, err := e.DeleteDocument(context.Background(), "doc_001")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if removed != n {
		t.Errorf("removed %d chunks, want %d", removed, n)
	}
	if h := e.Health(context.Background()); h.ChunksIndexed != 0 {
		t.Errorf("chunks_indexed = %d after delete", h.ChunksIndexed)
	}
}

func TestHealth(t *testing.T) {
	e := newEngine(t)
	h := e.Health(context.Background())
	if h.Status != "ok" || h.ChunksIndexed != 0 {
		t.Errorf("Health = %+v", h)
	}
	ingestSample(t, e, "doc_003")
	if h := e.Health(context.Background()); h.ChunksIndexed == 0 {
		t.Error("chunks_indexed still 0 after ingest")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DimLight = 64
	cfg.DimDense = 128
	e, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := e.Chat(context.Background(), ChatRequest{
		UserID: "u", SessionID: "s", Query: "q",
	}); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Chat after Close = %v, want ErrEngineClosed", err)
	}
}

func TestIngestAllSamples(t *testing.T) {
	e := newEngine(t)
	total := 0
	for _, doc := range data.Documents {
		n, err := e.Ingest(context.Background(), doc.DocID, doc.DocName, doc.Content, "markdown")
		if err != nil {
			t.Fatalf("Ingest(%s): %v", doc.DocID, err)
		}
		total += n
	}
	if h := e.Health(context.Background()); h.ChunksIndexed != total {
		t.Errorf("chunks_indexed = %d, want %d", h.ChunksIndexed, total)
	}

	// Cross-document query still lands on the right corpus slice.
	resp, err := e.Chat(context.Background(), ChatRequest{
		UserID: "u1", SessionID: "s1", Query: "波束赋形的原理是什么",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.Citations) == 0 {
		t.Error("no citations over full corpus")
	}
}
