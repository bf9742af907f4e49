// Package ragpipe is a retrieval-augmented question answering engine
// for technical document corpora: hierarchical Markdown chunking,
// three-level hybrid retrieval (BM25 + dual-resolution vectors fused
// by RSF, cross-scored and cliff-cut), a multi-tier answer cache with
// per-session history, bus-driven ingestion and background history
// compression.
package ragpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/yukunliu/ragpipe/bus"
	"github.com/yukunliu/ragpipe/cache"
	"github.com/yukunliu/ragpipe/chunker"
	"github.com/yukunliu/ragpipe/embedding"
	"github.com/yukunliu/ragpipe/generation"
	"github.com/yukunliu/ragpipe/ingest"
	"github.com/yukunliu/ragpipe/lexical"
	"github.com/yukunliu/ragpipe/llm"
	"github.com/yukunliu/ragpipe/parser"
	"github.com/yukunliu/ragpipe/retrieval"
	"github.com/yukunliu/ragpipe/store"
	"github.com/yukunliu/ragpipe/summarize"
	"github.com/yukunliu/ragpipe/vector"
)

// Answer sources reported in ChatResponse.
const (
	SourceExactCache    = "exact_cache"
	SourceSemanticCache = "semantic_cache"
	SourceRAG           = "rag"
)

// ChatRequest is one conversational question.
type ChatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	// TopK bounds the citation count; 0 uses the configured default.
	TopK int `json:"top_k,omitempty"`
}

// Citation is one retrieved chunk backing an answer.
type Citation struct {
	ChunkID     string  `json:"chunk_id"`
	DocID       string  `json:"doc_id"`
	DocName     string  `json:"doc_name"`
	HeadingPath string  `json:"heading_path"`
	Score       float64 `json:"score"`
}

// ChatResponse is the answer plus its provenance.
type ChatResponse struct {
	Answer           string     `json:"answer"`
	Citations        []Citation `json:"citations"`
	RewrittenQueries []string   `json:"rewritten_queries"`
	Source           string     `json:"source"`
}

// Health reports engine liveness.
type Health struct {
	Status        string `json:"status"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

// Engine is the main entry point.
type Engine interface {
	// Chat answers a question, consulting the cache tiers before the
	// retrieval pipeline.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream answers like Chat but pushes answer tokens through
	// fn as they are produced. The returned response carries the full
	// answer; cache writes happen only after the stream completes.
	ChatStream(ctx context.Context, req ChatRequest, fn func(token string) error) (*ChatResponse, error)

	// Ingest runs a document through the ingestion pipeline, using
	// the bus when available and the direct path otherwise. Returns
	// the number of chunks indexed.
	Ingest(ctx context.Context, docID, docName, content, fileType string) (int, error)

	// DeleteDocument removes a document's chunks from the store and
	// every index. Returns the number of chunks removed.
	DeleteDocument(ctx context.Context, docID string) (int, error)

	// Health reports liveness and index size.
	Health(ctx context.Context) Health

	// Close stops background workers and releases backends.
	Close() error
}

type engine struct {
	cfg       Config
	cache     cache.Cache
	bus       bus.Bus
	lex       *lexical.Index
	vec       vector.Index
	chunks    *store.Store
	embedder  embedding.Embedder
	pipeline  *ingest.Pipeline
	retriever *retrieval.Retriever
	rewriter  *generation.Rewriter
	generator generation.Generator
	worker    *summarize.Worker

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New composes an engine from the configuration. Backend connections
// are non-blocking: an unreachable backend logs a warning and the
// engine starts with that capability degraded — the cache passes
// through, the bus falls back to direct ingestion, a missing index
// side returns no hits.
func New(ctx context.Context, cfg Config) (Engine, error) {
	if cfg.DimLight <= 0 || cfg.DimDense <= 0 {
		d := DefaultConfig()
		if cfg.DimLight <= 0 {
			cfg.DimLight = d.DimLight
		}
		if cfg.DimDense <= 0 {
			cfg.DimDense = d.DimDense
		}
	}

	e := &engine{cfg: cfg}
	e.chunks = store.New()
	e.embedder = embedding.NewHash(cfg.DimLight, cfg.DimDense)

	cacheCfg := cache.Config{
		ExactTTL:          cfg.ExactTTL,
		SemanticTTL:       cfg.SemanticTTL,
		SessionTTL:        cfg.SessionTTL,
		SemanticThreshold: cfg.SemanticThreshold,
	}
	if cfg.RedisAddr != "" {
		c, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cacheCfg)
		if err != nil {
			slog.Warn("engine: redis unavailable, cache degraded to pass-through",
				"addr", cfg.RedisAddr, "error", err)
			e.cache = passthroughCache{}
		} else {
			e.cache = c
		}
	} else {
		e.cache = cache.NewMemory(cacheCfg)
	}

	if len(cfg.KafkaBrokers) > 0 {
		e.bus = bus.NewKafka(cfg.KafkaBrokers)
	} else {
		e.bus = bus.NewMemory()
	}

	collections := vector.DefaultCollections(cfg.DimLight, cfg.DimDense)
	switch cfg.VectorBackend {
	case "qdrant":
		v, err := vector.NewQdrant(ctx, vector.QdrantConfig{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
		}, collections)
		if err != nil {
			slog.Warn("engine: qdrant unavailable, vector index degraded to in-memory", "error", err)
			e.vec = vector.NewMemory(collections)
		} else {
			e.vec = v
		}
	case "sqlite":
		v, err := vector.NewSQLiteVec(cfg.SQLiteVecPath, collections)
		if err != nil {
			slog.Warn("engine: sqlite-vec unavailable, vector index degraded to in-memory", "error", err)
			e.vec = vector.NewMemory(collections)
		} else {
			e.vec = v
		}
	default:
		e.vec = vector.NewMemory(collections)
	}

	lex, err := lexical.New()
	if err != nil {
		slog.Warn("engine: lexical index unavailable, recall degraded to vector-only", "error", err)
		lex = nil
	}
	e.lex = lex

	e.pipeline = ingest.New(parser.NewRegistry(), chunker.New(chunker.Config{}),
		e.embedder, e.lex, e.vec, e.chunks, e.bus)

	var lexSide retrieval.LexSearcher
	if e.lex != nil {
		lexSide = e.lex
	}
	e.retriever = retrieval.New(lexSide, e.vec, e.embedder, e.chunks, retrieval.Config{
		L1TopK:        cfg.L1TopK,
		L2TopK:        cfg.L2TopK,
		DiffThreshold: cfg.DiffThreshold,
	})

	trimmer := generation.NewBudgetTrimmer(cfg.TokenBudget)

	var chatLLM llm.Provider
	if cfg.Generator == "llm" {
		chatLLM, err = llm.NewProvider(llm.Config{
			Provider: cfg.Chat.Provider,
			Model:    cfg.Chat.Model,
			BaseURL:  cfg.Chat.BaseURL,
			APIKey:   cfg.Chat.APIKey,
		})
		if err != nil {
			slog.Warn("engine: chat provider unavailable, generator degraded to mock", "error", err)
			chatLLM = nil
		}
	}
	if chatLLM != nil {
		e.generator = generation.NewLLM(chatLLM, cfg.Chat.Model, trimmer)
	} else {
		e.generator = generation.NewMock(trimmer)
	}

	var rewriteLLM llm.Provider
	if rc := cfg.rewriteLLM(); rc.Provider != "" {
		rewriteLLM, err = llm.NewProvider(llm.Config{
			Provider: rc.Provider,
			Model:    rc.Model,
			BaseURL:  rc.BaseURL,
			APIKey:   rc.APIKey,
		})
		if err != nil {
			slog.Warn("engine: rewrite provider unavailable, using rule-based rewriting", "error", err)
			rewriteLLM = nil
		}
	}
	e.rewriter = generation.NewRewriter(rewriteLLM, cfg.rewriteLLM().Model)

	e.worker = summarize.NewWorker(summarize.Config{BudgetThreshold: cfg.TokenBudget},
		e.cache, rewriteLLM, cfg.rewriteLLM().Model)

	workerCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		if err := e.pipeline.RunConsumer(workerCtx, "ragpipe-ingest"); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("engine: ingest consumer stopped", "error", err)
		}
	}()
	go func() {
		defer e.wg.Done()
		if err := e.worker.Run(workerCtx, e.bus, "ragpipe-summarize"); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("engine: summarize worker stopped", "error", err)
		}
	}()

	slog.Info("engine: ready",
		"vector_backend", cfg.VectorBackend,
		"generator", cfg.Generator,
		"redis", cfg.RedisAddr != "",
		"kafka", len(cfg.KafkaBrokers) > 0,
	)
	return e, nil
}

func (e *engine) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return e.chat(ctx, req, nil)
}

func (e *engine) ChatStream(ctx context.Context, req ChatRequest, fn func(string) error) (*ChatResponse, error) {
	if fn == nil {
		fn = func(string) error { return nil }
	}
	return e.chat(ctx, req, fn)
}

// chat is the shared orchestration. Every optional step (cache reads
// and writes, session reads and appends, the summarize enqueue) fails
// open with a warning; only validation and total retrieval failure
// surface errors.
func (e *engine) chat(ctx context.Context, req ChatRequest, fn func(string) error) (*ChatResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	topK := req.TopK
	if topK == 0 {
		topK = e.cfg.TopK
	}

	// Tier 1: exact match.
	if answer, ok := e.readExact(ctx, req.Query); ok {
		if err := e.emit(fn, answer); err != nil {
			return nil, err
		}
		return &ChatResponse{Answer: answer, Source: SourceExactCache}, nil
	}

	// Tier 2: semantic match on the light query vector. The dense
	// vector stays reserved for retrieval.
	queryVec := e.embedder.EmbedLight(req.Query)
	if answer, ok := e.readSemantic(ctx, queryVec); ok {
		if err := e.emit(fn, answer); err != nil {
			return nil, err
		}
		return &ChatResponse{Answer: answer, Source: SourceSemanticCache}, nil
	}

	// Serialize miss work on hot queries. On contention, wait briefly
	// and re-check the exact tier before doing the work anyway.
	lockName := "chat:" + cache.QueryHash(req.Query)
	if acquired, err := e.cache.AcquireLock(ctx, lockName, 10*time.Second); err == nil && acquired {
		defer e.cache.ReleaseLock(context.WithoutCancel(ctx), lockName)
	} else if err == nil {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if answer, ok := e.readExact(ctx, req.Query); ok {
			if err := e.emit(fn, answer); err != nil {
				return nil, err
			}
			return &ChatResponse{Answer: answer, Source: SourceExactCache}, nil
		}
	}

	history, err := e.cache.History(ctx, req.UserID, req.SessionID)
	if err != nil {
		slog.Warn("chat: session read failed", "session_id", req.SessionID, "error", err)
		history = nil
	}

	rewrites := e.rewriter.Rewrite(ctx, req.Query, history)

	chunks, err := e.retriever.Retrieve(ctx, req.Query, rewrites, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	var answer strings.Builder
	collect := func(token string) error {
		answer.WriteString(token)
		if fn != nil {
			return fn(token)
		}
		return nil
	}
	if err := e.generator.GenerateStream(ctx, req.Query, chunks, history, collect); err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	resp := &ChatResponse{
		Answer:           answer.String(),
		Citations:        citations(chunks),
		RewrittenQueries: rewrites,
		Source:           SourceRAG,
	}
	e.writeBack(ctx, req, queryVec, resp.Answer)
	return resp, nil
}

// writeBack persists the finished answer: both cache tiers, the
// session history, and the summarize enqueue. Runs only after the
// stream has completed; each step fails open.
func (e *engine) writeBack(ctx context.Context, req ChatRequest, queryVec []float32, answer string) {
	ctx = context.WithoutCancel(ctx)
	if err := e.cache.SetExact(ctx, req.Query, answer); err != nil {
		slog.Warn("chat: exact cache write failed", "error", err)
	}
	if err := e.cache.SetSemantic(ctx, req.Query, queryVec, answer); err != nil {
		slog.Warn("chat: semantic cache write failed", "error", err)
	}
	if err := e.cache.PushMessage(ctx, req.UserID, req.SessionID, cache.Message{Role: "user", Content: req.Query}); err != nil {
		slog.Warn("chat: session append failed", "error", err)
	}
	if err := e.cache.PushMessage(ctx, req.UserID, req.SessionID, cache.Message{Role: "assistant", Content: answer}); err != nil {
		slog.Warn("chat: session append failed", "error", err)
	}
	if err := summarize.Enqueue(ctx, e.bus, req.UserID, req.SessionID); err != nil {
		slog.Warn("chat: summarize enqueue failed", "error", err)
	}
}

func (e *engine) readExact(ctx context.Context, query string) (string, bool) {
	answer, ok, err := e.cache.GetExact(ctx, query)
	if err != nil {
		slog.Warn("chat: exact cache read failed", "error", err)
		return "", false
	}
	return answer, ok
}

func (e *engine) readSemantic(ctx context.Context, vec []float32) (string, bool) {
	answer, ok, err := e.cache.GetSemantic(ctx, vec)
	if err != nil {
		slog.Warn("chat: semantic cache read failed", "error", err)
		return "", false
	}
	return answer, ok
}

func (e *engine) emit(fn func(string) error, answer string) error {
	if fn == nil {
		return nil
	}
	return fn(answer)
}

func (e *engine) Ingest(ctx context.Context, docID, docName, content, fileType string) (int, error) {
	if e.isClosed() {
		return 0, ErrEngineClosed
	}
	chunks, err := e.pipeline.Ingest(ctx, docID, docName, content, fileType)
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (e *engine) DeleteDocument(ctx context.Context, docID string) (int, error) {
	if e.isClosed() {
		return 0, ErrEngineClosed
	}
	return e.pipeline.DeleteDocument(ctx, docID)
}

func (e *engine) Health(_ context.Context) Health {
	return Health{Status: "ok", ChunksIndexed: e.chunks.Len()}
}

func (e *engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()

	var errs []error
	if err := e.bus.Close(); err != nil && !errors.Is(err, bus.ErrClosed) {
		errs = append(errs, err)
	}
	if err := e.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.lex != nil {
		if err := e.lex.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.vec.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

const (
	maxIDLen    = 64
	maxQueryLen = 2000
)

func validateRequest(req ChatRequest) error {
	if req.UserID == "" || len(req.UserID) > maxIDLen {
		return ErrInvalidUserID
	}
	if req.SessionID == "" || len(req.SessionID) > maxIDLen {
		return ErrInvalidSessionID
	}
	if q := strings.TrimSpace(req.Query); q == "" || len([]rune(req.Query)) > maxQueryLen {
		return ErrInvalidQuery
	}
	if req.TopK < 0 || req.TopK > 50 {
		return ErrInvalidTopK
	}
	return nil
}

func citations(chunks []store.RetrievedChunk) []Citation {
	out := make([]Citation, len(chunks))
	for i, rc := range chunks {
		out[i] = Citation{
			ChunkID:     rc.Chunk.ChunkID,
			DocID:       rc.Chunk.Meta.DocID,
			DocName:     rc.Chunk.Meta.DocName,
			HeadingPath: rc.Chunk.Meta.HeadingPath,
			Score:       rc.Score,
		}
	}
	return out
}
