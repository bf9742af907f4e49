// Package ingest is the document ingestion pipeline: parse to
// Markdown, clean, split hierarchically, fan out over the message bus,
// then embed and index each chunk into the lexical index, both vector
// collections and the chunk store. The consumer is idempotent, so
// at-least-once delivery never produces duplicates.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yukunliu/ragpipe/bus"
	"github.com/yukunliu/ragpipe/chunker"
	"github.com/yukunliu/ragpipe/embedding"
	"github.com/yukunliu/ragpipe/lexical"
	"github.com/yukunliu/ragpipe/parser"
	"github.com/yukunliu/ragpipe/store"
	"github.com/yukunliu/ragpipe/textutil"
	"github.com/yukunliu/ragpipe/vector"
)

// envelope is the bus payload carrying one chunk to the indexer.
type envelope struct {
	MessageID string      `json:"message_id"`
	Chunk     store.Chunk `json:"chunk"`
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	registry *parser.Registry
	splitter *chunker.Splitter
	embedder embedding.Embedder
	lex      *lexical.Index
	vec      vector.Index
	chunks   *store.Store
	bus      bus.Bus // nil forces the direct path

	// indexWait bounds how long Ingest waits for the consumer to
	// index published chunks before falling back to direct indexing.
	indexWait time.Duration

	// Consumer-side retry policy for failing index calls.
	maxRetries int
	retryDelay time.Duration
}

// New wires a pipeline; b may be nil when no bus is available.
func New(registry *parser.Registry, splitter *chunker.Splitter, embedder embedding.Embedder,
	lex *lexical.Index, vec vector.Index, chunks *store.Store, b bus.Bus) *Pipeline {
	return &Pipeline{
		registry:   registry,
		splitter:   splitter,
		embedder:   embedder,
		lex:        lex,
		vec:        vec,
		chunks:     chunks,
		bus:        b,
		indexWait:  5 * time.Second,
		maxRetries: 3,
		retryDelay: 200 * time.Millisecond,
	}
}

// Ingest runs the full pipeline through the message bus and returns
// the indexed chunks. When the bus is missing or publishing fails it
// falls back to IngestDirect; when the consumer lags past the wait
// window the unindexed remainder is indexed directly, which is safe
// because indexing is idempotent per chunk ID.
func (p *Pipeline) Ingest(ctx context.Context, docID, docName, content, fileType string) ([]store.Chunk, error) {
	if p.bus == nil {
		slog.Warn("ingest: no bus configured, using direct path", "doc_id", docID)
		return p.IngestDirect(ctx, docID, docName, content, fileType)
	}

	chunks, err := p.prepare(ctx, docID, docName, content, fileType)
	if err != nil {
		return nil, err
	}

	published := 0
	for _, c := range chunks {
		payload, err := json.Marshal(envelope{MessageID: uuid.NewString(), Chunk: c})
		if err != nil {
			return nil, fmt.Errorf("encoding chunk %s: %w", c.ChunkID, err)
		}
		if err := p.bus.Publish(ctx, bus.TopicIngest, docID, payload); err != nil {
			slog.Warn("ingest: publish failed, switching to direct indexing",
				"doc_id", docID, "error", err)
			break
		}
		published++
	}
	slog.Info("ingest: chunks published", "doc_id", docID, "published", published, "total", len(chunks))

	if err := p.awaitIndexed(ctx, chunks[:published]); err != nil {
		return nil, err
	}

	// Index whatever the consumer has not picked up.
	var pending []store.Chunk
	for _, c := range chunks {
		if _, ok := p.chunks.Get(c.ChunkID); !ok {
			pending = append(pending, c)
		}
	}
	if len(pending) > 0 {
		slog.Warn("ingest: indexing unconsumed chunks directly",
			"doc_id", docID, "pending", len(pending))
		if err := p.indexChunks(ctx, pending); err != nil {
			return nil, err
		}
	}
	return p.docChunks(docID), nil
}

// IngestDirect runs the pipeline without the bus round trip.
func (p *Pipeline) IngestDirect(ctx context.Context, docID, docName, content, fileType string) ([]store.Chunk, error) {
	chunks, err := p.prepare(ctx, docID, docName, content, fileType)
	if err != nil {
		return nil, err
	}
	if err := p.indexChunks(ctx, chunks); err != nil {
		return nil, err
	}
	slog.Info("ingest: document indexed directly", "doc_id", docID, "chunks", len(chunks))
	return p.docChunks(docID), nil
}

// RunConsumer indexes chunks published on the ingest topic until ctx
// is cancelled. A failing index call is retried a bounded number of
// times before the message is left uncommitted for redelivery.
func (p *Pipeline) RunConsumer(ctx context.Context, group string) error {
	if p.bus == nil {
		return fmt.Errorf("ingest: no bus configured")
	}
	return p.bus.Consume(ctx, bus.TopicIngest, group, func(ctx context.Context, key string, value []byte) error {
		var env envelope
		if err := json.Unmarshal(value, &env); err != nil {
			slog.Warn("ingest: dropping malformed message", "key", key, "error", err)
			return nil
		}
		if err := p.indexWithRetry(ctx, env.Chunk); err != nil {
			slog.Warn("ingest: indexing failed, message left for redelivery",
				"chunk_id", env.Chunk.ChunkID, "error", err)
			return err
		}
		return nil
	})
}

// indexWithRetry attempts indexChunks up to maxRetries times with
// doubling backoff. Indexing is idempotent, so a partial attempt
// followed by a retry never duplicates.
func (p *Pipeline) indexWithRetry(ctx context.Context, c store.Chunk) error {
	delay := p.retryDelay
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		if lastErr = p.indexChunks(ctx, []store.Chunk{c}); lastErr == nil {
			return nil
		}
		slog.Warn("ingest: index attempt failed",
			"attempt", attempt+1, "chunk_id", c.ChunkID, "error", lastErr)
	}
	return lastErr
}

// DeleteDocument removes every chunk of a document from the store and
// both indexes.
func (p *Pipeline) DeleteDocument(ctx context.Context, docID string) (int, error) {
	ids := p.chunks.DeleteDoc(docID)
	if len(ids) == 0 {
		return 0, nil
	}
	if err := p.lex.Delete(ids); err != nil {
		return 0, fmt.Errorf("deleting from lexical index: %w", err)
	}
	if err := p.lex.Refresh(); err != nil {
		return 0, fmt.Errorf("refreshing lexical index: %w", err)
	}
	for _, coll := range []string{vector.CollectionLight, vector.CollectionDense} {
		if err := p.vec.Delete(ctx, coll, ids); err != nil {
			return 0, fmt.Errorf("deleting from %s: %w", coll, err)
		}
	}
	slog.Info("ingest: document deleted", "doc_id", docID, "chunks", len(ids))
	return len(ids), nil
}

// prepare parses, cleans and splits the raw document.
func (p *Pipeline) prepare(ctx context.Context, docID, docName, content, fileType string) ([]store.Chunk, error) {
	pr, err := p.registry.Get(fileType)
	if err != nil {
		return nil, err
	}
	markdown, err := pr.Parse(ctx, []byte(content))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", docName, err)
	}
	cleaned := textutil.Clean(markdown)
	chunks := p.splitter.Split(cleaned, docID, docName)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s produced no chunks", docName)
	}
	slog.Info("ingest: document split", "doc_id", docID, "doc_name", docName, "chunks", len(chunks))
	return chunks, nil
}

// indexChunks attaches vectors and tokens, then writes each chunk to
// the lexical index, both vector collections and the chunk store.
// Re-indexing an existing chunk ID overwrites prior state.
func (p *Pipeline) indexChunks(ctx context.Context, chunks []store.Chunk) error {
	for i := range chunks {
		c := &chunks[i]
		c.VectorLight = p.embedder.EmbedLight(c.Text)
		c.VectorDense = p.embedder.EmbedDense(c.Text)
		c.LexTokens = textutil.Tokenize(c.Text)

		if err := p.lex.Add(*c); err != nil {
			return fmt.Errorf("indexing chunk %s: %w", c.ChunkID, err)
		}
		if err := p.vec.Upsert(ctx, vector.CollectionLight, c.ChunkID, c.VectorLight); err != nil {
			return fmt.Errorf("upserting light vector for %s: %w", c.ChunkID, err)
		}
		if err := p.vec.Upsert(ctx, vector.CollectionDense, c.ChunkID, c.VectorDense); err != nil {
			return fmt.Errorf("upserting dense vector for %s: %w", c.ChunkID, err)
		}
		p.chunks.Put(*c)
	}
	return p.lex.Refresh()
}

// awaitIndexed polls the chunk store until the published chunks are
// all indexed or the wait window closes.
func (p *Pipeline) awaitIndexed(ctx context.Context, chunks []store.Chunk) error {
	deadline := time.NewTimer(p.indexWait)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		done := true
		for _, c := range chunks {
			if _, ok := p.chunks.Get(c.ChunkID); !ok {
				done = false
				break
			}
		}
		if done {
			return nil
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pipeline) docChunks(docID string) []store.Chunk {
	ids := p.chunks.DocChunkIDs(docID)
	out := make([]store.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := p.chunks.Get(id); ok {
			out = append(out, c)
		}
	}
	return out
}
