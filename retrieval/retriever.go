package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/yukunliu/ragpipe/embedding"
	"github.com/yukunliu/ragpipe/lexical"
	"github.com/yukunliu/ragpipe/store"
	"github.com/yukunliu/ragpipe/textutil"
	"github.com/yukunliu/ragpipe/vector"
)

// LexSearcher is the lexical recall capability.
type LexSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]lexical.Hit, error)
}

// VecSearcher is the vector recall capability.
type VecSearcher interface {
	Search(ctx context.Context, collection string, vec []float32, topK int) ([]vector.Hit, error)
}

// ChunkGetter resolves chunk IDs to chunks.
type ChunkGetter interface {
	Get(chunkID string) (store.Chunk, bool)
}

// Config controls stage fan-out. Zero values fall back to defaults.
type Config struct {
	// L1TopK is the recall depth of each lexical/vector search.
	L1TopK int
	// L2TopK caps the fused candidate set handed to the reranker.
	L2TopK int
	// DiffThreshold is the rerank cliff-cutoff drop size.
	DiffThreshold float64
}

func (c Config) withDefaults() Config {
	if c.L1TopK <= 0 {
		c.L1TopK = 1500
	}
	if c.L2TopK <= 0 {
		c.L2TopK = 80
	}
	if c.DiffThreshold <= 0 {
		c.DiffThreshold = 0.8
	}
	return c
}

// Retriever runs the three retrieval levels.
type Retriever struct {
	lex    LexSearcher
	vec    VecSearcher
	emb    embedding.Embedder
	chunks ChunkGetter
	cfg    Config
}

// New wires a Retriever. Any of lex/vec may be nil; the corresponding
// recall side is then skipped, degrading to single-source retrieval.
func New(lex LexSearcher, vec VecSearcher, emb embedding.Embedder, chunks ChunkGetter, cfg Config) *Retriever {
	return &Retriever{lex: lex, vec: vec, emb: emb, chunks: chunks, cfg: cfg.withDefaults()}
}

type sideResult struct {
	lexSide bool
	hits    []Hit
	err     error
}

// Retrieve answers the original query using the rewritten query list
// (original first). Returns up to topK chunks, best first. A failing
// recall side is tolerated; only an empty candidate set after both
// sides yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string, rewrites []string, topK int) ([]store.RetrievedChunk, error) {
	if len(rewrites) == 0 {
		rewrites = []string{query}
	}

	// L1: every rewrite fans out to both recall sides in parallel.
	results := make(chan sideResult, 2*len(rewrites))
	var wg sync.WaitGroup
	for _, q := range rewrites {
		q := q
		if r.lex != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				hits, err := r.lex.Search(ctx, q, r.cfg.L1TopK)
				results <- sideResult{lexSide: true, hits: lexHits(hits), err: err}
			}()
		}
		if r.vec != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				hits, err := r.vec.Search(ctx, vector.CollectionLight, r.emb.EmbedLight(q), r.cfg.L1TopK)
				results <- sideResult{hits: vecHits(hits), err: err}
			}()
		}
	}
	wg.Wait()
	close(results)

	var lexAll, vecAll []Hit
	for res := range results {
		if res.err != nil {
			side := "vector"
			if res.lexSide {
				side = "lexical"
			}
			slog.Warn("retrieval: recall side failed", "side", side, "error", res.err)
			continue
		}
		if res.lexSide {
			lexAll = append(lexAll, res.hits...)
		} else {
			vecAll = append(vecAll, res.hits...)
		}
	}

	// L2: fuse with a length-adaptive alpha from the original query.
	alpha := RSFAlpha(len(textutil.Tokenize(query)))
	fused := FuseRSF(lexAll, vecAll, alpha, r.cfg.L2TopK)
	if len(fused) == 0 {
		return nil, ctx.Err()
	}

	// L3: rerank resolved chunks and cut at the score cliff.
	type candidate struct {
		chunk store.Chunk
		score float64
	}
	candidates := make([]candidate, 0, len(fused))
	for _, h := range fused {
		chunk, ok := r.chunks.Get(h.ChunkID)
		if !ok {
			slog.Debug("retrieval: fused id missing from chunk store", "chunk_id", h.ChunkID)
			continue
		}
		candidates = append(candidates, candidate{chunk: chunk, score: CrossScore(query, chunk.Text)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	scored := make([]Hit, len(candidates))
	byID := make(map[string]store.Chunk, len(candidates))
	for i, c := range candidates {
		scored[i] = Hit{ChunkID: c.chunk.ChunkID, Score: c.score}
		byID[c.chunk.ChunkID] = c.chunk
	}
	kept := RerankCutoff(scored, r.cfg.DiffThreshold, topK)

	out := make([]store.RetrievedChunk, len(kept))
	for i, h := range kept {
		out[i] = store.RetrievedChunk{
			Chunk:  byID[h.ChunkID],
			Score:  h.Score,
			Source: store.SourceRerank,
		}
	}
	return out, ctx.Err()
}

func lexHits(hits []lexical.Hit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{ChunkID: h.ChunkID, Score: h.Score}
	}
	return out
}

func vecHits(hits []vector.Hit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{ChunkID: h.ChunkID, Score: h.Score}
	}
	return out
}
