// Package lexical is the BM25 side of hybrid retrieval, backed by an
// in-process bleve index.
//
// Chunks are indexed as pre-tokenized text (CJK unigrams plus lowercase
// word tokens, space-joined) so that Chinese content gets useful term
// statistics without a segmenter plugin. Newly indexed chunks become
// searchable only after Refresh, mirroring the commit semantics of a
// remote search cluster.
package lexical

import (
	"context"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/yukunliu/ragpipe/store"
	"github.com/yukunliu/ragpipe/textutil"
)

// Field boosts applied at query time.
const (
	boostText    = 3.0
	boostHeading = 2.0
	boostDocName = 1.0
)

// Hit is one lexical search result.
type Hit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// Index is the lexical retrieval index.
type Index struct {
	mu    sync.Mutex
	idx   bleve.Index
	batch *bleve.Batch
}

// New opens an empty in-memory index.
func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{idx: idx, batch: idx.NewBatch()}, nil
}

// Add stages a chunk for indexing. The chunk is not searchable until
// the next Refresh.
func (x *Index) Add(c store.Chunk) error {
	tokens := c.LexTokens
	if len(tokens) == 0 {
		tokens = textutil.Tokenize(c.Text)
	}
	doc := map[string]interface{}{
		"text":     strings.Join(tokens, " "),
		"heading":  strings.Join(textutil.Tokenize(c.Meta.HeadingPath), " "),
		"doc_name": strings.Join(textutil.Tokenize(c.Meta.DocName), " "),
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	return x.batch.Index(c.ChunkID, doc)
}

// Refresh commits every staged chunk, making it searchable.
func (x *Index) Refresh() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.batch.Size() == 0 {
		return nil
	}
	if err := x.idx.Batch(x.batch); err != nil {
		return err
	}
	x.batch = x.idx.NewBatch()
	return nil
}

// Search runs a BM25-style match over the boosted fields and returns up
// to topK hits ordered by descending score.
func (x *Index) Search(ctx context.Context, queryText string, topK int) ([]Hit, error) {
	terms := strings.Join(textutil.Tokenize(queryText), " ")
	if terms == "" || topK <= 0 {
		return nil, nil
	}

	fieldQuery := func(field string, boost float64) query.Query {
		q := bleve.NewMatchQuery(terms)
		q.SetField(field)
		q.SetBoost(boost)
		return q
	}
	dq := bleve.NewDisjunctionQuery(
		fieldQuery("text", boostText),
		fieldQuery("heading", boostHeading),
		fieldQuery("doc_name", boostDocName),
	)

	req := bleve.NewSearchRequestOptions(dq, topK, 0, false)
	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ChunkID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Delete removes the given chunk IDs, taking effect immediately.
func (x *Index) Delete(chunkIDs []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range chunkIDs {
		if err := x.idx.Delete(id); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of committed chunks.
func (x *Index) Count() (uint64, error) {
	return x.idx.DocCount()
}

// Close releases the underlying index.
func (x *Index) Close() error {
	return x.idx.Close()
}
