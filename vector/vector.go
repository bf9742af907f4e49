// Package vector stores chunk embeddings and serves cosine KNN queries
// for the dual-resolution collections used by hybrid retrieval.
package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/yukunliu/ragpipe/embedding"
)

// Canonical collection names.
const (
	CollectionLight = "chunks_light"
	CollectionDense = "chunks_dense"
)

// DefaultCollections maps the two canonical collections to their
// dimensionalities. Non-positive dims fall back to package defaults.
func DefaultCollections(dimLight, dimDense int) map[string]int {
	if dimLight <= 0 {
		dimLight = embedding.DimLight
	}
	if dimDense <= 0 {
		dimDense = embedding.DimDense
	}
	return map[string]int{
		CollectionLight: dimLight,
		CollectionDense: dimDense,
	}
}

// Hit is one KNN result. Score is cosine similarity, higher is closer.
type Hit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// Index is a vector store holding one or more named collections.
type Index interface {
	// Upsert writes or replaces the vector stored for chunkID.
	Upsert(ctx context.Context, collection, chunkID string, vec []float32) error

	// Search returns up to topK hits ordered by descending similarity.
	Search(ctx context.Context, collection string, vec []float32, topK int) ([]Hit, error)

	// Delete removes the given chunk IDs; missing IDs are ignored.
	Delete(ctx context.Context, collection string, chunkIDs []string) error

	// Count returns the number of vectors in the collection.
	Count(ctx context.Context, collection string) (int, error)

	Close() error
}

// Memory is a brute-force in-process Index, used in tests and as the
// fallback when no external vector backend is configured.
type Memory struct {
	mu   sync.RWMutex
	dims map[string]int
	data map[string]map[string][]float32
}

// NewMemory returns a Memory index with the given collections.
func NewMemory(collections map[string]int) *Memory {
	data := make(map[string]map[string][]float32, len(collections))
	dims := make(map[string]int, len(collections))
	for name, dim := range collections {
		data[name] = make(map[string][]float32)
		dims[name] = dim
	}
	return &Memory{dims: dims, data: data}
}

func (m *Memory) collection(name string) (map[string][]float32, error) {
	c, ok := m.data[name]
	if !ok {
		return nil, errUnknownCollection(name)
	}
	return c, nil
}

func (m *Memory) Upsert(_ context.Context, collection, chunkID string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	if dim := m.dims[collection]; len(vec) != dim {
		return errDimMismatch(collection, dim, len(vec))
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c[chunkID] = stored
	return nil
}

func (m *Memory) Search(_ context.Context, collection string, vec []float32, topK int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(c))
	for id, stored := range c {
		hits = append(hits, Hit{ChunkID: id, Score: embedding.Cosine(vec, stored)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *Memory) Delete(_ context.Context, collection string, chunkIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	for _, id := range chunkIDs {
		delete(c, id)
	}
	return nil
}

func (m *Memory) Count(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collection(collection)
	if err != nil {
		return 0, err
	}
	return len(c), nil
}

func (m *Memory) Close() error { return nil }
