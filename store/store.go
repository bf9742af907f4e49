package store

import "sync"

// Store is the authoritative chunk_id -> Chunk mapping. Reads dominate;
// writes only happen during ingestion, so a reader-writer mutex keeps
// concurrent query traffic cheap.
type Store struct {
	mu     sync.RWMutex
	chunks map[string]Chunk
	byDoc  map[string][]string // doc_id -> chunk ids, document order
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		chunks: make(map[string]Chunk),
		byDoc:  make(map[string][]string),
	}
}

// Put inserts or replaces a chunk. Replacing a chunk with the same
// ChunkID is idempotent with respect to the per-document listing.
func (s *Store) Put(c Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.chunks[c.ChunkID]; !exists {
		s.byDoc[c.Meta.DocID] = append(s.byDoc[c.Meta.DocID], c.ChunkID)
	}
	s.chunks[c.ChunkID] = c
}

// PutAll bulk-inserts chunks under a single writer lock.
func (s *Store) PutAll(chunks []Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if _, exists := s.chunks[c.ChunkID]; !exists {
			s.byDoc[c.Meta.DocID] = append(s.byDoc[c.Meta.DocID], c.ChunkID)
		}
		s.chunks[c.ChunkID] = c
	}
}

// Get returns the chunk with the given ID.
func (s *Store) Get(chunkID string) (Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[chunkID]
	return c, ok
}

// Len returns the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// DocChunkIDs returns the chunk IDs of a document in document order.
func (s *Store) DocChunkIDs(docID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byDoc[docID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// DeleteDoc removes every chunk belonging to docID and returns the
// removed IDs so callers can propagate the delete to the indexes.
func (s *Store) DeleteDoc(docID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byDoc[docID]
	for _, id := range ids {
		delete(s.chunks, id)
	}
	delete(s.byDoc, docID)
	return ids
}
