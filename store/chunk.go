// Package store defines the chunk data model and the in-memory
// authoritative chunk store backing the retrieval pipeline.
package store

// Node types assigned by the hierarchical splitter.
const (
	NodeNonLeaf   = "non_leaf"
	NodeLeaf      = "leaf"
	NodeNoHeading = "no_heading"
)

// Metadata locates a chunk within its source document.
type Metadata struct {
	DocID       string `json:"doc_id"`
	DocName     string `json:"doc_name"`
	HeadingPath string `json:"heading_path"`
	NodeType    string `json:"node_type"`
	// IsContinuation is true for sub-chunks produced by intra-leaf
	// splitting past the first piece.
	IsContinuation bool `json:"is_continuation"`
	// ParentSummary is set (equal to Text) when a non-leaf body
	// exceeded the summary threshold; empty otherwise.
	ParentSummary string `json:"parent_summary,omitempty"`
}

// Chunk is the atomic retrievable unit. Created by the splitter,
// mutated once to attach vectors and lexical tokens during embedding,
// then frozen.
type Chunk struct {
	ChunkID string   `json:"chunk_id"`
	Text    string   `json:"text"`
	Meta    Metadata `json:"metadata"`

	VectorLight []float32 `json:"vector_light,omitempty"`
	VectorDense []float32 `json:"vector_dense,omitempty"`
	LexTokens   []string  `json:"lex_tokens,omitempty"`
}

// RetrievedChunk is a chunk admitted by the retriever, tagged with the
// score and source of the final stage that admitted it.
type RetrievedChunk struct {
	Chunk  Chunk   `json:"chunk"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

// Source tags for RetrievedChunk.
const (
	SourceBM25        = "bm25"
	SourceVectorLight = "vector_light"
	SourceRSF         = "rsf"
	SourceRerank      = "rerank"
)
