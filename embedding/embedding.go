// Package embedding produces the dual-resolution dense vectors attached
// to every chunk: a light vector for coarse recall and a dense vector
// for fine semantic matching.
//
// The built-in embedder is deterministic: it accumulates seeded Gaussian
// vectors per character trigram and per word (words weighted double) and
// L2-normalizes the result. The same text yields a bit-identical vector
// across processes, which keeps ingestion idempotent and the semantic
// cache stable. Production deployments can swap in a trained model of
// the same shape behind the Embedder interface.
package embedding

import (
	"hash/fnv"
	"math"
	"math/rand"
)

// Default dimensionalities of the two collections.
const (
	DimLight = 384
	DimDense = 768
)

// Embedder converts text into L2-normalized dense vectors.
type Embedder interface {
	// EmbedLight returns the coarse-recall vector (DimLight).
	EmbedLight(text string) []float32

	// EmbedDense returns the fine-matching vector (DimDense).
	EmbedDense(text string) []float32
}

// Hash is the deterministic trigram+word embedder.
type Hash struct {
	dimLight int
	dimDense int
}

// NewHash returns a Hash embedder. Non-positive dimensions fall back to
// the package defaults.
func NewHash(dimLight, dimDense int) *Hash {
	if dimLight <= 0 {
		dimLight = DimLight
	}
	if dimDense <= 0 {
		dimDense = DimDense
	}
	return &Hash{dimLight: dimLight, dimDense: dimDense}
}

func (h *Hash) EmbedLight(text string) []float32 {
	return embed(text, h.dimLight)
}

func (h *Hash) EmbedDense(text string) []float32 {
	return embed(text, h.dimDense)
}

func embed(text string, dim int) []float32 {
	vec := make([]float64, dim)

	// Character trigrams carry surface-form similarity.
	runes := []rune(text)
	for i := 0; i+2 < len(runes); i++ {
		addSeeded(vec, string(runes[i:i+3]), 1.0)
	}

	// Whole words carry the stronger semantic signal.
	for _, word := range fields(text) {
		addSeeded(vec, word, 2.0)
	}

	out := make([]float32, dim)
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i, v := range vec {
			out[i] = float32(v / norm)
		}
	}
	return out
}

// addSeeded accumulates a Gaussian vector seeded by the FNV-64a hash of
// key. FNV keeps the seed stable across processes, unlike the built-in
// map hash.
func addSeeded(vec []float64, key string, weight float64) {
	hasher := fnv.New64a()
	hasher.Write([]byte(key))
	rng := rand.New(rand.NewSource(int64(hasher.Sum64())))
	for i := range vec {
		vec[i] += rng.NormFloat64() * weight
	}
}

// fields splits on spaces/tabs/newlines without allocating for the
// common single-word case.
func fields(text string) []string {
	var out []string
	start := -1
	for i, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			if start >= 0 {
				out = append(out, text[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, text[start:])
	}
	return out
}

// Cosine returns the cosine similarity of two vectors, or 0 when either
// has zero norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
