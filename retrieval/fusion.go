// Package retrieval implements the three-level hybrid retriever:
// parallel lexical + light-vector recall, relevance score fusion, and
// cross-encoder rerank with cliff cutoff.
package retrieval

import (
	"math"
	"sort"
)

// Hit is one scored candidate flowing between retrieval stages.
type Hit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// Fusion parameters. Alpha weights the vector side; short queries lean
// lexical, long queries lean semantic.
const (
	alphaBase  = 0.4
	alphaRange = 0.3
	alphaMid   = 8.0 // query token length where alpha crosses its midpoint
	alphaScale = 1.0
)

// RSFAlpha maps the original query's token count to the vector-side
// weight. Bounded in (0.4, 0.7), monotone increasing, 0.55 at the
// midpoint.
func RSFAlpha(queryTokens int) float64 {
	x := (float64(queryTokens) - alphaMid) / alphaScale
	return alphaBase + alphaRange/(1.0+math.Exp(-x))
}

// Normalize min-max scales scores to [0,1]. Degenerate inputs where
// every score is equal (including all-zero) map to all-ones so that a
// single-source candidate set is not wiped out by the other side.
func Normalize(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	min, max := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	out := make([]float64, len(xs))
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, x := range xs {
		out[i] = (x - min) / (max - min)
	}
	return out
}

// dedupMax collapses duplicate chunk IDs keeping the maximum score,
// preserving first-seen order.
func dedupMax(hits []Hit) []Hit {
	index := make(map[string]int, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if i, seen := index[h.ChunkID]; seen {
			if h.Score > out[i].Score {
				out[i].Score = h.Score
			}
			continue
		}
		index[h.ChunkID] = len(out)
		out = append(out, h)
	}
	return out
}

// FuseRSF combines the lexical and vector candidate streams: each side
// is deduplicated by max score and min-max normalized independently,
// then combined as alpha*vec + (1-alpha)*lex over the union of IDs.
// Returns the topK best, sorted by descending combined score.
func FuseRSF(lexHits, vecHits []Hit, alpha float64, topK int) []Hit {
	lexHits = dedupMax(lexHits)
	vecHits = dedupMax(vecHits)

	lexByID := make(map[string]float64, len(lexHits))
	for _, h := range lexHits {
		lexByID[h.ChunkID] = h.Score
	}
	vecByID := make(map[string]float64, len(vecHits))
	for _, h := range vecHits {
		vecByID[h.ChunkID] = h.Score
	}

	ids := make([]string, 0, len(lexByID)+len(vecByID))
	for _, h := range lexHits {
		ids = append(ids, h.ChunkID)
	}
	for _, h := range vecHits {
		if _, dup := lexByID[h.ChunkID]; !dup {
			ids = append(ids, h.ChunkID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	lexRaw := make([]float64, len(ids))
	vecRaw := make([]float64, len(ids))
	for i, id := range ids {
		lexRaw[i] = lexByID[id]
		vecRaw[i] = vecByID[id]
	}
	lexNorm := Normalize(lexRaw)
	vecNorm := Normalize(vecRaw)

	fused := make([]Hit, len(ids))
	for i, id := range ids {
		fused[i] = Hit{
			ChunkID: id,
			Score:   alpha*vecNorm[i] + (1.0-alpha)*lexNorm[i],
		}
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}

// RerankCutoff truncates a descending-score list at the first score
// cliff: a drop larger than diffThreshold landing below 0.3 ends the
// output there. The first item always survives; maxOutput caps length.
func RerankCutoff(sorted []Hit, diffThreshold float64, maxOutput int) []Hit {
	if len(sorted) == 0 || maxOutput <= 0 {
		return nil
	}
	out := []Hit{sorted[0]}
	for i := 1; i < len(sorted) && len(out) < maxOutput; i++ {
		prev, curr := sorted[i-1].Score, sorted[i].Score
		if prev-curr > diffThreshold && curr < 0.3 {
			break
		}
		out = append(out, sorted[i])
	}
	return out
}
