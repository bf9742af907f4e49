package retrieval

import (
	"math"

	"github.com/yukunliu/ragpipe/textutil"
)

// Cross-encoder component weights.
const (
	weightJaccard  = 0.40
	weightCoverage = 0.35
	weightPosition = 0.25
)

// CrossScore scores (query, text) relevance in [0,1]. It is the
// built-in stand-in for a trained cross-encoder: lexical Jaccard
// overlap, query-term coverage, and an early-position bonus that
// rewards texts answering the query up front.
func CrossScore(query, text string) float64 {
	queryTokens := textutil.Tokenize(query)
	textTokens := textutil.Tokenize(text)
	if len(queryTokens) == 0 || len(textTokens) == 0 {
		return 0
	}

	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}
	textSet := make(map[string]struct{}, len(textTokens))
	for _, t := range textTokens {
		textSet[t] = struct{}{}
	}

	inter := 0
	for t := range querySet {
		if _, ok := textSet[t]; ok {
			inter++
		}
	}
	union := len(querySet) + len(textSet) - inter
	jaccard := float64(inter) / float64(union)
	coverage := float64(inter) / float64(len(querySet))

	// Mean positional decay over text tokens that appear in the query.
	posSum, posCount := 0.0, 0
	for pos, t := range textTokens {
		if _, ok := querySet[t]; ok {
			posSum += math.Exp(-3.0 * float64(pos) / float64(len(textTokens)))
			posCount++
		}
	}
	position := 0.0
	if posCount > 0 {
		position = posSum / float64(posCount)
	}

	return weightJaccard*jaccard + weightCoverage*coverage + weightPosition*position
}
