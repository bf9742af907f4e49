// Package textutil provides the text normalization, token estimation and
// tokenization primitives shared by the ingestion and retrieval paths.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	controlRe  = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	blankRunRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe = regexp.MustCompile(`[ \t]{2,}`)
)

// Clean normalizes raw document text before chunking and indexing:
// NFKC normalization, control-character removal (TAB and LF survive),
// LF line endings, blank-line and space-run compression, and per-line
// right trimming.
func Clean(text string) string {
	text = norm.NFKC.String(text)
	text = controlRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = spaceRunRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// isCJK reports whether r falls in the CJK Unified Ideographs block.
func isCJK(r rune) bool {
	return r >= 0x4e00 && r <= 0x9fff
}

// EstimateTokens approximates the token count of text:
// 1.5 per CJK character plus 0.75 per whitespace-separated word, plus 1.
// The estimate is only used for budget and chunk-size heuristics; it is
// monotone in text length but makes no exactness claim.
func EstimateTokens(text string) int {
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	words := len(strings.Fields(text))
	return int(float64(cjk)*1.5+float64(words)*0.75) + 1
}

// Tokenize splits text into lowercase search tokens: each CJK character
// becomes its own token, consecutive letters/digits form one token, and
// everything else is a separator.
func Tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
