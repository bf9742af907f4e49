// Package chunker turns cleaned Markdown into an ordered list of
// retrieval chunks, following the document's heading hierarchy.
//
// Non-leaf headings become structural chunks carrying their whole
// subtree (or a deterministic summary of it when the subtree is too
// large), leaf headings carry their own body, and oversized leaf
// bodies are split at sentence boundaries with a sliding overlap.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/yukunliu/ragpipe/store"
	"github.com/yukunliu/ragpipe/textutil"
)

// Config controls chunk sizing. Zero values fall back to defaults.
type Config struct {
	// LeafMin and LeafMax bound leaf chunk size in estimated tokens.
	// Oversized leaves are re-split targeting (LeafMin+LeafMax)/2.
	LeafMin int
	LeafMax int

	// OverlapRatio is the fraction of the split target reused as the
	// trailing-context prefix of the next sub-chunk.
	OverlapRatio float64

	// NonLeafThreshold is the largest subtree (in estimated tokens)
	// stored verbatim in a non-leaf chunk; larger subtrees are
	// summarized instead.
	NonLeafThreshold int

	// SummaryLines and SummaryChars bound the deterministic summary.
	SummaryLines int
	SummaryChars int
}

func (c Config) withDefaults() Config {
	if c.LeafMin <= 0 {
		c.LeafMin = 512
	}
	if c.LeafMax <= 0 {
		c.LeafMax = 800
	}
	if c.OverlapRatio <= 0 {
		c.OverlapRatio = 0.12
	}
	if c.NonLeafThreshold <= 0 {
		c.NonLeafThreshold = 2000
	}
	if c.SummaryLines <= 0 {
		c.SummaryLines = 10
	}
	if c.SummaryChars <= 0 {
		c.SummaryChars = 500
	}
	return c
}

// Splitter produces hierarchical chunks from Markdown documents.
type Splitter struct {
	cfg Config
}

// New returns a Splitter with cfg's zero values filled in.
func New(cfg Config) *Splitter {
	return &Splitter{cfg: cfg.withDefaults()}
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// node is one heading in the document tree. The synthetic root has
// level 0 and an empty title.
type node struct {
	level    int
	title    string
	body     []string
	children []*node
}

// Split chunks one cleaned Markdown document. Output order is document
// order: each non-leaf chunk precedes the chunks of its subtree.
// Chunk IDs are derived from content, so re-splitting an unchanged
// document yields identical IDs.
func (s *Splitter) Split(markdown, docID, docName string) []store.Chunk {
	root := parseTree(markdown)
	e := &emitter{cfg: s.cfg, docID: docID, docName: docName}
	e.walk(root, "")
	return e.out
}

// parseTree scans line-anchored #{1..6} headings into a tree. A heading
// of level L closes every open node of level >= L; body lines attach to
// the innermost open node.
func parseTree(markdown string) *node {
	root := &node{level: 0}
	stack := []*node{root}

	for _, line := range strings.Split(markdown, "\n") {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			top := stack[len(stack)-1]
			top.body = append(top.body, line)
			continue
		}
		level := len(m[1])
		for len(stack) > 1 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		n := &node{level: level, title: strings.TrimSpace(m[2])}
		top := stack[len(stack)-1]
		top.children = append(top.children, n)
		stack = append(stack, n)
	}
	return root
}

type emitter struct {
	cfg     Config
	docID   string
	docName string
	ordinal int
	out     []store.Chunk
}

func (e *emitter) walk(n *node, parentPath string) {
	path := joinPath(parentPath, n.title)

	if len(n.children) == 0 {
		e.emitLeaf(n, path)
		return
	}

	// The synthetic root never gets a structural chunk of its own,
	// but any preamble before the first heading is kept as a leaf.
	if n.level == 0 {
		e.emitLeaf(n, path)
	} else {
		e.emitNonLeaf(n, path)
	}
	for _, child := range n.children {
		e.walk(child, path)
	}
}

func (e *emitter) emitNonLeaf(n *node, path string) {
	full := collectSubtree(n)
	if full == "" {
		return
	}
	meta := store.Metadata{
		DocID:       e.docID,
		DocName:     e.docName,
		HeadingPath: path,
		NodeType:    store.NodeNonLeaf,
	}
	if textutil.EstimateTokens(full) <= e.cfg.NonLeafThreshold {
		e.emit(full, meta)
		return
	}
	summary := e.summarize(full, path)
	meta.ParentSummary = summary
	e.emit(summary, meta)
}

func (e *emitter) emitLeaf(n *node, path string) {
	body := strings.TrimSpace(strings.Join(n.body, "\n"))
	if body == "" {
		return
	}
	nodeType := store.NodeLeaf
	if n.level == 0 {
		nodeType = store.NodeNoHeading
	}
	meta := store.Metadata{
		DocID:       e.docID,
		DocName:     e.docName,
		HeadingPath: path,
		NodeType:    nodeType,
	}

	if textutil.EstimateTokens(body) <= e.cfg.LeafMax {
		e.emit(withPathPrefix(path, body), meta)
		return
	}

	for i, piece := range e.splitBody(body) {
		m := meta
		m.IsContinuation = i > 0
		e.emit(withPathPrefix(path, piece), m)
	}
}

// splitBody cuts an oversized leaf body into sentence-aligned pieces.
// The tail of each piece is carried into the next one so that context
// spanning a cut survives in at least one chunk.
func (e *emitter) splitBody(body string) []string {
	target := (e.cfg.LeafMin + e.cfg.LeafMax) / 2
	overlapTokens := int(float64(target) * e.cfg.OverlapRatio)

	var pieces []string
	var cur []string
	curTokens := 0

	flush := func() {
		text := strings.TrimSpace(strings.Join(cur, ""))
		if text != "" {
			pieces = append(pieces, text)
		}
	}

	for _, sent := range splitSentences(body) {
		tk := textutil.EstimateTokens(sent)
		if curTokens+tk > e.cfg.LeafMax && len(cur) > 0 {
			flush()
			cur, curTokens = tailOverlap(cur, overlapTokens)
		}
		cur = append(cur, sent)
		curTokens += tk
	}
	if len(cur) > 0 {
		flush()
	}
	return pieces
}

// tailOverlap returns the trailing sentences of cur whose combined
// estimate first reaches want tokens, along with that estimate.
func tailOverlap(cur []string, want int) ([]string, int) {
	if want <= 0 {
		return nil, 0
	}
	total := 0
	i := len(cur)
	for i > 0 && total < want {
		i--
		total += textutil.EstimateTokens(cur[i])
	}
	tail := make([]string, len(cur)-i)
	copy(tail, cur[i:])
	return tail, total
}

// summarize builds the deterministic fallback summary of a subtree:
// the first SummaryLines non-empty lines joined by spaces, truncated
// to SummaryChars runes.
func (e *emitter) summarize(full, path string) string {
	var kept []string
	for _, line := range strings.Split(full, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == e.cfg.SummaryLines {
			break
		}
	}
	body := strings.Join(kept, " ")
	if runes := []rune(body); len(runes) > e.cfg.SummaryChars {
		body = string(runes[:e.cfg.SummaryChars]) + "..."
	}
	return "[SUMMARY] " + path + ": " + body
}

func (e *emitter) emit(text string, meta store.Metadata) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d\x00%s",
		e.docID, meta.HeadingPath, e.ordinal, text)))
	id := fmt.Sprintf("%s_chunk_%s", e.docID, hex.EncodeToString(sum[:])[:8])
	e.out = append(e.out, store.Chunk{ChunkID: id, Text: text, Meta: meta})
	e.ordinal++
}

// collectSubtree reconstructs a node's Markdown, re-emitting headings.
func collectSubtree(n *node) string {
	var parts []string
	if n.level > 0 {
		parts = append(parts, strings.Repeat("#", n.level)+" "+n.title)
	}
	if body := strings.TrimSpace(strings.Join(n.body, "\n")); body != "" {
		parts = append(parts, body)
	}
	for _, child := range n.children {
		if sub := collectSubtree(child); sub != "" {
			parts = append(parts, sub)
		}
	}
	return strings.Join(parts, "\n\n")
}

// splitSentences cuts text after sentence terminators, keeping the
// terminator with its sentence so concatenation reconstructs the input.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		switch r {
		case '。', '！', '？', '!', '?', '\n':
			end := i + len(string(r))
			if seg := text[start:end]; strings.TrimSpace(seg) != "" {
				out = append(out, seg)
			} else if len(out) > 0 {
				// Glue bare terminators onto the previous sentence.
				out[len(out)-1] += seg
			}
			start = end
		}
	}
	if start < len(text) {
		if seg := text[start:]; strings.TrimSpace(seg) != "" {
			out = append(out, seg)
		}
	}
	return out
}

func withPathPrefix(path, body string) string {
	if path == "" {
		return body
	}
	return path + "\n\n" + body
}

func joinPath(parent, title string) string {
	if parent == "" {
		return title
	}
	return parent + "/" + title
}
