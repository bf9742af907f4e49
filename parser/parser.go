// Package parser converts source documents into the unified Markdown
// the chunk splitter consumes. Markdown and plain text pass through;
// HTML, PDF and XLSX are converted with headings preserved so the
// hierarchical splitter still sees document structure.
package parser

import (
	"context"
	"fmt"
)

// Parser converts one document format into Markdown.
type Parser interface {
	// Parse renders data as Markdown text.
	Parse(ctx context.Context, data []byte) (string, error)

	// Formats lists the file types this parser accepts.
	Formats() []string
}

// Registry resolves a Parser by file type.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with the built-in parsers registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{
		&MarkdownParser{},
		&HTMLParser{},
		&PDFParser{},
		&XLSXParser{},
	} {
		for _, f := range p.Formats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Register adds or replaces the parser for a file type.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// Get returns the parser for a file type. An empty type resolves to
// the Markdown passthrough.
func (r *Registry) Get(format string) (Parser, error) {
	if format == "" {
		format = "markdown"
	}
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for file type: %s", format)
	}
	return p, nil
}
