package parser

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts page text and reconstructs Markdown headings from
// numbered-section and chapter patterns so downstream splitting keeps
// the document hierarchy.
type PDFParser struct{}

func (p *PDFParser) Formats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Pages that fail extraction are skipped, not fatal.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		writePageMarkdown(&b, text)
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("no extractable text in pdf")
	}
	return out, nil
}

var (
	numberedHeadingRe = regexp.MustCompile(`^\d+(\.\d+)*[.、]?\s+\S`)
	chapterHeadingRe  = regexp.MustCompile(`^(第[一二三四五六七八九十百\d]+[章节部分篇]|附录[A-Z一二三四五六七八九十]?)`)
)

// writePageMarkdown appends page text, promoting heading-like lines to
// Markdown headings.
func writePageMarkdown(b *strings.Builder, text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			b.WriteString("\n")
			continue
		}
		if level := headingLevel(line); level > 0 {
			fmt.Fprintf(b, "\n%s %s\n", strings.Repeat("#", level), line)
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// headingLevel classifies a line as a heading; 0 means body text.
// Numbered sections derive their depth from the numbering, chapter
// markers are level 1.
func headingLevel(line string) int {
	if len([]rune(line)) > 60 {
		return 0
	}
	if chapterHeadingRe.MatchString(line) {
		return 1
	}
	if numberedHeadingRe.MatchString(line) {
		prefix := strings.Fields(line)[0]
		depth := strings.Count(strings.TrimRight(prefix, ".、"), ".") + 1
		if depth > 6 {
			depth = 6
		}
		return depth
	}
	return 0
}
