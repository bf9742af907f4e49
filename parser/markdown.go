package parser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MarkdownParser passes Markdown and plain text through unchanged.
type MarkdownParser struct{}

func (p *MarkdownParser) Formats() []string { return []string{"markdown", "md", "txt"} }

func (p *MarkdownParser) Parse(_ context.Context, data []byte) (string, error) {
	return string(data), nil
}

var (
	htmlHeadingRe = regexp.MustCompile(`(?s)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	htmlParaRe    = regexp.MustCompile(`(?s)<p[^>]*>(.*?)</p>`)
	htmlBreakRe   = regexp.MustCompile(`<br\s*/?>`)
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
)

// HTMLParser rewrites h1..h6 as Markdown headings, keeps paragraph and
// line breaks, and strips every other tag.
type HTMLParser struct{}

func (p *HTMLParser) Formats() []string { return []string{"html", "htm"} }

func (p *HTMLParser) Parse(_ context.Context, data []byte) (string, error) {
	text := string(data)
	text = htmlHeadingRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := htmlHeadingRe.FindStringSubmatch(m)
		level, err := strconv.Atoi(sub[1])
		if err != nil || level < 1 || level > 6 {
			return sub[2]
		}
		return fmt.Sprintf("\n%s %s\n", strings.Repeat("#", level), strings.TrimSpace(sub[2]))
	})
	text = htmlParaRe.ReplaceAllString(text, "$1\n")
	text = htmlBreakRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text), nil
}
