package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser renders each sheet as a level-1 section containing a
// Markdown table, the first row treated as the header.
type XLSXParser struct{}

func (p *XLSXParser) Formats() []string { return []string{"xlsx", "xls"} }

func (p *XLSXParser) Parse(ctx context.Context, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		fmt.Fprintf(&b, "# %s\n\n", sheet)
		width := 0
		for _, row := range rows {
			if len(row) > width {
				width = len(row)
			}
		}
		for i, row := range rows {
			cells := make([]string, width)
			for j := range cells {
				if j < len(row) {
					cells[j] = strings.TrimSpace(row[j])
				}
			}
			fmt.Fprintf(&b, "| %s |\n", strings.Join(cells, " | "))
			if i == 0 {
				seps := make([]string, width)
				for j := range seps {
					seps[j] = "---"
				}
				fmt.Fprintf(&b, "| %s |\n", strings.Join(seps, " | "))
			}
		}
		b.WriteString("\n")
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("no data in xlsx")
	}
	return out, nil
}
