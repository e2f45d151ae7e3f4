// Package export writes optional side artifacts of a composed report.
package export

import (
	"strings"

	"github.com/storm-crypto/BettaFish/internal/doctree"
)

// cellText flattens a table cell to one line.
func cellText(c *doctree.Cell) string {
	if c == nil || c.Malformed() {
		return ""
	}
	if len(c.Blocks) == 0 {
		return strings.TrimSpace(c.String("text"))
	}
	var parts []string
	for _, b := range c.Blocks {
		if b == nil || b.Malformed() {
			continue
		}
		if t := doctree.Text(b); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// rowTexts flattens every well-formed row of a table block.
func rowTexts(b *doctree.Block) [][]string {
	var rows [][]string
	for _, r := range b.Rows {
		if r == nil || r.Malformed() {
			continue
		}
		cells := make([]string, 0, len(r.Cells))
		for _, c := range r.Cells {
			cells = append(cells, cellText(c))
		}
		rows = append(rows, cells)
	}
	return rows
}

func chartCaption(b *doctree.Block) string {
	if t := b.String("title"); t != "" {
		return "[Chart: " + t + "]"
	}
	return "[Chart: " + b.WidgetType + "]"
}
