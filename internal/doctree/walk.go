package doctree

import "strings"

// Visitor is called once per block record, parents before children.
// depth is 0 for a chapter's top-level blocks.
type Visitor func(b *Block, depth int)

// Walk visits every block reachable from blocks: generic nesting, list items
// and table cells. Malformed or nil entries are skipped along with anything
// beneath them; siblings are still visited.
func Walk(blocks []*Block, visit Visitor) {
	walk(blocks, 0, visit)
}

func walk(blocks []*Block, depth int, visit Visitor) {
	for _, b := range blocks {
		if b == nil || b.Malformed() {
			continue
		}
		visit(b, depth)

		// Generic nesting applies to every kind.
		walk(b.Blocks, depth+1, visit)

		switch b.Kind() {
		case KindList:
			for _, item := range b.Items {
				if seq, ok := item.Sequence(); ok {
					walk(seq, depth+1, visit)
				}
			}
		case KindTable:
			for _, row := range b.Rows {
				if row == nil || row.Malformed() {
					continue
				}
				for _, cell := range row.Cells {
					if cell == nil || cell.Malformed() {
						continue
					}
					walk(cell.Blocks, depth+1, visit)
				}
			}
		case KindWidget, KindHeading, KindParagraph, KindMarkdown, KindCallout,
			KindBlockquote, KindCode, KindHR, KindMath, KindUnknown:
			// No container fields beyond the generic blocks.
		}
	}
}

// Walk visits every block of every chapter in document order.
func (d *Document) Walk(visit Visitor) {
	for _, ch := range d.Chapters {
		if ch == nil {
			continue
		}
		Walk(ch.Blocks, visit)
	}
}

// IsChart reports whether b is a Chart.js widget.
func IsChart(b *Block) bool {
	return b != nil && b.Type == string(KindWidget) && strings.HasPrefix(b.WidgetType, ChartWidgetPrefix)
}

// CountCharts counts chart widgets anywhere beneath blocks.
func CountCharts(blocks []*Block) int {
	n := 0
	Walk(blocks, func(b *Block, _ int) {
		if IsChart(b) {
			n++
		}
	})
	return n
}

// ChartCount sums CountCharts over every chapter.
func (d *Document) ChartCount() int {
	n := 0
	for _, ch := range d.Chapters {
		if ch != nil {
			n += CountCharts(ch.Blocks)
		}
	}
	return n
}

// Charts returns every chart widget in document order.
func (d *Document) Charts() []*Block {
	var charts []*Block
	d.Walk(func(b *Block, _ int) {
		if IsChart(b) {
			charts = append(charts, b)
		}
	})
	return charts
}

// Tables returns every table block in document order, paired with its chapter.
func (d *Document) Tables() []TableRef {
	var tables []TableRef
	for _, ch := range d.Chapters {
		if ch == nil {
			continue
		}
		Walk(ch.Blocks, func(b *Block, _ int) {
			if b.Kind() == KindTable {
				tables = append(tables, TableRef{Chapter: ch, Block: b})
			}
		})
	}
	return tables
}

// TableRef locates a table block.
type TableRef struct {
	Chapter *Chapter
	Block   *Block
}

// Stats summarises a document's shape.
type Stats struct {
	Chapters int
	Blocks   int
	Charts   int
	Tables   int
	MaxDepth int
	ByKind   map[Kind]int
}

// Stats walks the whole document once.
func (d *Document) Stats() Stats {
	s := Stats{Chapters: len(d.Chapters), ByKind: make(map[Kind]int)}
	d.Walk(func(b *Block, depth int) {
		s.Blocks++
		s.ByKind[b.Kind()]++
		if IsChart(b) {
			s.Charts++
		}
		if b.Kind() == KindTable {
			s.Tables++
		}
		if depth+1 > s.MaxDepth {
			s.MaxDepth = depth + 1
		}
	})
	return s
}

// Text flattens the plain text of a block and its descendants.
func Text(b *Block) string {
	var parts []string
	Walk([]*Block{b}, func(n *Block, _ int) {
		if t := OwnText(n); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// OwnText is the text a block carries itself, excluding children.
func OwnText(b *Block) string {
	for _, key := range []string{"text", "content", "latex", "title"} {
		if s := strings.TrimSpace(b.String(key)); s != "" {
			return s
		}
	}
	inlines, ok := b.Fields["inlines"].([]any)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, in := range inlines {
		switch v := in.(type) {
		case string:
			sb.WriteString(v)
		case map[string]any:
			if s, ok := v["text"].(string); ok {
				sb.WriteString(s)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
