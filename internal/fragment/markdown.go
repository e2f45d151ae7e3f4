package fragment

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownDecoder turns a hand-written Markdown chapter into block form.
// The first level-1 heading becomes the chapter title; a fenced code block
// tagged chart.js* becomes a chart widget whose body is the chart data.
type MarkdownDecoder struct{}

func (d *MarkdownDecoder) Decode(r io.Reader, filename string) (Fragment, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return Fragment{}, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(src))

	base := filepath.Base(filename)
	id := strings.TrimSuffix(strings.TrimSuffix(base, ".md"), ".markdown")
	data := map[string]any{
		"chapterId": id,
		"title":     id,
	}
	if order, ok := leadingNumber(id); ok {
		data["order"] = order
	}

	var blocks []any
	titled := false
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 && !titled {
			data["title"] = inlineText(h, src)
			titled = true
			continue
		}
		blocks = append(blocks, convertBlock(n, src)...)
	}
	if blocks == nil {
		blocks = []any{}
	}
	data["blocks"] = blocks
	return Fragment{Source: filename, Data: data}, nil
}

func convertBlock(n ast.Node, src []byte) []any {
	switch node := n.(type) {
	case *ast.Heading:
		return []any{map[string]any{
			"type":  "heading",
			"level": float64(node.Level),
			"text":  inlineText(node, src),
		}}
	case *ast.Paragraph, *ast.TextBlock:
		content := strings.TrimSpace(rawLines(node, src))
		if content == "" {
			return nil
		}
		return []any{map[string]any{"type": "markdown", "content": content}}
	case *ast.List:
		items := []any{}
		for li := node.FirstChild(); li != nil; li = li.NextSibling() {
			item := []any{}
			for c := li.FirstChild(); c != nil; c = c.NextSibling() {
				item = append(item, convertBlock(c, src)...)
			}
			items = append(items, item)
		}
		listType := "bullet"
		if node.IsOrdered() {
			listType = "ordered"
		}
		return []any{map[string]any{"type": "list", "listType": listType, "items": items}}
	case *ast.FencedCodeBlock:
		lang := string(node.Language(src))
		body := rawLines(node, src)
		if strings.HasPrefix(lang, "chart.js") {
			if w, ok := chartWidget(lang, body); ok {
				return []any{w}
			}
		}
		return []any{map[string]any{"type": "code", "lang": lang, "content": body}}
	case *ast.CodeBlock:
		return []any{map[string]any{"type": "code", "content": rawLines(node, src)}}
	case *ast.ThematicBreak:
		return []any{map[string]any{"type": "hr"}}
	case *ast.Blockquote:
		children := []any{}
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			children = append(children, convertBlock(c, src)...)
		}
		return []any{map[string]any{"type": "blockquote", "blocks": children}}
	case *east.Table:
		return []any{convertTable(node, src)}
	default:
		content := strings.TrimSpace(rawLines(n, src))
		if content == "" {
			return nil
		}
		return []any{map[string]any{"type": "markdown", "content": content}}
	}
}

func convertTable(t *east.Table, src []byte) map[string]any {
	rows := []any{}
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		_, header := r.(*east.TableHeader)
		cells := []any{}
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			cell := map[string]any{
				"blocks": []any{map[string]any{"type": "paragraph", "text": inlineText(c, src)}},
			}
			if header {
				cell["header"] = true
			}
			cells = append(cells, cell)
		}
		rows = append(rows, map[string]any{"cells": cells})
	}
	return map[string]any{"type": "table", "rows": rows}
}

// chartWidget accepts either a full Chart.js config ({type, data, options})
// or a bare data object ({labels, datasets}).
func chartWidget(lang, body string) (map[string]any, bool) {
	var cfg map[string]any
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return nil, false
	}
	w := map[string]any{"type": "widget", "widgetType": lang}
	if data, ok := cfg["data"].(map[string]any); ok {
		w["data"] = data
		props := map[string]any{}
		for _, k := range []string{"type", "options"} {
			if v, ok := cfg[k]; ok {
				props[k] = v
			}
		}
		if len(props) > 0 {
			w["props"] = props
		}
	} else {
		w["data"] = cfg
	}
	return w, true
}

// rawLines returns the source lines backing a block node.
func rawLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return buf.String()
}

// inlineText gets the plain text of a node's inline children.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(inlineText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}

// leadingNumber parses "020-market" as 20.
func leadingNumber(s string) (float64, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return float64(n), true
}
