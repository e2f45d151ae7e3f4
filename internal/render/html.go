// Package render turns a document tree into a standalone HTML report.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/storm-crypto/BettaFish/internal/doctree"
)

// ChartJSURL is loaded by every report that contains a chart.
const ChartJSURL = "https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js"

const stylesheet = `body{font-family:system-ui,sans-serif;max-width:960px;margin:0 auto;padding:2rem;line-height:1.6;color:#1f2933}
nav.toc ol{padding-left:1.2rem}
table{border-collapse:collapse;margin:1rem 0}th,td{border:1px solid #cbd2d9;padding:.35rem .6rem}
.callout{border-left:4px solid #3e7bfa;background:#f0f4ff;padding:.6rem 1rem;margin:1rem 0}
.chart{position:relative;margin:1.5rem 0}
.chart-failed,.widget{border:1px dashed #e12d39;padding:.6rem 1rem;color:#8a1c24}
pre{background:#f5f7fa;padding:.8rem;overflow-x:auto}`

const chartBootstrap = `document.querySelectorAll("canvas[data-chart-config]").forEach(function (c) {
  var src = document.getElementById(c.getAttribute("data-chart-config"));
  if (!src || typeof Chart === "undefined") { return; }
  new Chart(c, JSON.parse(src.textContent));
});`

// Result is the rendered report plus chart statistics.
type Result struct {
	Content []byte
	Charts  ChartStats
}

type HTMLRenderer struct {
	Charts ChartValidator
	md     goldmark.Markdown
	log    *slog.Logger
}

func NewHTMLRenderer(log *slog.Logger) *HTMLRenderer {
	if log == nil {
		log = slog.Default()
	}
	return &HTMLRenderer{md: goldmark.New(), log: log}
}

// render holds the state of one Render call.
type render struct {
	r      *HTMLRenderer
	stats  ChartStats
	charts int
}

func (r *HTMLRenderer) Render(doc *doctree.Document) (Result, error) {
	if doc == nil {
		return Result{}, fmt.Errorf("render: nil document")
	}
	if r.md == nil {
		r.md = goldmark.New()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	st := &render{r: r}

	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	htmlEl := element(atom.Html, attr("lang", "en"))
	root.AppendChild(htmlEl)

	head := element(atom.Head)
	head.AppendChild(element(atom.Meta, attr("charset", "utf-8")))
	head.AppendChild(withText(element(atom.Title), doc.Title))
	head.AppendChild(withText(element(atom.Style), stylesheet))
	htmlEl.AppendChild(head)

	body := element(atom.Body)
	htmlEl.AppendChild(body)

	header := element(atom.Header)
	header.AppendChild(withText(element(atom.H1), doc.Title))
	if doc.GeneratedAt != "" {
		meta := element(atom.P, attr("class", "meta"))
		meta.AppendChild(withText(element(atom.Time, attr("datetime", doc.GeneratedAt)), doc.GeneratedAt))
		header.AppendChild(meta)
	}
	body.AppendChild(header)

	if len(doc.TOC) > 0 {
		nav := element(atom.Nav, attr("class", "toc"))
		ol := element(atom.Ol)
		for _, e := range doc.TOC {
			li := element(atom.Li)
			li.AppendChild(withText(element(atom.A, attr("href", "#"+e.Anchor)), e.Title))
			ol.AppendChild(li)
		}
		nav.AppendChild(ol)
		body.AppendChild(nav)
	}

	content := element(atom.Main)
	for _, ch := range doc.Chapters {
		if ch == nil {
			continue
		}
		sec := element(atom.Section, attr("class", "chapter"), attr("data-chapter-id", ch.ChapterID))
		if ch.Anchor != "" {
			sec.Attr = append(sec.Attr, attr("id", ch.Anchor))
		}
		sec.AppendChild(withText(element(atom.H2), ch.Title))
		st.blocks(sec, ch.Blocks)
		content.AppendChild(sec)
	}
	body.AppendChild(content)

	if st.charts > 0 {
		head.AppendChild(element(atom.Script, attr("src", ChartJSURL)))
		body.AppendChild(withText(element(atom.Script), chartBootstrap))
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return Result{}, fmt.Errorf("render html: %w", err)
	}
	return Result{Content: buf.Bytes(), Charts: st.stats}, nil
}

func (st *render) blocks(parent *html.Node, blocks []*doctree.Block) {
	for _, b := range blocks {
		if b == nil || b.Malformed() {
			continue
		}
		st.block(parent, b)
	}
}

// block renders one node. Every arm leaves host pointing at the element
// that receives the generic children.
func (st *render) block(parent *html.Node, b *doctree.Block) {
	host := parent
	switch b.Kind() {
	case doctree.KindHeading:
		level := clamp(intField(b, "level", 3), 1, 6)
		h := element(headingAtoms[level-1])
		if a := b.String("anchor"); a != "" {
			h.Attr = append(h.Attr, attr("id", a))
		}
		st.inline(h, b)
		parent.AppendChild(h)

	case doctree.KindParagraph:
		p := element(atom.P)
		st.inline(p, b)
		parent.AppendChild(p)

	case doctree.KindMarkdown:
		div := element(atom.Div, attr("class", "markdown"))
		src := b.String("content")
		if src == "" {
			src = b.String("text")
		}
		st.markdown(div, src)
		parent.AppendChild(div)

	case doctree.KindList:
		tag := atom.Ul
		if b.String("listType") == "ordered" || b.Fields["ordered"] == true {
			tag = atom.Ol
		}
		list := element(tag)
		for _, it := range b.Items {
			li := element(atom.Li)
			if seq, ok := it.Sequence(); ok {
				st.blocks(li, seq)
			} else {
				li.AppendChild(text(rawText(it.Raw())))
			}
			list.AppendChild(li)
		}
		parent.AppendChild(list)

	case doctree.KindTable:
		parent.AppendChild(st.table(b))

	case doctree.KindWidget:
		if doctree.IsChart(b) {
			parent.AppendChild(st.chart(b))
		} else {
			div := element(atom.Div, attr("class", "widget"), attr("data-widget-type", b.WidgetType))
			div.AppendChild(text("Unsupported widget: " + b.WidgetType))
			parent.AppendChild(div)
			host = div
		}

	case doctree.KindCallout:
		tone := b.String("tone")
		if tone == "" {
			tone = "info"
		}
		div := element(atom.Div, attr("class", "callout callout-"+tone))
		if title := b.String("title"); title != "" {
			div.AppendChild(withText(element(atom.Strong), title))
		}
		if t := b.String("text"); t != "" {
			div.AppendChild(withText(element(atom.P), t))
		}
		parent.AppendChild(div)
		host = div

	case doctree.KindBlockquote:
		q := element(atom.Blockquote)
		if _, ok := b.Fields["inlines"]; ok || b.String("text") != "" {
			p := element(atom.P)
			st.inline(p, b)
			q.AppendChild(p)
		}
		parent.AppendChild(q)
		host = q

	case doctree.KindCode:
		code := element(atom.Code)
		if lang := b.String("lang"); lang != "" {
			code.Attr = append(code.Attr, attr("class", "language-"+lang))
		}
		code.AppendChild(text(b.String("content")))
		pre := element(atom.Pre)
		pre.AppendChild(code)
		parent.AppendChild(pre)

	case doctree.KindHR:
		parent.AppendChild(element(atom.Hr))

	case doctree.KindMath:
		latex := b.String("latex")
		if latex == "" {
			latex = b.String("content")
		}
		parent.AppendChild(withText(element(atom.Div, attr("class", "math")), `\[`+latex+`\]`))

	case doctree.KindUnknown:
		div := element(atom.Div, attr("class", "block-unknown"), attr("data-block-type", b.Type))
		if t := b.String("text"); t != "" {
			div.AppendChild(withText(element(atom.P), t))
		}
		parent.AppendChild(div)
		host = div
	}

	st.blocks(host, b.Blocks)
}

var headingAtoms = [6]atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}

func (st *render) table(b *doctree.Block) *html.Node {
	table := element(atom.Table)
	if c := b.String("caption"); c != "" {
		table.AppendChild(withText(element(atom.Caption), c))
	}
	tbody := element(atom.Tbody)
	for _, row := range b.Rows {
		if row == nil || row.Malformed() {
			continue
		}
		tr := element(atom.Tr)
		for _, cell := range row.Cells {
			if cell == nil || cell.Malformed() {
				continue
			}
			tag := atom.Td
			if cell.Fields["header"] == true {
				tag = atom.Th
			}
			td := element(tag)
			for _, span := range []string{"colspan", "rowspan"} {
				if n := numberField(cell.Fields[span]); n > 1 {
					td.Attr = append(td.Attr, attr(span, strconv.Itoa(n)))
				}
			}
			if len(cell.Blocks) > 0 {
				st.blocks(td, cell.Blocks)
			} else {
				td.AppendChild(text(cell.String("text")))
			}
			tr.AppendChild(td)
		}
		tbody.AppendChild(tr)
	}
	table.AppendChild(tbody)
	return table
}

func (st *render) chart(b *doctree.Block) *html.Node {
	check := st.r.Charts.Check(b)
	var cfg []byte
	if check.Status != ChartFailed {
		var err error
		if cfg, err = json.Marshal(check.Config); err != nil {
			check = ChartCheck{Status: ChartFailed, Problems: []string{err.Error()}}
		}
	}
	st.stats.record(check.Status)

	if check.Status == ChartFailed {
		st.r.log.Warn("chart failed validation", "widget", b.WidgetType, "problems", check.Problems)
		div := element(atom.Div, attr("class", "chart-failed"), attr("data-widget-type", b.WidgetType))
		div.AppendChild(text("Chart unavailable: " + strings.Join(check.Problems, "; ")))
		return div
	}
	if check.Status == ChartRepaired {
		st.r.log.Debug("chart repaired", "widget", b.WidgetType, "problems", check.Problems)
	}

	st.charts++
	id := fmt.Sprintf("chart-%d", st.charts)
	div := element(atom.Div, attr("class", "chart"), attr("data-chart-status", check.Status.String()))
	if title := b.String("title"); title != "" {
		div.AppendChild(withText(element(atom.P, attr("class", "chart-title")), title))
	}
	div.AppendChild(element(atom.Canvas, attr("id", id), attr("data-chart-config", id+"-config")))
	div.AppendChild(withText(element(atom.Script, attr("type", "application/json"), attr("id", id+"-config")), string(cfg)))
	return div
}

func (st *render) markdown(parent *html.Node, src string) {
	var buf bytes.Buffer
	if err := st.r.md.Convert([]byte(src), &buf); err != nil {
		parent.AppendChild(text(src))
		return
	}
	ctx := element(atom.Div)
	nodes, err := html.ParseFragment(&buf, ctx)
	if err != nil {
		parent.AppendChild(text(src))
		return
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
}

// inline renders "inlines" when present, else "text".
func (st *render) inline(parent *html.Node, b *doctree.Block) {
	inlines, ok := b.Fields["inlines"].([]any)
	if !ok {
		parent.AppendChild(text(b.String("text")))
		return
	}
	for _, in := range inlines {
		switch v := in.(type) {
		case string:
			parent.AppendChild(text(v))
		case map[string]any:
			s, _ := v["text"].(string)
			node := text(s)
			marks, _ := v["marks"].([]any)
			for i := len(marks) - 1; i >= 0; i-- {
				if wrap := markElement(marks[i]); wrap != nil {
					wrap.AppendChild(node)
					node = wrap
				}
			}
			parent.AppendChild(node)
		}
	}
}

func markElement(mark any) *html.Node {
	var kind, href string
	switch m := mark.(type) {
	case string:
		kind = m
	case map[string]any:
		kind, _ = m["type"].(string)
		href, _ = m["href"].(string)
	}
	switch kind {
	case "bold", "strong":
		return element(atom.Strong)
	case "italic", "em":
		return element(atom.Em)
	case "code":
		return element(atom.Code)
	case "underline":
		return element(atom.U)
	case "strike", "strikethrough":
		return element(atom.S)
	case "link":
		if !safeHref(href) {
			return nil
		}
		return element(atom.A, attr("href", href))
	}
	return nil
}

func safeHref(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	for _, p := range []string{"http://", "https://", "mailto:", "#", "/"} {
		if strings.HasPrefix(h, p) {
			return true
		}
	}
	return false
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func withText(n *html.Node, s string) *html.Node {
	n.AppendChild(text(s))
	return n
}

func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func intField(b *doctree.Block, key string, fallback int) int {
	if n := numberField(b.Fields[key]); n != 0 {
		return n
	}
	return fallback
}

func numberField(v any) int {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) {
			return int(t)
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
	case int:
		return t
	}
	return 0
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
