package render

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/storm-crypto/BettaFish/internal/doctree"
)

func newRenderer() *HTMLRenderer {
	return NewHTMLRenderer(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func renderDoc(t *testing.T, js string) (*html.Node, Result) {
	t.Helper()
	doc, err := doctree.Decode([]byte(js))
	require.NoError(t, err)
	res, err := newRenderer().Render(doc)
	require.NoError(t, err)
	root, err := html.Parse(bytes.NewReader(res.Content))
	require.NoError(t, err)
	return root, res
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

const chartJS = `{"type":"widget","widgetType":"chart.js-line","data":{"labels":["a","b"],"datasets":[{"label":"s","data":[1,2]}]}}`

func TestRender_Structure(t *testing.T) {
	js := `{"reportId":"r","title":"Demo <Report>","generatedAt":"2025-03-01T12:00:00Z",
		"toc":[{"chapterId":"c1","title":"One","anchor":"one"},{"chapterId":"c2","title":"Two","anchor":"two"}],
		"chapters":[
			{"chapterId":"c1","title":"One","anchor":"one","blocks":[
				{"type":"heading","level":3,"text":"Sub"},
				{"type":"paragraph","inlines":[{"text":"bold","marks":["bold"]}," and ",{"text":"link","marks":[{"type":"link","href":"https://example.com"}]},{"text":"bad","marks":[{"type":"link","href":"javascript:alert(1)"}]}]},
				{"type":"list","listType":"ordered","items":[[` + chartJS + `],"plain"]}
			]},
			{"chapterId":"c2","title":"Two","anchor":"two","blocks":[
				{"type":"table","rows":[{"cells":[{"header":true,"text":"H"},{"colspan":2,"blocks":[{"type":"paragraph","text":"cell"}]}]}]},
				{"type":"callout","tone":"warning","title":"Note","blocks":[` + chartJS + `]},
				{"type":"code","lang":"go","content":"x := 1"},
				{"type":"hr"},
				{"type":"math","latex":"e=mc^2"},
				{"type":"sparkline","text":"odd","blocks":[{"type":"paragraph","text":"inside"}]},
				"stray"
			]}
		]}`
	root, res := renderDoc(t, js)

	titles := findAll(root, byTag("title"))
	require.Len(t, titles, 1)
	assert.Equal(t, "Demo <Report>", textContent(titles[0]))

	sections := findAll(root, byTag("section"))
	require.Len(t, sections, 2)
	assert.Equal(t, "one", attrOf(sections[0], "id"))

	tocLinks := findAll(root, func(n *html.Node) bool { return n.Data == "a" && strings.HasPrefix(attrOf(n, "href"), "#") })
	assert.Len(t, tocLinks, 2)

	assert.Len(t, findAll(root, byTag("h3")), 1)
	assert.Len(t, findAll(root, byTag("strong")), 2, "bold mark and callout title")
	links := findAll(root, func(n *html.Node) bool { return n.Data == "a" && attrOf(n, "href") == "https://example.com" })
	assert.Len(t, links, 1)
	assert.Empty(t, findAll(root, func(n *html.Node) bool { return strings.HasPrefix(attrOf(n, "href"), "javascript:") }))

	ol := findAll(root, byTag("ol"))
	require.NotEmpty(t, ol)
	items := findAll(ol[len(ol)-1], byTag("li"))
	require.Len(t, items, 2)
	assert.Equal(t, "plain", textContent(items[1]))

	assert.Len(t, findAll(root, byTag("th")), 1)
	tds := findAll(root, byTag("td"))
	require.Len(t, tds, 1)
	assert.Equal(t, "2", attrOf(tds[0], "colspan"))

	canvases := findAll(root, byTag("canvas"))
	assert.Len(t, canvases, 2)
	callout := findAll(root, func(n *html.Node) bool { return attrOf(n, "class") == "callout callout-warning" })
	require.Len(t, callout, 1)
	assert.Len(t, findAll(callout[0], byTag("canvas")), 1, "generic children render inside the callout")

	unknown := findAll(root, func(n *html.Node) bool { return attrOf(n, "data-block-type") == "sparkline" })
	require.Len(t, unknown, 1)
	assert.Contains(t, textContent(unknown[0]), "inside")

	assert.Len(t, findAll(root, byTag("hr")), 1)
	assert.Len(t, findAll(root, byTag("pre")), 1)

	assert.Equal(t, ChartStats{Total: 2, Valid: 2}, res.Charts)
}

func TestRender_ChartConfigEmbedded(t *testing.T) {
	root, res := renderDoc(t, `{"chapters":[{"chapterId":"c","blocks":[
		{"type":"widget","widgetType":"chart.js/bar","data":{"datasets":[{"data":["3"]}]}},
		{"type":"widget","widgetType":"chart.js/bar"}
	]}]}`)

	assert.Equal(t, ChartStats{Total: 2, RepairedLocally: 1, Failed: 1}, res.Charts)
	assert.Equal(t, 1, res.Charts.Repaired())

	canvases := findAll(root, byTag("canvas"))
	require.Len(t, canvases, 1)
	cfgID := attrOf(canvases[0], "data-chart-config")
	scripts := findAll(root, func(n *html.Node) bool { return attrOf(n, "id") == cfgID })
	require.Len(t, scripts, 1)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(textContent(scripts[0])), &cfg))
	assert.Equal(t, "bar", cfg["type"])

	failed := findAll(root, func(n *html.Node) bool { return attrOf(n, "class") == "chart-failed" })
	require.Len(t, failed, 1)
	assert.Contains(t, textContent(failed[0]), "missing data")

	loader := findAll(root, func(n *html.Node) bool { return n.Data == "script" && attrOf(n, "src") == ChartJSURL })
	assert.Len(t, loader, 1)
}

func TestRender_NoChartsNoScripts(t *testing.T) {
	root, res := renderDoc(t, `{"chapters":[{"chapterId":"c","blocks":[{"type":"paragraph","text":"hi"}]}]}`)
	assert.Empty(t, findAll(root, byTag("script")))
	assert.Equal(t, ChartStats{}, res.Charts)
}

func TestRender_Markdown(t *testing.T) {
	root, _ := renderDoc(t, `{"chapters":[{"chapterId":"c","blocks":[{"type":"markdown","content":"Some **bold** text\n\n<script>alert(1)</script>"}]}]}`)
	md := findAll(root, func(n *html.Node) bool { return attrOf(n, "class") == "markdown" })
	require.Len(t, md, 1)
	assert.Len(t, findAll(md[0], byTag("strong")), 1)
	assert.Empty(t, findAll(md[0], byTag("script")), "raw HTML is not passed through")
}

func TestRender_ChartInsideJSONIsEscaped(t *testing.T) {
	_, res := renderDoc(t, `{"chapters":[{"chapterId":"c","blocks":[{"type":"widget","widgetType":"chart.js/bar","data":{"labels":["</script><b>x"],"datasets":[{"data":[1]}]}}]}]}`)
	assert.NotContains(t, string(res.Content), "</script><b>x")
}

func TestRender_NilDocument(t *testing.T) {
	_, err := newRenderer().Render(nil)
	assert.Error(t, err)
}
