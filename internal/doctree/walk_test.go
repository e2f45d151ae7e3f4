package doctree

import (
	"encoding/json"
	"testing"
)

const chart = `{"type":"widget","widgetType":"chart.js-line"}`

func mustBlocks(t *testing.T, src string) []*Block {
	t.Helper()
	var bs []*Block
	if err := json.Unmarshal([]byte(src), &bs); err != nil {
		t.Fatalf("decode blocks: %v", err)
	}
	return bs
}

func TestCountCharts_NestingLocations(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int
	}{
		{"top level", `[` + chart + `]`, 1},
		{"list item", `[{"type":"list","items":[[` + chart + `]]}]`, 1},
		{"table cell", `[{"type":"table","rows":[{"cells":[{"blocks":[` + chart + `]}]}]}]`, 1},
		{"generic blocks", `[{"type":"callout","blocks":[` + chart + `]}]`, 1},
		{"chart carrying children", `[{"type":"widget","widgetType":"chart.js/bar","blocks":[` + chart + `]}]`, 2},
		{"deep mix", `[{"type":"table","rows":[{"cells":[{"blocks":[{"type":"list","items":[[{"type":"callout","blocks":[` + chart + `]}]]}]}]}]}]`, 1},
		{"items ignored outside lists", `[{"type":"paragraph","items":[[` + chart + `]]}]`, 0},
		{"rows ignored outside tables", `[{"type":"list","rows":[{"cells":[{"blocks":[` + chart + `]}]}]}]`, 0},
		{"non chart widget", `[{"type":"widget","widgetType":"echarts-line"}]`, 0},
		{"prefix is case sensitive", `[{"type":"widget","widgetType":"Chart.js-line"}]`, 0},
		{"chart type on non widget", `[{"type":"paragraph","widgetType":"chart.js-line"}]`, 0},
		{"literal prefix only", `[{"type":"widget","widgetType":"chart.jsx"}]`, 1},
		{"empty", `[]`, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CountCharts(mustBlocks(t, tc.src))
			if got != tc.want {
				t.Errorf("expected %d charts, got %d", tc.want, got)
			}
		})
	}
}

func TestCountCharts_MalformedEntriesContributeZero(t *testing.T) {
	src := `[
		1, "text", null, true,
		{"type":"list","items":["scalar", 3, {"not":"a sequence"}, [` + chart + `]]},
		{"type":"table","rows":[{"nocells":1}, "row", {"cells":"nope"}, {"cells":["c", {"blocks":"notalist"}, {"blocks":[` + chart + `]}]}]},
		{"type":"widget","widgetType":42},
		{"type":7, "blocks":[` + chart + `]},
		{"type":"callout","blocks":{"type":"widget"}},
		` + chart + `
	]`
	got := CountCharts(mustBlocks(t, src))
	if got != 4 {
		t.Errorf("expected 4 charts, got %d", got)
	}
}

func TestCountCharts_GoConstructedNils(t *testing.T) {
	blocks := []*Block{
		nil,
		{Type: "list", Items: []ListItem{{Blocks: []*Block{nil, {Type: "widget", WidgetType: "chart.js-pie"}}}}},
		{Type: "table", Rows: []*Row{nil, {Cells: []*Cell{nil, {Blocks: []*Block{{Type: "widget", WidgetType: "chart.js-bar"}}}}}}},
	}
	if got := CountCharts(blocks); got != 2 {
		t.Errorf("expected 2 charts, got %d", got)
	}
}

func TestCountCharts_ReorderInvariant(t *testing.T) {
	src := `[
		{"type":"list","items":[[` + chart + `],[` + chart + `]]},
		{"type":"table","rows":[{"cells":[{"blocks":[` + chart + `]},{"blocks":[]}]}]},
		{"type":"paragraph","text":"x"},
		` + chart + `
	]`
	blocks := mustBlocks(t, src)
	want := CountCharts(blocks)
	if want != 4 {
		t.Fatalf("expected 4 charts in fixture, got %d", want)
	}

	// Reverse siblings at the top level, inside the list and inside the table row.
	rev := make([]*Block, len(blocks))
	for i, b := range blocks {
		rev[len(blocks)-1-i] = b
	}
	list := blocks[0]
	list.Items[0], list.Items[1] = list.Items[1], list.Items[0]
	row := blocks[1].Rows[0]
	row.Cells[0], row.Cells[1] = row.Cells[1], row.Cells[0]

	if got := CountCharts(rev); got != want {
		t.Errorf("expected %d after reordering, got %d", want, got)
	}
}

func TestChartCount_AdditiveOverChapters(t *testing.T) {
	a := mustBlocks(t, `[`+chart+`,{"type":"list","items":[[`+chart+`]]}]`)
	b := mustBlocks(t, `[{"type":"table","rows":[{"cells":[{"blocks":[`+chart+`]}]}]}]`)
	c := mustBlocks(t, `[{"type":"paragraph"}]`)
	doc := &Document{Chapters: []*Chapter{{Blocks: a}, nil, {Blocks: b}, {Blocks: c}}}

	sum := CountCharts(a) + CountCharts(b) + CountCharts(c)
	if got := doc.ChartCount(); got != sum || got != 3 {
		t.Errorf("expected chart count %d (=3), got %d", sum, got)
	}
	if got := len(doc.Charts()); got != 3 {
		t.Errorf("expected 3 chart blocks, got %d", got)
	}
}

func TestWalk_PreOrderWithDepth(t *testing.T) {
	blocks := mustBlocks(t, `[
		{"type":"callout","title":"a","blocks":[{"type":"paragraph","text":"b"}]},
		{"type":"list","items":[[{"type":"paragraph","text":"c"}]]}
	]`)
	type visit struct {
		kind  Kind
		depth int
	}
	var got []visit
	Walk(blocks, func(b *Block, depth int) {
		got = append(got, visit{b.Kind(), depth})
	})
	want := []visit{
		{KindCallout, 0},
		{KindParagraph, 1},
		{KindList, 0},
		{KindParagraph, 1},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d visits, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("visit[%d]: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestDocumentStats(t *testing.T) {
	doc := &Document{Chapters: []*Chapter{
		{Blocks: mustBlocks(t, `[{"type":"heading","text":"h"},{"type":"table","rows":[{"cells":[{"blocks":[`+chart+`]}]}]}]`)},
		{Blocks: mustBlocks(t, `[{"type":"mystery","blocks":[{"type":"paragraph"}]}]`)},
	}}
	s := doc.Stats()
	if s.Chapters != 2 || s.Blocks != 5 || s.Charts != 1 || s.Tables != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.MaxDepth != 2 {
		t.Errorf("expected max depth 2, got %d", s.MaxDepth)
	}
	if s.ByKind[KindUnknown] != 1 {
		t.Errorf("expected 1 unknown block, got %d", s.ByKind[KindUnknown])
	}
	if got := len(doc.Tables()); got != 1 {
		t.Errorf("expected 1 table, got %d", got)
	}
}

func TestText_FlattensInlinesAndChildren(t *testing.T) {
	blocks := mustBlocks(t, `[{"type":"callout","blocks":[
		{"type":"paragraph","inlines":[{"text":"Revenue "},{"text":"grew","marks":[{"type":"bold"}]}]},
		{"type":"paragraph","text":"fast"}
	]}]`)
	if got := Text(blocks[0]); got != "Revenue grew fast" {
		t.Errorf("expected %q, got %q", "Revenue grew fast", got)
	}
}
