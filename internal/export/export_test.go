package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fumiama/go-docx"
	"github.com/xuri/excelize/v2"

	"github.com/storm-crypto/BettaFish/internal/artifact"
	"github.com/storm-crypto/BettaFish/internal/doctree"
)

const sampleIR = `{"reportId":"r","title":"Demo","metadata":{},"chapters":[
	{"chapterId":"intro","title":"Intro","blocks":[
		{"type":"heading","level":2,"text":"Overview"},
		{"type":"paragraph","text":"First paragraph."},
		{"type":"list","listType":"ordered","items":[[{"type":"paragraph","text":"alpha"}],[{"type":"paragraph","text":"beta"}]]},
		{"type":"widget","widgetType":"chart.js/bar","title":"Share","data":{}}
	]},
	{"chapterId":"data","title":"Data","blocks":[
		{"type":"callout","blocks":[
			{"type":"table","rows":[
				{"cells":[{"header":true,"text":"Region"},{"header":true,"text":"Share"}]},
				{"cells":[{"blocks":[{"type":"paragraph","text":"EU"}]},{"text":"40%"}]},
				"bad row"
			]}
		]}
	]}
]}`

func sampleDoc(t *testing.T) *doctree.Document {
	t.Helper()
	doc, err := doctree.Decode([]byte(sampleIR))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return doc
}

var names = artifact.NewNames("Demo", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), "20060102_150405")

func paragraphTexts(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		t.Fatalf("parse docx: %v", err)
	}
	var out []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		var buf strings.Builder
		for _, child := range para.Children {
			run, ok := child.(*docx.Run)
			if !ok {
				continue
			}
			for _, rc := range run.Children {
				if txt, ok := rc.(*docx.Text); ok {
					buf.WriteString(txt.Text)
				}
			}
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func TestDOCXExporter(t *testing.T) {
	out := t.TempDir()
	e := &DOCXExporter{OutputDir: out}
	path, size, err := e.Export(sampleDoc(t), names)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if want := filepath.Join(out, "docx", "report_docx_Demo_20250301_120000.docx"); path != want {
		t.Errorf("expected path %q, got %q", want, path)
	}
	if size <= 0 {
		t.Errorf("expected positive size, got %d", size)
	}

	got := paragraphTexts(t, path)
	want := []string{"Demo", "Intro", "Overview", "First paragraph.", "1. alpha", "2. beta", "[Chart: Share]", "Data", "Region | Share", "EU | 40%"}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("unexpected paragraphs:\n got %q\nwant %q", got, want)
	}
}

func TestXLSXExporter(t *testing.T) {
	out := t.TempDir()
	e := &XLSXExporter{OutputDir: out}
	path, size, err := e.Export(sampleDoc(t), names)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if size <= 0 {
		t.Errorf("expected positive size, got %d", size)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Summary" || sheets[1] != "Table 1" {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	rows, err := f.GetRows("Summary")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 chapter rows, got %v", rows)
	}
	if got := strings.Join(rows[1], ","); got != "intro,Intro,6,1,0" {
		t.Errorf("unexpected intro row %q", got)
	}
	if got := strings.Join(rows[2], ","); got != "data,Data,3,0,1" {
		t.Errorf("unexpected data row %q", got)
	}

	table, err := f.GetRows("Table 1")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(table) != 4 {
		t.Fatalf("expected title, blank and 2 table rows, got %v", table)
	}
	if table[0][0] != "Data" {
		t.Errorf("expected chapter title in A1, got %q", table[0][0])
	}
	if got := strings.Join(table[3], ","); got != "EU,40%" {
		t.Errorf("unexpected table row %q", got)
	}
}

func TestExporters_FailOnBlockedDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "out")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc := sampleDoc(t)
	if _, _, err := (&DOCXExporter{OutputDir: blocker}).Export(doc, names); err == nil {
		t.Error("expected docx export to fail")
	}
	if _, _, err := (&XLSXExporter{OutputDir: blocker}).Export(doc, names); err == nil {
		t.Error("expected xlsx export to fail")
	}
}
