package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/storm-crypto/BettaFish/internal/artifact"
	"github.com/storm-crypto/BettaFish/internal/doctree"
)

// Font sizes in half-points.
const (
	titleSize   = "40"
	chapterSize = "32"
	headingSize = "26"
)

// DOCXExporter writes a plain-text Word rendition of the report.
type DOCXExporter struct {
	OutputDir string
}

func (e *DOCXExporter) Format() string { return "docx" }

func (e *DOCXExporter) Export(doc *doctree.Document, names artifact.Names) (string, int64, error) {
	path := names.DOCXPath(e.OutputDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, fmt.Errorf("create docx dir: %w", err)
	}

	w := docx.New().WithDefaultTheme()
	w.AddParagraph().AddText(doc.Title).Size(titleSize).Bold()
	for _, ch := range doc.Chapters {
		if ch == nil {
			continue
		}
		w.AddParagraph().AddText(ch.Title).Size(chapterSize).Bold()
		writeBlocks(w, ch.Blocks)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create docx: %w", err)
	}
	defer f.Close()
	n, err := w.WriteTo(f)
	if err != nil {
		return "", 0, fmt.Errorf("write docx: %w", err)
	}
	return path, n, nil
}

func writeBlocks(w *docx.Docx, blocks []*doctree.Block) {
	for _, b := range blocks {
		if b == nil || b.Malformed() {
			continue
		}
		switch b.Kind() {
		case doctree.KindHeading:
			w.AddParagraph().AddText(doctree.OwnText(b)).Size(headingSize).Bold()
			writeBlocks(w, b.Blocks)
		case doctree.KindList:
			ordered := b.String("listType") == "ordered"
			for i, it := range b.Items {
				seq, ok := it.Sequence()
				if !ok {
					continue
				}
				marker := "• "
				if ordered {
					marker = strconv.Itoa(i+1) + ". "
				}
				var parts []string
				for _, c := range seq {
					if c != nil && !c.Malformed() {
						parts = append(parts, doctree.Text(c))
					}
				}
				w.AddParagraph().AddText(marker + strings.Join(parts, " "))
			}
			writeBlocks(w, b.Blocks)
		case doctree.KindTable:
			for _, row := range rowTexts(b) {
				w.AddParagraph().AddText(strings.Join(row, " | "))
			}
			writeBlocks(w, b.Blocks)
		case doctree.KindWidget:
			if doctree.IsChart(b) {
				w.AddParagraph().AddText(chartCaption(b)).Italic()
			}
			writeBlocks(w, b.Blocks)
		case doctree.KindHR:
			w.AddParagraph()
			writeBlocks(w, b.Blocks)
		case doctree.KindParagraph, doctree.KindMarkdown, doctree.KindCallout, doctree.KindBlockquote,
			doctree.KindCode, doctree.KindMath, doctree.KindUnknown:
			if t := doctree.OwnText(b); t != "" {
				w.AddParagraph().AddText(t)
			}
			writeBlocks(w, b.Blocks)
		}
	}
}
