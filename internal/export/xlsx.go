package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/storm-crypto/BettaFish/internal/artifact"
	"github.com/storm-crypto/BettaFish/internal/doctree"
)

const summarySheet = "Summary"

// XLSXExporter writes a workbook with a chapter summary and one sheet per table.
type XLSXExporter struct {
	OutputDir string
}

func (e *XLSXExporter) Format() string { return "xlsx" }

func (e *XLSXExporter) Export(doc *doctree.Document, names artifact.Names) (string, int64, error) {
	path := names.XLSXPath(e.OutputDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, fmt.Errorf("create xlsx dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return "", 0, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(summarySheet, "A1", &[]any{"Chapter ID", "Title", "Blocks", "Charts", "Tables"}); err != nil {
		return "", 0, err
	}
	for i, ch := range doc.Chapters {
		if ch == nil {
			continue
		}
		blocks, tables := 0, 0
		doctree.Walk(ch.Blocks, func(b *doctree.Block, _ int) {
			blocks++
			if b.Kind() == doctree.KindTable {
				tables++
			}
		})
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{ch.ChapterID, ch.Title, blocks, doctree.CountCharts(ch.Blocks), tables}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return "", 0, err
		}
	}

	for i, ref := range doc.Tables() {
		sheet := fmt.Sprintf("Table %d", i+1)
		if _, err := f.NewSheet(sheet); err != nil {
			return "", 0, fmt.Errorf("add sheet %s: %w", sheet, err)
		}
		if err := f.SetCellValue(sheet, "A1", ref.Chapter.Title); err != nil {
			return "", 0, err
		}
		for r, cells := range rowTexts(ref.Block) {
			cell, _ := excelize.CoordinatesToCellName(1, r+3)
			row := make([]any, len(cells))
			for c, v := range cells {
				row[c] = v
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return "", 0, err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", 0, fmt.Errorf("save xlsx: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	return path, info.Size(), nil
}
