package pipeline

import (
	"log/slog"

	"github.com/storm-crypto/BettaFish/internal/artifact"
	"github.com/storm-crypto/BettaFish/internal/doctree"
)

// maxConcurrentExports bounds how many side exports write at once.
const maxConcurrentExports = 2

// runExports fans the exporters out and returns one result per exporter in
// registration order. A failed export is only logged.
func runExports(exporters []Exporter, doc *doctree.Document, names artifact.Names, log *slog.Logger) []ExportResult {
	type exportResult struct {
		res ExportResult
		idx int
	}
	results := make(chan exportResult, len(exporters))
	sem := make(chan struct{}, maxConcurrentExports)

	for i, e := range exporters {
		sem <- struct{}{}
		go func(i int, e Exporter) {
			defer func() { <-sem }()
			er := ExportResult{Format: e.Format()}
			path, n, err := e.Export(doc, names)
			if err != nil {
				er.Error = err.Error()
				log.Warn("export failed", "format", er.Format, "error", err)
			} else {
				er.Path, er.Size = path, n
				log.Info("exported", "format", er.Format, "path", path, "bytes", n)
			}
			results <- exportResult{res: er, idx: i}
		}(i, e)
	}

	out := make([]ExportResult, len(exporters))
	for range exporters {
		r := <-results
		out[r.idx] = r.res
	}
	return out
}
