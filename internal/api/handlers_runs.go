package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/storm-crypto/BettaFish/internal/artifact"
	"github.com/storm-crypto/BettaFish/internal/runs"
)

type runInfo struct {
	Name      string    `json:"name"`
	Dir       string    `json:"dir"`
	Manifest  string    `json:"manifest"`
	ModTime   time.Time `json:"modTime"`
	ReportID  string    `json:"reportId,omitempty"`
	CreatedAt string    `json:"createdAt,omitempty"`
}

func toRunInfo(run runs.Run) runInfo {
	info := runInfo{Name: run.Name, Dir: run.Dir, Manifest: filepath.Base(run.ManifestPath), ModTime: run.ModTime}
	if m, err := runs.ReadManifest(run); err == nil {
		info.ReportID = m.ReportID
		info.CreatedAt = m.CreatedAt
	}
	return info
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	list, err := runs.List(s.cfg.ChapterOutputDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		jsonError(w, "failed to list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]runInfo, 0, len(list))
	for _, run := range list {
		out = append(out, toRunInfo(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := runs.FindLatest(s.cfg.ChapterOutputDir)
	if errors.Is(err, runs.ErrNoRun) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toRunInfo(run))
}

// handleLatestStats reports the shape of the most recently saved IR.
func (s *Server) handleLatestStats(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.DocumentIROutputDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		jsonError(w, "failed to read IR dir: "+err.Error(), http.StatusInternalServerError)
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "report_ir_") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		jsonError(w, "no IR artifacts", http.StatusNotFound)
		return
	}
	sort.Slice(names, func(i, j int) bool {
		return modTime(filepath.Join(s.cfg.DocumentIROutputDir, names[i])).After(modTime(filepath.Join(s.cfg.DocumentIROutputDir, names[j])))
	})

	doc, err := artifact.LoadIR(filepath.Join(s.cfg.DocumentIROutputDir, names[0]))
	if err != nil {
		jsonError(w, "failed to load IR: "+err.Error(), http.StatusInternalServerError)
		return
	}
	stats := doc.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"file":     names[0],
		"reportId": doc.ReportID,
		"title":    doc.Title,
		"chapters": stats.Chapters,
		"blocks":   stats.Blocks,
		"charts":   stats.Charts,
		"tables":   stats.Tables,
		"maxDepth": stats.MaxDepth,
		"byKind":   stats.ByKind,
	})
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
