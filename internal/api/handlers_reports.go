package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type reportInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
	URL     string    `json:"url"`
}

// handleListReports lists rendered reports, newest first.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.HTMLOutputDir())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		jsonError(w, "failed to list reports: "+err.Error(), http.StatusInternalServerError)
		return
	}

	reports := []reportInfo{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".html") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		reports = append(reports, reportInfo{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			URL:     "/reports/" + e.Name(),
		})
	}
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].ModTime.Equal(reports[j].ModTime) {
			return reports[i].ModTime.After(reports[j].ModTime)
		}
		return reports[i].Name > reports[j].Name
	})
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleServeReport(w http.ResponseWriter, r *http.Request) {
	path, ok := s.reportPath(w, chi.URLParam(r, "name"))
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, path)
}

// handleDeleteReport removes one rendered report.
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	path, ok := s.reportPath(w, chi.URLParam(r, "name"))
	if !ok {
		return
	}
	if err := os.Remove(path); err != nil {
		jsonError(w, "failed to delete report: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": filepath.Base(path)})
}

// reportPath resolves name inside the HTML output dir, writing the error
// response itself when it cannot.
func (s *Server) reportPath(w http.ResponseWriter, name string) (string, bool) {
	clean := sanitizeFilename(name)
	if clean != name || !strings.HasSuffix(clean, ".html") {
		jsonError(w, "invalid report name", http.StatusBadRequest)
		return "", false
	}
	path := filepath.Join(s.cfg.HTMLOutputDir(), clean)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		jsonError(w, "report not found", http.StatusNotFound)
		return "", false
	}
	return path, true
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
