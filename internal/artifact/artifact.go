// Package artifact names and writes the files produced by one regeneration.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/storm-crypto/BettaFish/internal/doctree"
)

const (
	maxSlugLen   = 60
	fallbackSlug = "report"
)

var unsafeSlugChars = regexp.MustCompile(`[^A-Za-z0-9 _-]`)

// Slug keeps ASCII letters, digits, spaces, hyphens and underscores, turns
// spaces into underscores and truncates to 60 characters.
func Slug(text string) string {
	s := unsafeSlugChars.ReplaceAllString(text, "")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxSlugLen {
		s = s[:maxSlugLen]
	}
	if s == "" {
		return fallbackSlug
	}
	return s
}

// BuildSlug derives the slug from metadata query, title or reportId, then
// the manifest's report id. Non-empty scalars count, so a numeric query works.
func BuildSlug(metadata map[string]any, reportID string) string {
	for _, key := range []string{"query", "title", "reportId"} {
		if s := scalarString(metadata[key]); s != "" {
			return Slug(s)
		}
	}
	return Slug(reportID)
}

// scalarString renders a metadata scalar; nil, false, zero, blank strings
// and containers are empty.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case bool:
		if t {
			return "true"
		}
	case float64:
		if t != 0 {
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	case int:
		if t != 0 {
			return strconv.Itoa(t)
		}
	case int64:
		if t != 0 {
			return strconv.FormatInt(t, 10)
		}
	case json.Number:
		if f, err := t.Float64(); err != nil || f != 0 {
			return t.String()
		}
	}
	return ""
}

// Names holds the slug and timestamp shared by every artifact of one run.
type Names struct {
	Slug      string
	Timestamp string
}

func NewNames(slug string, at time.Time, layout string) Names {
	return Names{Slug: slug, Timestamp: at.Format(layout)}
}

func (n Names) IRPath(irDir string) string {
	return filepath.Join(irDir, fmt.Sprintf("report_ir_%s_%s_regen.json", n.Slug, n.Timestamp))
}

func (n Names) HTMLPath(outputDir string) string {
	return filepath.Join(outputDir, "html", fmt.Sprintf("report_html_%s_%s.html", n.Slug, n.Timestamp))
}

func (n Names) DOCXPath(outputDir string) string {
	return filepath.Join(outputDir, "docx", fmt.Sprintf("report_docx_%s_%s.docx", n.Slug, n.Timestamp))
}

func (n Names) XLSXPath(outputDir string) string {
	return filepath.Join(outputDir, "xlsx", fmt.Sprintf("report_tables_%s_%s.xlsx", n.Slug, n.Timestamp))
}

// EncodeIR serializes doc as indented JSON without HTML escaping.
func EncodeIR(doc *doctree.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveIR writes doc to path and returns the file size.
func SaveIR(doc *doctree.Document, path string) (int64, error) {
	data, err := EncodeIR(doc)
	if err != nil {
		return 0, err
	}
	return Write(path, data)
}

// LoadIR reads a document written by SaveIR.
func LoadIR(path string) (*doctree.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return doctree.Decode(data)
}

// Write creates the parent directories and writes content to path.
func Write(path string, content []byte) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return int64(len(content)), nil
}
