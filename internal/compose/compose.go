// Package compose stitches chapter fragments into one document tree.
package compose

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/storm-crypto/BettaFish/internal/doctree"
	"github.com/storm-crypto/BettaFish/internal/fragment"
)

// DocumentVersion is stamped on every composed document.
const DocumentVersion = "1.0"

type Composer struct {
	Now func() time.Time
}

func New() *Composer {
	return &Composer{Now: time.Now}
}

// Compose builds the document: chapters in fragment order (or by "order"
// when any chapter declares one), unique anchors and a table of contents.
func (c *Composer) Compose(reportID string, metadata map[string]any, frags []fragment.Fragment) (*doctree.Document, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	chapters := make([]*doctree.Chapter, 0, len(frags))
	ordered := false
	for _, f := range frags {
		ch, err := toChapter(f)
		if err != nil {
			return nil, err
		}
		if ch.Order != nil {
			ordered = true
		}
		chapters = append(chapters, ch)
	}
	if ordered {
		sort.SliceStable(chapters, func(i, j int) bool {
			a, b := chapters[i].Order, chapters[j].Order
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return *a < *b
			}
		})
	}

	seen := map[string]int{}
	toc := make([]doctree.TOCEntry, 0, len(chapters))
	for i, ch := range chapters {
		if strings.TrimSpace(ch.Title) == "" {
			ch.Title = ch.ChapterID
		}
		ch.Anchor = uniqueAnchor(seen, anchorBase(ch, i+1))
		toc = append(toc, doctree.TOCEntry{ChapterID: ch.ChapterID, Title: ch.Title, Anchor: ch.Anchor})
	}

	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	return &doctree.Document{
		Version:     DocumentVersion,
		ReportID:    reportID,
		Title:       documentTitle(meta, reportID),
		Metadata:    meta,
		GeneratedAt: now().UTC().Format(time.RFC3339),
		TOC:         toc,
		Chapters:    chapters,
	}, nil
}

func toChapter(f fragment.Fragment) (*doctree.Chapter, error) {
	src := f.Data
	if src == nil {
		src = map[string]any{}
	}
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode fragment %s: %w", f.Source, err)
	}
	var ch doctree.Chapter
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("convert fragment %s: %w", f.Source, err)
	}
	if strings.TrimSpace(ch.ChapterID) == "" && f.Source != "" {
		base := filepath.Base(f.Source)
		ch.ChapterID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &ch, nil
}

func documentTitle(meta map[string]any, reportID string) string {
	for _, key := range []string{"title", "query"} {
		if s, ok := meta[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return reportID
}

func anchorBase(ch *doctree.Chapter, pos int) string {
	if a := Anchor(ch.Anchor); a != "" {
		return a
	}
	if a := Anchor(ch.ChapterID); a != "" {
		return a
	}
	return "section-" + strconv.Itoa(pos)
}

func uniqueAnchor(seen map[string]int, base string) string {
	seen[base]++
	if n := seen[base]; n > 1 {
		candidate := base + "-" + strconv.Itoa(n)
		for seen[candidate] > 0 {
			seen[base]++
			candidate = base + "-" + strconv.Itoa(seen[base])
		}
		seen[candidate]++
		return candidate
	}
	return base
}

// Anchor lowercases s and collapses every run of non-alphanumerics to "-".
// Letters outside ASCII are kept so that non-Latin ids remain addressable.
func Anchor(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
