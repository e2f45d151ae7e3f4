package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/storm-crypto/BettaFish/internal/render"
)

// Stage is a state of one regeneration.
type Stage string

const (
	StageStart           Stage = "start"
	StageRunSelected     Stage = "run_selected"
	StageManifestLoaded  Stage = "manifest_loaded"
	StageFragmentsLoaded Stage = "fragments_loaded"
	StageValidated       Stage = "validated"
	StageComposed        Stage = "composed"
	StageIRSaved         Stage = "ir_saved"
	StageRendered        Stage = "rendered"
	StageFailed          Stage = "failed"
)

// maxErrorExcerpts bounds the messages kept per invalid fragment.
const maxErrorExcerpts = 3

// InvalidFragment is a fragment that failed structural validation.
type InvalidFragment struct {
	ChapterID string   `json:"chapterId"`
	Source    string   `json:"source"`
	Errors    []string `json:"errors"`
}

// ExportResult reports one optional side export.
type ExportResult struct {
	Format string `json:"format"`
	Path   string `json:"path,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of one regeneration.
type Result struct {
	ID       string `json:"id"`
	Stage    Stage  `json:"stage"`
	FailedAt Stage  `json:"failedAt,omitempty"`
	Error    string `json:"error,omitempty"`

	RunName   string `json:"runName,omitempty"`
	ReportID  string `json:"reportId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	Slug      string `json:"slug,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	Fragments int               `json:"fragments"`
	Invalid   []InvalidFragment `json:"invalid"`
	Chapters  int               `json:"chapters"`
	Charts    int               `json:"charts"`

	IRPath   string            `json:"irPath,omitempty"`
	IRSize   int64             `json:"irSize,omitempty"`
	IRHash   string            `json:"irHash,omitempty"`
	HTMLPath string            `json:"htmlPath,omitempty"`
	HTMLSize int64             `json:"htmlSize,omitempty"`
	Stats    render.ChartStats `json:"chartStats"`
	Exports  []ExportResult    `json:"exports,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	err error
}

// Err returns the failure, or nil when the run reached StageRendered.
func (r *Result) Err() error { return r.err }

// OK reports whether the run reached StageRendered.
func (r *Result) OK() bool { return r.Stage == StageRendered }

// ExitCode maps the result to the process status: 0 rendered, 1 failed.
func (r *Result) ExitCode() int {
	if r.OK() {
		return 0
	}
	return 1
}

func (r *Result) advance(s Stage) {
	r.Stage = s
}

func (r *Result) fail(at Stage, err error) {
	r.err = NewStageError(at, err)
	r.FailedAt = at
	r.Stage = StageFailed
	r.Error = r.err.Error()
}

// History is a thread-safe in-memory registry of recent results with TTL eviction.
type History struct {
	mu      sync.Mutex
	results map[string]*Result
	ttl     time.Duration
}

func NewHistory(ttl time.Duration) *History {
	return &History{
		results: make(map[string]*Result),
		ttl:     ttl,
	}
}

func (h *History) Put(r *Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results[r.ID] = r
}

func (h *History) Get(id string) *Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.results[id]
}

// List returns results newest first.
func (h *History) List() []*Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Result, 0, len(h.results))
	for _, r := range h.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Cleanup removes expired results.
func (h *History) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	for id, r := range h.results {
		if now.Sub(r.FinishedAt) > h.ttl {
			delete(h.results, id)
		}
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
