package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storm-crypto/BettaFish/internal/artifact"
	"github.com/storm-crypto/BettaFish/internal/config"
	"github.com/storm-crypto/BettaFish/internal/doctree"
	"github.com/storm-crypto/BettaFish/internal/fragment"
	"github.com/storm-crypto/BettaFish/internal/render"
	"github.com/storm-crypto/BettaFish/internal/runs"
)

// FragmentStore loads the fragments of one run directory.
type FragmentStore interface {
	Load(runDir string) ([]fragment.Fragment, error)
}

// FragmentValidator checks one fragment. Failures are advisory.
type FragmentValidator interface {
	Validate(f fragment.Fragment) (bool, []string)
}

// DocumentComposer merges fragments into a document tree.
type DocumentComposer interface {
	Compose(reportID string, metadata map[string]any, frags []fragment.Fragment) (*doctree.Document, error)
}

// Renderer turns a document tree into the final artifact.
type Renderer interface {
	Render(doc *doctree.Document) (render.Result, error)
}

// Exporter writes an optional side artifact.
type Exporter interface {
	Format() string
	Export(doc *doctree.Document, names artifact.Names) (path string, size int64, err error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store     FragmentStore
	Validator FragmentValidator
	Composer  DocumentComposer
	Renderer  Renderer
	Exporters []Exporter
	History   *History
}

// Orchestrator sequences one regeneration: select run, load manifest and
// fragments, validate, compose, save the IR and render.
type Orchestrator struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger

	Now   func() time.Time
	NewID func() string

	mu sync.Mutex
}

func NewOrchestrator(cfg config.Config, deps Deps, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		log:   log,
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// History returns the result registry, or nil.
func (o *Orchestrator) History() *History {
	return o.deps.History
}

// Run executes the pipeline once. Only one Run is active per Orchestrator.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := o.Now()
	res := &Result{
		ID:        o.NewID(),
		Stage:     StageStart,
		Invalid:   []InvalidFragment{},
		StartedAt: start,
	}
	log := o.log.With("invocation", res.ID)

	o.run(ctx, res, log, start)

	res.FinishedAt = o.Now()
	if o.deps.History != nil {
		o.deps.History.Put(res)
	}
	if err := res.Err(); err != nil {
		log.Error("regeneration failed", "stage", res.FailedAt, "error", err)
	} else {
		log.Info("regeneration complete", "elapsed", res.FinishedAt.Sub(start).Round(time.Millisecond))
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, res *Result, log *slog.Logger, start time.Time) {
	ready := func(next Stage) bool {
		if err := ctx.Err(); err != nil {
			res.fail(next, err)
			return false
		}
		return true
	}

	if !ready(StageRunSelected) {
		return
	}
	run, err := runs.FindLatest(o.cfg.ChapterOutputDir)
	if err != nil {
		res.fail(StageRunSelected, err)
		return
	}
	res.RunName = run.Name
	res.advance(StageRunSelected)
	log.Info("selected run", "run", run.Name, "dir", run.Dir)

	if !ready(StageManifestLoaded) {
		return
	}
	manifest, err := runs.ReadManifest(run)
	if err != nil {
		res.fail(StageManifestLoaded, err)
		return
	}
	res.ReportID = manifest.ReportID
	res.CreatedAt = manifest.CreatedAt
	res.advance(StageManifestLoaded)
	if manifest.CreatedAt != "" {
		log.Info("loaded manifest", "report_id", manifest.ReportID, "created_at", manifest.CreatedAt)
	} else {
		log.Info("loaded manifest", "report_id", manifest.ReportID)
	}

	if !ready(StageFragmentsLoaded) {
		return
	}
	frags, err := o.deps.Store.Load(run.Dir)
	if err != nil {
		res.fail(StageFragmentsLoaded, err)
		return
	}
	if len(frags) == 0 {
		res.fail(StageFragmentsLoaded, fmt.Errorf("%w: %s", ErrEmptyInput, run.Dir))
		return
	}
	res.Fragments = len(frags)
	res.advance(StageFragmentsLoaded)
	log.Info("loaded fragments", "count", len(frags))

	if !ready(StageValidated) {
		return
	}
	res.Invalid = o.validate(frags)
	res.advance(StageValidated)
	if len(res.Invalid) > 0 {
		log.Warn("fragments failed structural validation", "count", len(res.Invalid))
		for _, inv := range res.Invalid {
			log.Warn("invalid fragment", "chapter_id", inv.ChapterID, "errors", strings.Join(inv.Errors, "; "))
		}
	} else {
		log.Info("all fragments passed validation")
	}

	if !ready(StageComposed) {
		return
	}
	doc, err := o.deps.Composer.Compose(manifest.ReportID, manifest.Metadata, frags)
	if err != nil {
		res.fail(StageComposed, err)
		return
	}
	res.Chapters = len(doc.Chapters)
	res.Charts = doc.ChartCount()
	res.advance(StageComposed)
	log.Info("composed document", "chapters", res.Chapters, "charts", res.Charts)

	names := artifact.NewNames(artifact.BuildSlug(manifest.Metadata, manifest.ReportID), start, o.cfg.TimestampFormat)
	res.Slug = names.Slug
	res.Timestamp = names.Timestamp

	if !ready(StageIRSaved) {
		return
	}
	ir, err := artifact.EncodeIR(doc)
	if err != nil {
		res.fail(StageIRSaved, err)
		return
	}
	irPath := names.IRPath(o.cfg.DocumentIROutputDir)
	size, err := artifact.Write(irPath, ir)
	if err != nil {
		res.fail(StageIRSaved, fmt.Errorf("%w: %w", ErrWrite, err))
		return
	}
	res.IRPath, res.IRSize, res.IRHash = irPath, size, ContentHashHex(ir)
	res.advance(StageIRSaved)
	log.Info("saved document IR", "path", irPath, "bytes", size)

	if !ready(StageRendered) {
		return
	}
	out, err := o.deps.Renderer.Render(doc)
	if err != nil {
		res.fail(StageRendered, err)
		return
	}
	htmlPath := names.HTMLPath(o.cfg.OutputDir)
	size, err = artifact.Write(htmlPath, out.Content)
	if err != nil {
		res.fail(StageRendered, fmt.Errorf("%w: %w", ErrWrite, err))
		return
	}
	res.HTMLPath, res.HTMLSize, res.Stats = htmlPath, size, out.Charts
	res.advance(StageRendered)
	log.Info("saved HTML report", "path", htmlPath, "size", fmt.Sprintf("%.2f MiB", float64(size)/(1024*1024)))
	log.Info("chart validation",
		"total", out.Charts.Total,
		"valid", out.Charts.Valid,
		"repaired", out.Charts.Repaired(),
		"failed", out.Charts.Failed,
	)

	if len(o.deps.Exporters) > 0 {
		res.Exports = runExports(o.deps.Exporters, doc, names, log)
	}
}

func (o *Orchestrator) validate(frags []fragment.Fragment) []InvalidFragment {
	invalid := []InvalidFragment{}
	if o.deps.Validator == nil {
		return invalid
	}
	for _, f := range frags {
		ok, errs := o.deps.Validator.Validate(f)
		if ok {
			continue
		}
		if len(errs) > maxErrorExcerpts {
			errs = errs[:maxErrorExcerpts]
		}
		invalid = append(invalid, InvalidFragment{ChapterID: f.ChapterID(), Source: f.Source, Errors: errs})
	}
	return invalid
}
