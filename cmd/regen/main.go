// Command regen rebuilds the final HTML report from the newest chapter run.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/storm-crypto/BettaFish/internal/api"
	"github.com/storm-crypto/BettaFish/internal/artifact"
	"github.com/storm-crypto/BettaFish/internal/compose"
	"github.com/storm-crypto/BettaFish/internal/config"
	"github.com/storm-crypto/BettaFish/internal/doctree"
	"github.com/storm-crypto/BettaFish/internal/export"
	"github.com/storm-crypto/BettaFish/internal/fragment"
	"github.com/storm-crypto/BettaFish/internal/pipeline"
	"github.com/storm-crypto/BettaFish/internal/render"
)

const historyTTL = time.Hour

type options struct {
	configPath string
	chapters   string
	irDir      string
	output     string
	docx       bool
	xlsx       bool
	logFormat  string
}

// exitError carries a process exit status out of RunE without printing usage.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "regen",
		Short: "Regenerate the HTML report from the latest chapter run",
		Long: `regen selects the most recent chapter run, composes its fragments into
a document IR, saves the IR and renders a standalone HTML report.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file")
	pf.StringVar(&opts.chapters, "chapters", "", "Chapter run root (CHAPTER_OUTPUT_DIR)")
	pf.StringVar(&opts.irDir, "ir-dir", "", "Document IR output directory (DOCUMENT_IR_OUTPUT_DIR)")
	pf.StringVar(&opts.output, "output", "", "Report output root (OUTPUT_DIR)")
	pf.BoolVar(&opts.docx, "docx", false, "Also export a DOCX document")
	pf.BoolVar(&opts.xlsx, "xlsx", false, "Also export an XLSX workbook of tables")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the regeneration once",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runOnce(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Start the preview server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "inspect [report_ir.json]",
			Short: "Print the shape of a saved document IR",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return inspect(cmd.OutOrStdout(), args[0])
			},
		},
	)
	return root
}

// loadConfig layers defaults, the optional file, the environment and flags.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg := config.Load()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.FromFile(opts.configPath); err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("chapters") {
		cfg.ChapterOutputDir = opts.chapters
	}
	if flags.Changed("ir-dir") {
		cfg.DocumentIROutputDir = opts.irDir
	}
	if flags.Changed("output") {
		cfg.OutputDir = opts.output
	}
	if flags.Changed("docx") {
		cfg.ExportDOCX = opts.docx
	}
	if flags.Changed("xlsx") {
		cfg.ExportXLSX = opts.xlsx
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func newOrchestrator(cfg config.Config, log *slog.Logger) (*pipeline.Orchestrator, error) {
	validator, err := fragment.NewValidator(cfg.ChapterSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load chapter schema: %w", err)
	}

	var exporters []pipeline.Exporter
	if cfg.ExportDOCX {
		exporters = append(exporters, &export.DOCXExporter{OutputDir: cfg.OutputDir})
	}
	if cfg.ExportXLSX {
		exporters = append(exporters, &export.XLSXExporter{OutputDir: cfg.OutputDir})
	}

	return pipeline.NewOrchestrator(cfg, pipeline.Deps{
		Store:     fragment.NewStore(log),
		Validator: validator,
		Composer:  compose.New(),
		Renderer:  render.NewHTMLRenderer(log),
		Exporters: exporters,
		History:   pipeline.NewHistory(historyTTL),
	}, log), nil
}

func runOnce(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr(), cfg)

	orch, err := newOrchestrator(cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return exitError{code: 1}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := orch.Run(ctx)
	if code := res.ExitCode(); code != 0 {
		return exitError{code: code}
	}
	return nil
}

func serve(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr(), cfg)

	orch, err := newOrchestrator(cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return exitError{code: 1}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Finished results expire from the in-memory history.
	go func() {
		ticker := time.NewTicker(historyTTL / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				orch.History().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewServer(orch, log, cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		log.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting preview server", "port", cfg.Port, "chapters", cfg.ChapterOutputDir)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		return exitError{code: 1}
	}
	return nil
}

func inspect(w io.Writer, path string) error {
	doc, err := artifact.LoadIR(path)
	if err != nil {
		return err
	}
	stats := doc.Stats()

	fmt.Fprintf(w, "report:   %s\n", doc.ReportID)
	fmt.Fprintf(w, "title:    %s\n", doc.Title)
	fmt.Fprintf(w, "chapters: %d\n", stats.Chapters)
	fmt.Fprintf(w, "blocks:   %d\n", stats.Blocks)
	fmt.Fprintf(w, "charts:   %d\n", stats.Charts)
	fmt.Fprintf(w, "tables:   %d\n", stats.Tables)
	fmt.Fprintf(w, "depth:    %d\n", stats.MaxDepth)

	kinds := make([]doctree.Kind, 0, len(stats.ByKind))
	for k := range stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-12s %d\n", k, stats.ByKind[k])
	}
	return nil
}
