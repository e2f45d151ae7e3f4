package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/storm-crypto/BettaFish/internal/config"
	"github.com/storm-crypto/BettaFish/internal/pipeline"
)

// Server is the preview HTTP server: it triggers regenerations and serves
// the rendered reports.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(logRequests(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(requireAPIKey(s.cfg.APIKey, s.log))
		}

		r.Get("/api/runs", s.handleListRuns)
		r.Get("/api/runs/latest", s.handleLatestRun)
		r.Get("/api/stats/latest", s.handleLatestStats)

		r.Post("/api/regenerate", s.handleRegenerate)
		r.Get("/api/regenerations", s.handleListRegenerations)
		r.Get("/api/regenerations/{id}", s.handleRegeneration)

		r.Get("/api/reports", s.handleListReports)
		r.Delete("/api/reports/{name}", s.handleDeleteReport)
		r.Get("/reports/{name}", s.handleServeReport)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
