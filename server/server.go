package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gmaps-reviews-analyzer/config"
	"gmaps-reviews-analyzer/models"
	"gmaps-reviews-analyzer/scraper/apify"
	"gmaps-reviews-analyzer/services"
	"gmaps-reviews-analyzer/storage"
	"gmaps-reviews-analyzer/utils"
)

// Server wires HTTP routing, middleware, and the action handlers that make
// up the interactive shell. One logical user performs one action at a time;
// each action is a single blocking call chain.
type Server struct {
	scraper  apify.Client
	builder  *services.TableBuilder
	insights *services.InsightService
	analyzer *services.Analyzer
	files    *storage.CSVStore
	db       storage.TableWriter
	prompts  *config.PromptStore
	session  *Session
	logger   *utils.Logger
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the server with base middleware and routes. db may be nil
// when Postgres persistence is not configured.
func New(
	port string,
	scraper apify.Client,
	builder *services.TableBuilder,
	insights *services.InsightService,
	analyzer *services.Analyzer,
	files *storage.CSVStore,
	db storage.TableWriter,
	prompts *config.PromptStore,
	logger *utils.Logger,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		scraper:  scraper,
		builder:  builder,
		insights: insights,
		analyzer: analyzer,
		files:    files,
		db:       db,
		prompts:  prompts,
		session:  NewSession(),
		logger:   logger,
		router:   r,
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/reviews", s.handleFetchReviews)
		r.Get("/reviews.csv", s.handleDownloadCSV)
		r.Get("/summary", s.handleSummary)
		r.Get("/histogram", s.handleHistogram)
		r.Get("/monthly", s.handleMonthly)
		r.Post("/analysis", s.handleAnalysis)
		r.Get("/prompt", s.handleGetPrompt)
		r.Put("/prompt", s.handleSavePrompt)
	})

	s.httpSrv = &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // fetch and analysis block on upstream calls
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Restore seeds the session with a previously persisted table so stored
// reviews are available before the first fetch. An empty table is ignored;
// the no-data state stays in effect until something was actually stored.
func (s *Server) Restore(t *models.Table) {
	if t.Len() == 0 {
		return
	}
	s.session.Set(t)
	s.logger.Info("[server] Session restored with %d stored reviews", t.Len())
}

// Handler exposes the router (used by handler tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("[server] Listening on %s", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
