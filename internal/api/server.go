package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/folio/internal/config"
	"github.com/dgallion1/folio/internal/generate"
	"github.com/dgallion1/folio/internal/paginator"
	"github.com/dgallion1/folio/internal/pipeline"
	"github.com/dgallion1/folio/internal/session"
	"github.com/dgallion1/folio/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for folio.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	store        *store.Store
	llm          *generate.Client
	hub          *Hub
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. Background turn
// completions are pushed to websocket subscribers.
func NewServer(orch *pipeline.Orchestrator, db *store.Store, llm *generate.Client, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		store:        db,
		llm:          llm,
		hub:          NewHub(log),
		log:          log,
		cfg:          cfg,
	}
	orch.Subscribe(s.hub.Publish)
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close disconnects websocket clients.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Browsers cannot set headers on a websocket handshake.
	r.With(AuthMiddleware(s.cfg.FolioAPIKey, s.log, true)).Get("/ws/stories/{id}", s.handleStoryWebSocket)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.FolioAPIKey, s.log, false))

		r.Post("/api/stories", s.handleCreateStory)
		r.Post("/api/stories/import", s.handleImportStory)

		r.Route("/api/stories/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetStory)
			r.Get("/pages", s.handlePages)
			r.Get("/spread", s.handleSpread)
			r.Post("/spread/next", s.handleSpreadNext)
			r.Post("/spread/prev", s.handleSpreadPrev)
			r.Post("/spread/jump", s.handleSpreadJump)
			r.Get("/bookmarks", s.handleBookmarks)
			r.Post("/choices", s.handleChoose)
			r.Post("/continue", s.handleContinue)
			r.Put("/mode", s.handleSetMode)
			r.Put("/view", s.handleSetView)
			r.Post("/save", s.handleSave)
			r.Get("/export", s.handleExport)
		})

		r.Get("/api/saves", s.handleListSaves)
		r.Post("/api/saves/{id}/load", s.handleLoadSave)
		r.Delete("/api/saves/{id}", s.handleDeleteSave)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) layout() paginator.Config {
	return paginator.Config{WordsPerPage: s.cfg.WordsPerPage}
}

func (s *Server) session(r *http.Request) (*session.Session, error) {
	return s.orchestrator.Sessions().Get(chi.URLParam(r, "id"))
}
