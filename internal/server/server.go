package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/luyiourwong/vibe-markdown/internal/config"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
	"github.com/luyiourwong/vibe-markdown/internal/storage"
	"github.com/luyiourwong/vibe-markdown/internal/tools"
)

// ClientFactory builds an LLM client for resolved connection settings.
type ClientFactory func(s llm.Settings) llm.Client

func defaultClientFactory(s llm.Settings) llm.Client {
	return llm.NewClient(s)
}

// Option configures a Server.
type Option func(*Server)

// WithClientFactory replaces how LLM clients are built. Tests use it to
// substitute a fake endpoint.
func WithClientFactory(f ClientFactory) Option {
	return func(s *Server) {
		s.newClient = f
	}
}

// Server is the HTTP server for the editor backend.
type Server struct {
	cfg       *config.Config
	store     storage.Store
	registry  *tools.Registry
	sessions  *SessionManager
	newClient ClientFactory
	router    chi.Router
	http      *http.Server
}

// New creates a new Server.
func New(cfg *config.Config, store storage.Store, registry *tools.Registry, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		newClient: defaultClientFactory,
		router:    chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = NewSessionManager(s.newClient)
	s.setupRoutes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	app := chi.NewRouter()
	app.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		r.Get("/config", s.handleGetConfig)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		// Documents
		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleCreateDocument)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Put("/documents/{id}", s.handleUpdateDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Get("/documents/{id}/render", s.handleRenderDocument)

		// Sessions
		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)

		// Messages
		r.Get("/sessions/{id}/messages", s.handleGetMessages)
		r.Post("/sessions/{id}/messages", s.handleSendMessage)

		// WebSocket (no JSON content-type)
		r.Get("/sessions/{id}/ws", s.handleWebSocket)

		// Stateless completions and model listing
		r.Post("/chat/completions", s.handleChatCompletions)
		r.Get("/models", s.handleListModels)
	})

	root := s.cfg.Server.RootPath
	if root == "" || root == "/" {
		app.Handle("/*", spaHandler())
		r.Mount("/", app)
		return
	}

	// The frontend is built with the same base path, so everything lives under it.
	prefix := strings.TrimSuffix(root, "/")
	app.Handle("/*", http.StripPrefix(prefix, spaHandler()))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, root, http.StatusFound)
	})
	r.Mount(prefix, app)
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	log.Printf("vibemd server starting on http://localhost%s%s", addr, s.cfg.Server.RootPath)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")
	s.sessions.CloseAll()
	if s.http == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
