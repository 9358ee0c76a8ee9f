// Package origin implements a deterministic HTTP origin used by tests, the
// bench command and demos. Every endpoint responds from local state only,
// so runs against it are reproducible.
package origin

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/fetchq/internal/config"
)

// Server is the fetchq demo origin.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.OriginConfig
	startTime time.Time

	// flaky counts requests per key for the /flaky endpoint.
	mu    sync.Mutex
	flaky map[string]int
}

// New creates an origin server with all routes registered.
func New(cfg config.OriginConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "origin"),
		config:    cfg,
		startTime: time.Now(),
		flaky:     make(map[string]int),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/health", s.handleHealth)
	r.Get("/text", s.handleText)
	r.Get("/json", s.handleJSON)
	r.Get("/bytes", s.handleBytes)
	r.Get("/blob", s.handleBlob)
	r.Get("/image", s.handleImage)
	r.Get("/status/{code}", s.handleStatus)
	r.Get("/slow", s.handleSlow)
	r.Get("/flaky", s.handleFlaky)
	r.HandleFunc("/echo", s.handleEcho)
}
