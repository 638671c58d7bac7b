// Package server provides the HTTP front for the experiment engine.
// No wire protocol is mandated by the core; this is one thin JSON layer
// over the three library operations.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/splitpilot/splitpilot/internal/engine"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	engine    *engine.Engine
	log       zerolog.Logger
	startTime time.Time
}

func New(eng *engine.Engine, port int, log zerolog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		engine:    eng,
		log:       log.With().Str("component", "server").Logger(),
		startTime: time.Now(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/experiments", s.handleCreateExperiment)
		r.Get("/experiments", s.handleListExperiments)

		r.Route("/experiments/{experimentID}", func(r chi.Router) {
			r.Get("/", s.handleGetExperiment)
			r.Post("/start", s.handleStart)
			r.Post("/pause", s.handlePause)
			r.Post("/complete", s.handleComplete)
			r.Post("/assign", s.handleAssign)
			r.Get("/enrollment", s.handleGetEnrollment)
			r.Get("/snapshot", s.handleSnapshot)
		})

		r.Post("/events", s.handleRecordEvent)
	})
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
