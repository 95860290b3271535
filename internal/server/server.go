// Package server exposes the broker over HTTP: the launch endpoint the
// resource provider posts context tokens to, and the token endpoints client
// applications call to pick up their contexts.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iqcloud/acsbroker/internal/service"
)

// Server manages the broker's HTTP server
type Server struct {
	httpServer *http.Server
	httpPort   int
	handler    *Handler
}

// Config contains server configuration
type Config struct {
	HTTPPort int

	Service *service.ContextService
}

// New creates a new server with the given configuration
func New(cfg Config) *Server {
	return &Server{
		httpPort: cfg.HTTPPort,
		handler:  NewHandler(cfg.Service),
	}
}

// Router builds the chi router with all broker routes mounted
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handler.Health)
	r.Post("/launch", s.handler.Launch)
	r.Get("/token", s.handler.Token)
	r.Get("/context", s.handler.Context)
	r.Post("/credential", s.handler.CreateCredentialToken)
	r.Post("/credential/validate", s.handler.ValidateCredentialToken)

	return r
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.httpPort),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		fmt.Printf("HTTP server listening on :%d\n", s.httpPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
