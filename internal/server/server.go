// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package server exposes the mediation pipeline over HTTP. Auth and
// rate limiting run as chi middleware ahead of the huma operations, so
// no pipeline stage ever sees an unauthenticated request.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sentra-dev/sentra/internal/audit"
	"github.com/sentra-dev/sentra/internal/pipeline"
	"github.com/sentra-dev/sentra/internal/policy"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr      string
	CORSOrigins     []string
	RatePerMinute   int
	RateBurst       int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server wraps a chi router with the huma API surface.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	log      *slog.Logger
	pipeline *pipeline.Pipeline
	matrix   *policy.Matrix
	audit    audit.Store
	done     chan struct{}
}

// New creates a Server with auth, rate limiting, CORS, and the full
// route set registered.
func New(cfg Config, verifier TokenVerifier, pl *pipeline.Pipeline, matrix *policy.Matrix, auditStore audit.Store, log *slog.Logger) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, sentraerr.New(sentraerr.CodeServerStartFailure, "listen address is required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	srv := &Server{
		cfg:      cfg,
		log:      log,
		pipeline: pl,
		matrix:   matrix,
		audit:    auditStore,
		done:     make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	// Auth and rate limiting cover /api/*; health and the OpenAPI
	// surface stay public.
	r.Use(authMiddleware(verifier, log))
	r.Use(rateLimitMiddleware(RateLimitConfig{
		PerMinute: cfg.RatePerMinute,
		Burst:     cfg.RateBurst,
	}, log, srv.done))

	humaConfig := huma.DefaultConfig("Sentra", "0.1.0")
	humaConfig.Info.Description = "Mediated security assistant API"
	api := humachi.New(r, humaConfig)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthBody{Status: "ok"}}, nil
	})

	srv.registerRoutes(api)

	srv.router = r
	srv.api = api
	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return sentraerr.Wrapf(err, sentraerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}
	s.log.Info("server listening", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()
	close(s.done)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return sentraerr.Wrap(err, sentraerr.CodeServerStartFailure, "shutting down")
	}
	return <-errCh
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
