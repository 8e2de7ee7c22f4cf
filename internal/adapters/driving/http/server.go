// Package http exposes the proxy and JSON API routes of §6 over
// Go 1.22+'s pattern-matching http.ServeMux.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/localregistry/proxy/internal/core/ports/driving"
)

// Pinger is a health-check dependency, satisfied by the Postgres and
// Redis clients wired in at startup.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP surface's listener and shutdown tuning.
type Config struct {
	Addr            string
	Version         string
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            "0.0.0.0:8080",
		Version:         "dev",
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server is the HTTP surface composing the proxy routes and the JSON
// API routes (§4.12, §6).
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux

	cfg     Config
	proxy   driving.ProxyService
	chat    driving.ChatService
	search  driving.RetrievalService
	ingest  driving.IngestService
	stats   driving.StatsService
	db      Pinger
	cache   Pinger // optional Redis health check, may be nil
	log     *slog.Logger
}

// NewServer wires every route and returns a Server ready for Start.
func NewServer(
	cfg Config,
	proxy driving.ProxyService,
	chat driving.ChatService,
	search driving.RetrievalService,
	ingest driving.IngestService,
	stats driving.StatsService,
	db Pinger,
	cache Pinger,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		router: http.NewServeMux(),
		cfg:    cfg,
		proxy:  proxy,
		chat:   chat,
		search: search,
		ingest: ingest,
		stats:  stats,
		db:     db,
		cache:  cache,
		log:    log,
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      recoveryMiddleware(loggingMiddleware(s.log)(s.router)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // tarball streaming has no fixed upper bound
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /healthz", s.handleHealthz)

	s.router.HandleFunc("GET /{package}", s.handleMetadata)
	s.router.HandleFunc("GET /{package}/-/{filename}", s.handleTarball)

	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/hybrid-search", s.handleHybridSearch)
	s.router.HandleFunc("GET /api/stats", s.handleStats)
	s.router.HandleFunc("GET /api/vector-stats", s.handleVectorStats)
	s.router.HandleFunc("GET /api/security-stats", s.handleSecurityStats)
	s.router.HandleFunc("POST /api/rebuild-embeddings/{package}", s.handleRebuildEmbeddings)
	s.router.HandleFunc("POST /api/precache", s.handlePrecache)
	s.router.HandleFunc("GET /force-scrape/{package}", s.handleForceScrape)
}

// Handler returns the fully wrapped router, for tests that want to
// drive the HTTP surface through httptest.NewServer without binding a
// real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs ListenAndServe and blocks until the server stops, either
// from a listener error or from Shutdown being called concurrently.
func (s *Server) Start() error {
	s.log.Info("http: listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http: listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting new connections and waits up to
// ShutdownTimeout for in-flight requests to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
