// Package server provides the HTTP API for Alexandria.
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/alexandria/internal/config"
	"github.com/hyperjump/alexandria/internal/ranking"
	"github.com/hyperjump/alexandria/internal/storage"
)

// APIKeyHeader carries the admin key on mutating requests.
const APIKeyHeader = "X-API-Key"

// Server is the HTTP server for the Alexandria API.
type Server struct {
	engine  *ranking.Engine
	storage storage.Storage
	config  *config.ServerConfig
	logger  *zap.Logger
	apiKey  atomic.Value // string
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *ranking.Engine,
	store storage.Storage,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	s := &Server{
		engine:  engine,
		storage: store,
		config:  cfg,
		logger:  logger,
	}
	s.apiKey.Store(cfg.APIKey)
	return s
}

// SetAPIKey replaces the key required on mutating routes. Safe for concurrent use.
func (s *Server) SetAPIKey(key string) {
	s.apiKey.Store(key)
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/book/{id}/fragments", s.handleListFragments)
	r.Get("/fragment/{id}", s.handleGetFragment)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/fragment", s.handleCreateFragment)
		r.Put("/fragment", s.handleUpdateFragment)
		r.Put("/fragment/{id}/reorder", s.handleReorderFragment)
		r.Delete("/fragment/{id}", s.handleDeleteFragment)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requireAPIKey rejects requests without the admin key: 400 when the header is
// absent, 401 when it does not match. With no key configured every mutating
// request is refused.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		given := r.Header.Get(APIKeyHeader)
		if given == "" {
			s.respondError(w, http.StatusBadRequest, "missing "+APIKeyHeader+" header")
			return
		}
		want, _ := s.apiKey.Load().(string)
		if want == "" || subtle.ConstantTimeCompare([]byte(given), []byte(want)) != 1 {
			s.logger.Warn("rejected api key", zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetReqID(r.Context())))
			s.respondError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
