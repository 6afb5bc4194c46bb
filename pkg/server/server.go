// Package server exposes the search and agent surfaces over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/owasp/nest-search/pkg/agent"
	"github.com/owasp/nest-search/pkg/cache"
	"github.com/owasp/nest-search/pkg/config"
	"github.com/owasp/nest-search/pkg/engine"
	"github.com/owasp/nest-search/pkg/logger"
	"github.com/owasp/nest-search/pkg/metrics"
	"github.com/owasp/nest-search/pkg/nest"
	"github.com/owasp/nest-search/pkg/router"
	"github.com/owasp/nest-search/pkg/store"
)

// SearchEngine is the slice of the index service the server needs.
type SearchEngine interface {
	Search(ctx context.Context, collection string, p engine.Params) (*engine.Result, error)
}

// AgentRunner runs one agent query to its terminal state.
type AgentRunner interface {
	Run(ctx context.Context, req agent.Request) (*agent.State, error)
}

// IntentRouter classifies queries and spots known entity names.
type IntentRouter interface {
	Route(ctx context.Context, query string) router.Decision
	ExtractNames(query string) []string
	LookupEntity(name string) (nest.EntityRef, bool)
}

// ContextReader serves direct entity lookups for static-intent queries.
type ContextReader interface {
	GetContext(ctx context.Context, entity nest.EntityRef) (*store.Context, error)
}

// Server wires the HTTP surface over the retrieval core.
type Server struct {
	cfg      *config.ServerConfig
	engine   SearchEngine
	agent    AgentRunner
	intents  IntentRouter
	contexts ContextReader
	cache    *cache.Cache
	geo      engine.GeoResolver
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New builds the server. contexts may be nil, in which case every agent
// query takes the retrieval path. geo may be nil when no IP resolution
// is available; chapter queries then keep the default sort.
func New(cfg *config.ServerConfig, eng SearchEngine, runner AgentRunner, intents IntentRouter, contexts ContextReader, c *cache.Cache, geo engine.GeoResolver, m *metrics.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		engine:   eng,
		agent:    runner,
		intents:  intents,
		contexts: contexts,
		cache:    c,
		geo:      geo,
		metrics:  m,
		logger:   logger.GetLogger(),
	}
}

// Routes builds the handler tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/agent", s.handleAgent)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// ListenAndServe serves until the context is canceled, then drains.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
