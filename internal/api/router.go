package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lukeborglin-coder/mr-broker/internal/api/handlers"
	"github.com/lukeborglin-coder/mr-broker/internal/api/middleware"
	"github.com/lukeborglin-coder/mr-broker/internal/auth"
	"github.com/lukeborglin-coder/mr-broker/internal/config"
	"github.com/lukeborglin-coder/mr-broker/internal/queue"
	"github.com/lukeborglin-coder/mr-broker/internal/rag"
	"github.com/lukeborglin-coder/mr-broker/internal/render"
	"github.com/lukeborglin-coder/mr-broker/internal/vectorstore"
)

// Deps are the services the HTTP layer exposes. Enqueuer and Tenants may be
// nil; the routes that need them are then unavailable.
type Deps struct {
	Config     *config.Config
	Pipeline   rag.Pipeline
	Ingest     handlers.IngestService
	Enqueuer   queue.Enqueuer
	Index      vectorstore.Index
	Tenants    handlers.TenantStore
	Renderer   render.Renderer
	Membership handlers.Membership
	Checks     map[string]handlers.Pinger
	Limiter    *middleware.RateLimiter
}

type Router struct {
	mux  *chi.Mux
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{mux: chi.NewRouter(), deps: deps}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.JWTSecret != "" {
			r.Use(auth.NewJWTMiddleware(cfg.Auth.JWTSecret).Authenticate)
		} else {
			slog.Warn("JWT_SECRET not set, API is unauthenticated")
		}
		if rt.deps.Limiter != nil {
			r.Use(rt.deps.Limiter.Limit)
		}

		queryH := handlers.NewQueryHandler(rt.deps.Pipeline)
		r.Post("/query", queryH.Query)

		pageH := handlers.NewPageHandler(rt.deps.Renderer, rt.deps.Membership)
		r.Get("/pages/{fileId}/{page}", pageH.Page)

		ingestH := handlers.NewIngestHandler(rt.deps.Ingest, rt.deps.Enqueuer, rt.deps.Index)
		r.Post("/ingest", ingestH.Ingest)
		r.Get("/index/stats", ingestH.Stats)
		r.Delete("/index/{tenantId}", ingestH.Purge)

		if rt.deps.Tenants != nil {
			tenantH := handlers.NewTenantHandler(rt.deps.Tenants)
			r.Route("/tenants", func(r chi.Router) {
				r.Get("/{id}", tenantH.Get)
				r.Group(func(r chi.Router) {
					if cfg.Auth.JWTSecret != "" {
						r.Use(auth.RequireAdmin)
					}
					r.Get("/", tenantH.List)
					r.Post("/", tenantH.Upsert)
				})
			})
		}
	})

	return r
}
