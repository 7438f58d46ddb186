// Package app builds the broker's services from configuration. The API
// server, the ingestion worker and brokerctl share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lukeborglin-coder/mr-broker/internal/api/handlers"
	"github.com/lukeborglin-coder/mr-broker/internal/cache"
	"github.com/lukeborglin-coder/mr-broker/internal/config"
	"github.com/lukeborglin-coder/mr-broker/internal/corpus"
	"github.com/lukeborglin-coder/mr-broker/internal/database"
	"github.com/lukeborglin-coder/mr-broker/internal/docstore"
	"github.com/lukeborglin-coder/mr-broker/internal/document"
	"github.com/lukeborglin-coder/mr-broker/internal/embedding"
	"github.com/lukeborglin-coder/mr-broker/internal/ingest"
	"github.com/lukeborglin-coder/mr-broker/internal/llm"
	"github.com/lukeborglin-coder/mr-broker/internal/queue"
	"github.com/lukeborglin-coder/mr-broker/internal/rag"
	"github.com/lukeborglin-coder/mr-broker/internal/render"
	"github.com/lukeborglin-coder/mr-broker/internal/tenant"
	"github.com/lukeborglin-coder/mr-broker/internal/vectorstore"
	"github.com/lukeborglin-coder/mr-broker/pkg/chunker"
)

const cachePrefix = "mrbroker"

type App struct {
	Config     *config.Config
	DB         *pgxpool.Pool // nil without DATABASE_URL
	Redis      *redis.Client
	Index      vectorstore.Index
	Tenants    *tenant.Registry
	Membership *corpus.Cache
	Ingest     *ingest.Service
	Pipeline   rag.Pipeline
	Renderer   *render.Client
	Queue      *queue.Client
}

// New connects to the database, Redis and Drive and assembles the
// ingestion and query services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.Database.URL != "" {
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		if err := database.RunMigrations(ctx, db); err != nil {
			a.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	var cacheOpts []corpus.Option
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, membership snapshots stay in process", "error", err)
	} else {
		cacheOpts = append(cacheOpts, corpus.WithMirror(corpus.NewRedisMirror(cache.NewCache(a.Redis, cachePrefix))))
	}

	switch cfg.Retrieval.VectorBackend {
	case "memory":
		a.Index = vectorstore.NewMemoryStore(cfg.Embedding.Dimension)
	default:
		if a.DB == nil {
			a.Close()
			return nil, fmt.Errorf("vector backend %q requires DATABASE_URL", cfg.Retrieval.VectorBackend)
		}
		a.Index = vectorstore.NewPgVectorStore(a.DB, cfg.Embedding.Dimension)
	}

	var db *tenant.Service
	if a.DB != nil {
		db = tenant.NewService(a.DB)
	}
	a.Tenants = tenant.NewRegistry(db, tenant.NewStatic(cfg.Drive.TenantFolders))

	store, err := docstore.NewDriveStore(ctx, cfg.Drive)
	if err != nil {
		a.Close()
		return nil, err
	}

	accept := corpus.MimeFilter(cfg.Drive.MimeFilter)
	a.Membership = corpus.NewCache(store, a.Tenants, accept, cfg.Retrieval.MembershipTTL, cacheOpts...)

	gw := llm.NewGateway(cfg.LLM)
	embedder := embedding.NewService(gw, cfg.Embedding)

	ingestor := ingest.NewIngestor(
		document.NewTextExtractor(store, cfg.Ingest.ExtractTimeout),
		ingest.NewWriter(a.Index, embedder, cfg.Retrieval.VectorTimeout),
		chunker.ChunkOptions{ChunkSize: cfg.Ingest.ChunkSize, ChunkOverlap: cfg.Ingest.ChunkOverlap},
	)
	a.Ingest = ingest.NewService(ingestor, store, a.Tenants, a.Index, a.Membership, accept, cfg.Ingest.Concurrency)

	a.Pipeline = rag.NewPipeline(
		rag.NewRetriever(a.Index, embedder, a.Membership, cfg.Retrieval),
		rag.NewSynthesizer(gw, cfg.LLM),
		"",
	)
	a.Renderer = render.NewClient(cfg.Render.BaseURL, cfg.Render.Timeout)
	a.Queue = queue.NewClient(cfg.Redis)

	slog.Info("broker services ready",
		"vector_backend", cfg.Retrieval.VectorBackend,
		"database", a.DB != nil,
		"llm_provider", cfg.LLM.DefaultProvider,
		"embed_model", cfg.Embedding.Model,
	)
	return a, nil
}

// Checks are the dependencies the readiness probe pings.
func (a *App) Checks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{
		"redis": handlers.PingFunc(func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }),
	}
	if a.DB != nil {
		checks["database"] = a.DB
	}
	return checks
}

func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			slog.Warn("close queue client", "error", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
