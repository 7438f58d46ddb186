package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/lukeborglin-coder/mr-broker/internal/app"
	"github.com/lukeborglin-coder/mr-broker/internal/config"
	"github.com/lukeborglin-coder/mr-broker/internal/queue"
	"github.com/lukeborglin-coder/mr-broker/internal/queue/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to read .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to start services", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Ingest.WorkerConcurrency,
			Queues: map[string]int{
				"default": 3,
				"low":     1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()
	workers.NewIngestWorker(a.Ingest, a.Queue).Register(registry)

	slog.Info("starting worker", "concurrency", cfg.Ingest.WorkerConcurrency, "task_types", registry.Types())
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
