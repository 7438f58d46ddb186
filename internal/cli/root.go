// Package cli implements brokerctl, the operator command line for the
// broker: ingestion, purges, index stats, ad-hoc queries and tokens.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukeborglin-coder/mr-broker/internal/api/handlers"
	"github.com/lukeborglin-coder/mr-broker/internal/app"
	"github.com/lukeborglin-coder/mr-broker/internal/config"
	"github.com/lukeborglin-coder/mr-broker/internal/queue"
	"github.com/lukeborglin-coder/mr-broker/internal/rag"
	"github.com/lukeborglin-coder/mr-broker/internal/vectorstore"
)

// Services are the broker operations the commands drive.
type Services struct {
	Ingest   handlers.IngestService
	Pipeline rag.Pipeline
	Index    vectorstore.Index
	Tenants  handlers.TenantStore
	Enqueuer queue.Enqueuer
}

var (
	envFile string
	verbose bool
	asJSON  bool
)

// openServices is replaced in tests.
var openServices = func(ctx context.Context) (*Services, func(), error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return &Services{
		Ingest:   a.Ingest,
		Pipeline: a.Pipeline,
		Index:    a.Index,
		Tenants:  a.Tenants,
		Enqueuer: a.Queue,
	}, a.Close, nil
}

var rootCmd = &cobra.Command{
	Use:   "brokerctl",
	Short: "Operate the market research broker",
	Long: `brokerctl ingests tenant folders into the vector index, inspects and
purges tenant indexes, runs queries and issues API tokens.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file of KEY=value settings to load")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print results as JSON")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(validate bool) (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// withServices opens the services for the duration of fn.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
