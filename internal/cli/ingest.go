package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lukeborglin-coder/mr-broker/internal/ingest"
	"github.com/lukeborglin-coder/mr-broker/internal/queue"
)

var (
	ingestFileID string
	ingestAsync  bool
	purgeYes     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <tenant>",
	Short: "Ingest a tenant's documents",
	Long: `Walks the tenant's root folder and extracts, chunks, embeds and upserts
every supported document. With --file only that document is ingested.
With --async the work is queued for the ingestion worker.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var purgeCmd = &cobra.Command{
	Use:   "purge <tenant>",
	Short: "Delete every index entry of a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurge,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector counts per tenant namespace",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFileID, "file", "f", "", "ingest a single document by file id")
	ingestCmd.Flags().BoolVar(&ingestAsync, "async", false, "queue the work instead of running it here")
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "confirm the purge")
	rootCmd.AddCommand(ingestCmd, purgeCmd, statsCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	tenantID := args[0]
	return withServices(cmd, func(ctx context.Context, svc *Services) error {
		if ingestAsync {
			return enqueueIngest(ctx, cmd, svc.Enqueuer, tenantID)
		}
		if ingestFileID != "" {
			out, err := svc.Ingest.IngestDocument(ctx, tenantID, ingestFileID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, out)
			}
			printOutcome(cmd, out)
			if out.Status == ingest.StatusErrored {
				return fmt.Errorf("ingest %s failed: %s", ingestFileID, out.Reason)
			}
			return nil
		}

		report, err := svc.Ingest.IngestTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd, report)
		}
		for _, out := range report.Outcomes {
			if out.Status != ingest.StatusSucceeded {
				printOutcome(cmd, out)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d succeeded, %d skipped, %d errored, %d chunks in %s\n",
			report.RunID, report.Succeeded, report.Skipped, report.Errored, report.ChunksWritten, report.Duration.Round(time.Millisecond))
		return nil
	})
}

func enqueueIngest(ctx context.Context, cmd *cobra.Command, enqueuer queue.Enqueuer, tenantID string) error {
	if enqueuer == nil {
		return errors.New("task queue not configured")
	}
	runID := uuid.NewString()
	var (
		taskID string
		err    error
	)
	if ingestFileID != "" {
		taskID, err = enqueuer.EnqueueIngestDocument(ctx, queue.IngestDocumentPayload{RunID: runID, TenantID: tenantID, FileID: ingestFileID})
	} else {
		taskID, err = enqueuer.EnqueueIngestFolder(ctx, queue.IngestFolderPayload{RunID: runID, TenantID: tenantID})
	}
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd, map[string]string{"runId": runID, "taskId": taskID})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued task %s (run %s)\n", taskID, runID)
	return nil
}

func printOutcome(cmd *cobra.Command, out ingest.Outcome) {
	line := fmt.Sprintf("%-9s %s (%s)", out.Status, out.DocumentName, out.DocumentID)
	if out.ChunksWritten > 0 {
		line += fmt.Sprintf(" %d chunks", out.ChunksWritten)
	}
	if out.Reason != "" {
		line += ": " + out.Reason
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}

func runPurge(cmd *cobra.Command, args []string) error {
	if !purgeYes {
		return errors.New("refusing to purge without --yes")
	}
	tenantID := args[0]
	return withServices(cmd, func(ctx context.Context, svc *Services) error {
		if err := svc.Ingest.Purge(ctx, tenantID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged index of tenant %s\n", tenantID)
		return nil
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, svc *Services) error {
		stats, err := svc.Index.DescribeStats(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd, stats)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "dimension: %d\nvectors:   %d\n", stats.Dimension, stats.TotalVectorCount)
		names := make([]string, 0, len(stats.Namespaces))
		for ns := range stats.Namespaces {
			names = append(names, ns)
		}
		sort.Strings(names)
		for _, ns := range names {
			fmt.Fprintf(w, "  %-24s %d\n", ns, stats.Namespaces[ns].VectorCount)
		}
		return nil
	})
}
