package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lukeborglin-coder/mr-broker/internal/models"
)

const ReasonCancelled = "batch cancelled before start"

// Report summarizes a batch run. Outcomes follow the input order.
type Report struct {
	RunID         string        `json:"run_id"`
	TenantID      string        `json:"tenant_id"`
	Outcomes      []Outcome     `json:"outcomes"`
	Succeeded     int           `json:"succeeded"`
	Skipped       int           `json:"skipped"`
	Errored       int           `json:"errored"`
	ChunksWritten int           `json:"chunks_written"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration_ns"`
}

// Batch ingests docs with at most concurrency documents in flight. One
// document's failure never affects another. Cancelling ctx stops new
// documents from starting; those already running finish.
func (i *Ingestor) Batch(ctx context.Context, tenantID string, docs []models.Document, concurrency int) *Report {
	report := &Report{
		RunID:     uuid.NewString(),
		TenantID:  tenantID,
		Outcomes:  make([]Outcome, len(docs)),
		StartedAt: time.Now().UTC(),
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	slog.Info("ingest batch started", "run", report.RunID, "tenant_id", tenantID, "documents", len(docs), "concurrency", concurrency)

	work := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for n, doc := range docs {
		if ctx.Err() != nil {
			for m := n; m < len(docs); m++ {
				report.Outcomes[m] = cancelled(docs[m])
			}
			break
		}
		g.Go(func() error {
			// The slot may have opened after cancellation.
			if ctx.Err() != nil {
				report.Outcomes[n] = cancelled(doc)
				return nil
			}
			report.Outcomes[n] = i.IngestDocument(work, tenantID, doc)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range report.Outcomes {
		switch o.Status {
		case StatusSucceeded:
			report.Succeeded++
		case StatusSkipped:
			report.Skipped++
		case StatusErrored:
			report.Errored++
		}
		report.ChunksWritten += o.ChunksWritten
	}
	report.Duration = time.Since(report.StartedAt)

	slog.Info("ingest batch finished",
		"run", report.RunID,
		"tenant_id", tenantID,
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"errored", report.Errored,
		"chunks", report.ChunksWritten,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report
}

func cancelled(doc models.Document) Outcome {
	return Outcome{
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		Status:       StatusSkipped,
		Reason:       ReasonCancelled,
	}
}
