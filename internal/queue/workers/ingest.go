package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/ingest"
	"github.com/lukeborglin-coder/mr-broker/internal/models"
	"github.com/lukeborglin-coder/mr-broker/internal/queue"
)

// IngestService is the part of ingest.Service the workers drive.
type IngestService interface {
	Documents(ctx context.Context, tenantID string) ([]models.Document, error)
	IngestDocument(ctx context.Context, tenantID, fileID string) (ingest.Outcome, error)
}

type IngestWorker struct {
	svc      IngestService
	enqueuer queue.Enqueuer
}

func NewIngestWorker(svc IngestService, enqueuer queue.Enqueuer) *IngestWorker {
	return &IngestWorker{svc: svc, enqueuer: enqueuer}
}

// ProcessFolder lists a tenant's documents and enqueues one task per file.
func (w *IngestWorker) ProcessFolder(ctx context.Context, t *asynq.Task) error {
	var payload queue.IngestFolderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	docs, err := w.svc.Documents(ctx, payload.TenantID)
	if err != nil {
		return permanent(fmt.Errorf("list documents: %w", err))
	}

	slog.Info("fanning out folder ingest", "run", payload.RunID, "tenant_id", payload.TenantID, "documents", len(docs))
	failed := 0
	for _, doc := range docs {
		_, err := w.enqueuer.EnqueueIngestDocument(ctx, queue.IngestDocumentPayload{
			RunID:    payload.RunID,
			TenantID: payload.TenantID,
			FileID:   doc.ID,
		})
		if err != nil {
			failed++
			slog.Error("failed to enqueue document", "tenant_id", payload.TenantID, "document_id", doc.ID, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("enqueue %d of %d documents failed", failed, len(docs))
	}
	return nil
}

// ProcessDocument ingests one file. Skipped documents complete the task;
// errored ones are retried by asynq unless retrying cannot help.
func (w *IngestWorker) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload queue.IngestDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	out, err := w.svc.IngestDocument(ctx, payload.TenantID, payload.FileID)
	if err != nil {
		return permanent(fmt.Errorf("ingest %s: %w", payload.FileID, err))
	}

	switch out.Status {
	case ingest.StatusErrored:
		return fmt.Errorf("ingest %s: %s: %s", payload.FileID, out.Kind, out.Reason)
	case ingest.StatusSkipped:
		slog.Info("document skipped", "run", payload.RunID, "document_id", payload.FileID, "reason", out.Reason)
	}
	return nil
}

// retryable marks errors that a retry cannot fix.
func permanent(err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound:
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Register wires the ingest handlers into the registry.
func (w *IngestWorker) Register(r *queue.HandlersRegistry) {
	r.Register(queue.TypeIngestFolder, asynq.HandlerFunc(w.ProcessFolder))
	r.Register(queue.TypeIngestDocument, asynq.HandlerFunc(w.ProcessDocument))
}
