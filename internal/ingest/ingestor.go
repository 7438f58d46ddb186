package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/document"
	"github.com/lukeborglin-coder/mr-broker/internal/models"
	"github.com/lukeborglin-coder/mr-broker/pkg/chunker"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusErrored   Status = "errored"
)

// Outcome is the result of ingesting one document.
type Outcome struct {
	DocumentID    string        `json:"document_id"`
	DocumentName  string        `json:"document_name"`
	Status        Status        `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	Kind          apperr.Kind   `json:"kind,omitempty"`
	ChunksWritten int           `json:"chunks_written"`
	Duration      time.Duration `json:"duration_ns"`
}

// Ingestor runs extract, chunk, embed and upsert for single documents.
type Ingestor struct {
	extractor document.TextExtractor
	chunker   chunker.Chunker
	chunkOpts chunker.ChunkOptions
	writer    *Writer
}

func NewIngestor(extractor document.TextExtractor, writer *Writer, opts chunker.ChunkOptions) *Ingestor {
	return &Ingestor{
		extractor: extractor,
		chunker:   chunker.New(),
		chunkOpts: opts,
		writer:    writer,
	}
}

// IngestDocument never returns an error; failures are reported in the
// Outcome. Extraction problems skip the document, everything else errors it.
func (i *Ingestor) IngestDocument(ctx context.Context, tenantID string, doc models.Document) Outcome {
	start := time.Now()
	out := Outcome{DocumentID: doc.ID, DocumentName: doc.Name}
	defer func() {
		out.Duration = time.Since(start)
	}()

	log := slog.With("tenant_id", tenantID, "document_id", doc.ID, "name", doc.Name)

	text, err := i.extractor.Extract(ctx, doc)
	if err != nil {
		out.fail(err)
		log.Warn("document not ingested", "status", out.Status, "reason", out.Reason)
		return out
	}

	pieces := i.chunker.Chunk(text.Content, i.chunkOpts)
	chunks := make([]Chunk, len(pieces))
	for n, p := range pieces {
		chunks[n] = Chunk{Text: p.Content, Page: text.PageAt(p.Start)}
	}

	written, err := i.writer.Upsert(ctx, UpsertRequest{
		TenantID:     tenantID,
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		MimeType:     doc.MimeType,
		SourceLink:   doc.WebViewLink,
		ModifiedAt:   doc.ModifiedTime,
		Chunks:       chunks,
	})
	if err != nil {
		out.fail(err)
		log.Error("document ingestion failed", "kind", out.Kind, "error", err)
		return out
	}

	out.Status = StatusSucceeded
	out.ChunksWritten = written
	log.Info("document ingested", "chunks", written, "pages", text.Pages)
	return out
}

func (o *Outcome) fail(err error) {
	o.Kind = apperr.KindOf(err)
	o.Reason = apperr.DetailOf(err)
	if o.Kind == apperr.KindExtraction {
		o.Status = StatusSkipped
		return
	}
	o.Status = StatusErrored
	if apperr.IsTimeout(err) {
		o.Reason = "timed out: " + o.Reason
	}
}
