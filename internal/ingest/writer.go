package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/vectorstore"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Chunk struct {
	Text string
	Page int
}

type UpsertRequest struct {
	TenantID     string
	DocumentID   string
	DocumentName string
	MimeType     string
	SourceLink   string
	ModifiedAt   time.Time
	Chunks       []Chunk
}

// Writer embeds chunks and stores them under deterministic keys, so writing
// the same document twice leaves the index unchanged.
type Writer struct {
	index    vectorstore.Index
	embedder Embedder
	timeout  time.Duration
}

func NewWriter(index vectorstore.Index, embedder Embedder, timeout time.Duration) *Writer {
	return &Writer{index: index, embedder: embedder, timeout: timeout}
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// KeyPrefix is shared by every entry of one document.
func KeyPrefix(tenantID, documentName string) string {
	return shortHash(tenantID) + ":" + shortHash(documentName) + ":"
}

func EntryID(tenantID, documentName string, chunkIndex int) string {
	return KeyPrefix(tenantID, documentName) + strconv.Itoa(chunkIndex)
}

// Upsert writes req's chunks and removes entries left over from an earlier,
// longer version of the same document. It returns the number written. With
// no chunks, every entry of the document is removed.
func (w *Writer) Upsert(ctx context.Context, req UpsertRequest) (int, error) {
	ns := vectorstore.Namespace(req.TenantID)
	if len(req.Chunks) == 0 {
		if err := w.pruneTail(ctx, ns, req, 0); err != nil {
			return 0, apperr.New(apperr.KindVectorIndex, "ingest.Upsert", err)
		}
		return 0, nil
	}

	texts := make([]string, len(req.Chunks))
	for i, c := range req.Chunks {
		texts[i] = c.Text
	}
	vectors, err := w.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	entries := make([]vectorstore.Entry, len(req.Chunks))
	for i, c := range req.Chunks {
		entries[i] = vectorstore.Entry{
			ID:     EntryID(req.TenantID, req.DocumentName, i),
			Vector: vectors[i],
			Metadata: vectorstore.Metadata{
				TenantID:     req.TenantID,
				DocumentID:   req.DocumentID,
				DocumentName: req.DocumentName,
				MimeType:     req.MimeType,
				ChunkIndex:   i,
				Page:         c.Page,
				Text:         c.Text,
				SourceLink:   req.SourceLink,
				ModifiedAt:   req.ModifiedAt,
			},
		}
	}

	if err := w.withTimeout(ctx, func(ctx context.Context) error {
		return w.index.Upsert(ctx, ns, entries)
	}); err != nil {
		return 0, apperr.New(apperr.KindVectorIndex, "ingest.Upsert", err)
	}

	if err := w.pruneTail(ctx, ns, req, len(entries)); err != nil {
		slog.Warn("failed to prune stale chunks", "tenant_id", req.TenantID, "document_id", req.DocumentID, "error", err)
	}
	return len(entries), nil
}

func (w *Writer) pruneTail(ctx context.Context, ns string, req UpsertRequest, written int) error {
	prefix := KeyPrefix(req.TenantID, req.DocumentName)

	var stale []string
	err := w.withTimeout(ctx, func(ctx context.Context) error {
		ids, err := w.index.ListIDs(ctx, ns, prefix)
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
			if err == nil && n >= written {
				stale = append(stale, id)
			}
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return err
	}

	if err := w.withTimeout(ctx, func(ctx context.Context) error {
		return w.index.Delete(ctx, ns, stale)
	}); err != nil {
		return fmt.Errorf("delete %d stale entries: %w", len(stale), err)
	}
	slog.Debug("pruned stale chunks", "document_id", req.DocumentID, "count", len(stale))
	return nil
}

func (w *Writer) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	return fn(ctx)
}
