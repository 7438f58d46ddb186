// Package docstore reads a tenant's files from the shared document store.
package docstore

import (
	"context"

	"github.com/lukeborglin-coder/mr-broker/internal/models"
)

// Store is the read-only view of the document store used by ingestion and
// the corpus membership cache.
type Store interface {
	// ListChildren returns the non-trashed direct children of a folder.
	ListChildren(ctx context.Context, folderID string) ([]models.Document, error)
	Get(ctx context.Context, fileID string) (*models.Document, error)
	// GetContent downloads the raw bytes of a binary file.
	GetContent(ctx context.Context, fileID string) ([]byte, error)
	// ExportAsText exports a native document as plain text.
	ExportAsText(ctx context.Context, fileID string) (string, error)
	// SlideTexts returns, per slide, the text of each shape on it.
	SlideTexts(ctx context.Context, fileID string) ([][]string, error)
	// SheetValues returns the cellRange window of the first maxSheets sheets.
	SheetValues(ctx context.Context, fileID string, maxSheets int, cellRange string) ([]Sheet, error)
}

type Sheet struct {
	Title string
	Rows  [][]string
}
