package corpus

import (
	"context"
	"fmt"

	"github.com/lukeborglin-coder/mr-broker/internal/models"
)

// Lister is the part of the document store the walker needs.
type Lister interface {
	ListChildren(ctx context.Context, folderID string) ([]models.Document, error)
}

// DefaultMimeTypes are the document types that are ingested and counted as
// corpus members.
var DefaultMimeTypes = []string{
	models.MimeGoogleDoc,
	models.MimeGoogleSlides,
	models.MimeGoogleSheet,
	models.MimePDF,
	models.MimeDOCX,
	models.MimeXLSX,
	models.MimeText,
}

// MimeFilter accepts documents whose type is in mimeTypes, or
// DefaultMimeTypes when mimeTypes is empty.
func MimeFilter(mimeTypes []string) func(models.Document) bool {
	if len(mimeTypes) == 0 {
		mimeTypes = DefaultMimeTypes
	}
	allowed := make(map[string]bool, len(mimeTypes))
	for _, m := range mimeTypes {
		allowed[m] = true
	}
	return func(d models.Document) bool { return allowed[d.MimeType] }
}

// Walk lists every accepted, non-trashed document beneath rootID. Each folder
// is visited once, so shortcut cycles terminate.
func Walk(ctx context.Context, store Lister, rootID string, accept func(models.Document) bool) ([]models.Document, error) {
	visited := map[string]bool{rootID: true}
	queue := []string{rootID}
	seenDocs := map[string]bool{}

	var docs []models.Document
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		folder := queue[0]
		queue = queue[1:]

		children, err := store.ListChildren(ctx, folder)
		if err != nil {
			return nil, fmt.Errorf("list folder %s: %w", folder, err)
		}
		for _, c := range children {
			switch {
			case c.Trashed:
			case c.IsFolder():
				if !visited[c.ID] {
					visited[c.ID] = true
					queue = append(queue, c.ID)
				}
			case !seenDocs[c.ID] && (accept == nil || accept(c)):
				seenDocs[c.ID] = true
				docs = append(docs, c)
			}
		}
	}
	return docs, nil
}
