package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/corpus"
	"github.com/lukeborglin-coder/mr-broker/internal/docstore"
	"github.com/lukeborglin-coder/mr-broker/internal/models"
	"github.com/lukeborglin-coder/mr-broker/internal/tenant"
	"github.com/lukeborglin-coder/mr-broker/internal/vectorstore"
)

// Service ingests whole tenants or single documents and purges tenant
// indexes.
type Service struct {
	ingestor    *Ingestor
	store       docstore.Store
	directory   tenant.Directory
	index       vectorstore.Index
	membership  *corpus.Cache
	accept      func(models.Document) bool
	concurrency int
}

func NewService(
	ingestor *Ingestor,
	store docstore.Store,
	directory tenant.Directory,
	index vectorstore.Index,
	membership *corpus.Cache,
	accept func(models.Document) bool,
	concurrency int,
) *Service {
	return &Service{
		ingestor:    ingestor,
		store:       store,
		directory:   directory,
		index:       index,
		membership:  membership,
		accept:      accept,
		concurrency: concurrency,
	}
}

// Documents lists the ingestible documents under the tenant's root folder.
func (s *Service) Documents(ctx context.Context, tenantID string) ([]models.Document, error) {
	t, err := s.directory.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	docs, err := corpus.Walk(ctx, s.store, t.RootFolderID, s.accept)
	if err != nil {
		return nil, apperr.New(apperr.KindDocumentStore, "ingest.Documents", err)
	}
	return docs, nil
}

// IngestTenant walks the tenant's folder tree and ingests every document.
func (s *Service) IngestTenant(ctx context.Context, tenantID string) (*Report, error) {
	docs, err := s.Documents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	report := s.ingestor.Batch(ctx, tenantID, docs, s.concurrency)
	if s.membership != nil {
		s.membership.Invalidate(ctx, tenantID)
	}
	return report, nil
}

// IngestDocument fetches one file's metadata and ingests it. The file must
// be a document in the tenant's corpus; any other id is not found.
func (s *Service) IngestDocument(ctx context.Context, tenantID, fileID string) (Outcome, error) {
	t, err := s.directory.Get(ctx, tenantID)
	if err != nil {
		return Outcome{}, err
	}
	doc, err := s.store.Get(ctx, fileID)
	if err != nil {
		return Outcome{}, err
	}
	if doc.IsFolder() {
		return Outcome{}, apperr.Newf(apperr.KindValidation, "ingest.IngestDocument", "%s is a folder", fileID)
	}
	member, err := s.isMember(ctx, tenantID, t.RootFolderID, fileID)
	if err != nil {
		return Outcome{}, apperr.New(apperr.KindDocumentStore, "ingest.IngestDocument", err)
	}
	if !member {
		slog.Warn("rejected ingest of document outside tenant corpus", "tenant_id", tenantID, "file_id", fileID)
		return Outcome{}, apperr.Newf(apperr.KindNotFound, "ingest.IngestDocument", "document %s not found for tenant %s", fileID, tenantID)
	}
	return s.ingestor.IngestDocument(ctx, tenantID, *doc), nil
}

// isMember reports whether fileID is a document under the tenant's root
// folder. A cached snapshot that lacks the file is reloaded once, so a file
// added since the last refresh is still found.
func (s *Service) isMember(ctx context.Context, tenantID, rootFolderID, fileID string) (bool, error) {
	if s.membership == nil {
		docs, err := corpus.Walk(ctx, s.store, rootFolderID, s.accept)
		if err != nil {
			return false, err
		}
		for _, d := range docs {
			if d.ID == fileID {
				return true, nil
			}
		}
		return false, nil
	}
	if s.membership.Snapshot(ctx, tenantID).Contains(fileID) {
		return true, nil
	}
	snap, err := s.membership.Refresh(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return snap.Contains(fileID), nil
}

// Purge removes every index entry of the tenant.
func (s *Service) Purge(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return apperr.Newf(apperr.KindValidation, "ingest.Purge", "tenant id is required")
	}
	if err := s.index.DeleteNamespace(ctx, vectorstore.Namespace(tenantID)); err != nil {
		return apperr.New(apperr.KindVectorIndex, "ingest.Purge", fmt.Errorf("delete namespace: %w", err))
	}
	if s.membership != nil {
		s.membership.Invalidate(ctx, tenantID)
	}
	slog.Info("tenant index purged", "tenant_id", tenantID)
	return nil
}
