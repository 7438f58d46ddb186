package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/config"
	"github.com/lukeborglin-coder/mr-broker/internal/corpus"
	"github.com/lukeborglin-coder/mr-broker/internal/vectorstore"
)

const (
	DefaultTopK       = 24
	DefaultMaxSources = 8
	MaxTopK           = 100
)

type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Membership reports the documents that currently exist for a tenant.
type Membership interface {
	Snapshot(ctx context.Context, tenantID string) *corpus.Snapshot
}

// Source is one cited document, ranked and numbered for a single answer.
type Source struct {
	Ref        int       `json:"ref"`
	FileID     string    `json:"fileId"`
	FileName   string    `json:"fileName"`
	RawName    string    `json:"rawName"`
	MimeType   string    `json:"mimeType,omitempty"`
	Page       int       `json:"page"`
	Text       string    `json:"text"`
	Score      float64   `json:"score"`
	ModifiedAt time.Time `json:"modifiedAt,omitempty"`
	Link       string    `json:"link,omitempty"`
}

type Retriever struct {
	index      vectorstore.Index
	embedder   Embedder
	membership Membership
	filter     bool
	timeout    time.Duration
	topK       int
	maxSources int
}

// NewRetriever builds a retriever. With filtering enabled, membership may be
// nil, in which case every query is denied.
func NewRetriever(index vectorstore.Index, embedder Embedder, membership Membership, cfg config.RetrievalConfig) *Retriever {
	r := &Retriever{
		index:      index,
		embedder:   embedder,
		membership: membership,
		filter:     cfg.FilterEnabled,
		timeout:    cfg.VectorTimeout,
		topK:       cfg.TopK,
		maxSources: cfg.MaxSources,
	}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}
	if r.maxSources <= 0 {
		r.maxSources = DefaultMaxSources
	}
	return r
}

// Retrieve returns at most maxSources documents relevant to query, newest
// first, one per document. Zero for topK or maxSources selects the default.
func (r *Retriever) Retrieve(ctx context.Context, tenantID, query string, topK, maxSources int) ([]Source, error) {
	if topK <= 0 {
		topK = r.topK
	}
	if maxSources <= 0 {
		maxSources = r.maxSources
	}

	vec, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var snap *corpus.Snapshot
	if r.membership != nil {
		snap = r.membership.Snapshot(ctx, tenantID)
	}

	opts := vectorstore.QueryOptions{TopK: topK}
	if r.filter {
		if snap == nil || snap.Len() == 0 {
			err := apperr.Newf(apperr.KindStalenessFilterEmpty, "retrieve", "no live documents for tenant %q", tenantID)
			slog.Warn("corpus filter denied query", "tenant_id", tenantID, "error", err)
			return []Source{}, nil
		}
		opts.DocumentIDs = snap.IDs()
	}

	qctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	matches, err := r.index.Query(qctx, vectorstore.Namespace(tenantID), vec, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindVectorIndex, "retrieve", "query index", err)
	}

	sources := Dedupe(matches)
	for i := range sources {
		resolve(&sources[i], snap)
	}
	Rank(sources)
	if len(sources) > maxSources {
		sources = sources[:maxSources]
	}
	for i := range sources {
		sources[i].Ref = i + 1
	}

	slog.Debug("retrieved sources", "tenant_id", tenantID, "matches", len(matches), "sources", len(sources))
	return sources, nil
}

// Dedupe keeps the first match of each document. Matches are expected in
// descending similarity order.
func Dedupe(matches []vectorstore.Match) []Source {
	seen := make(map[string]struct{}, len(matches))
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		id := m.Metadata.DocumentID
		if id == "" {
			id = m.Metadata.DocumentName
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		page := m.Metadata.Page
		if page <= 0 {
			page = 1
		}
		sources = append(sources, Source{
			FileID:     id,
			FileName:   DisplayName(m.Metadata.DocumentName),
			RawName:    m.Metadata.DocumentName,
			MimeType:   m.Metadata.MimeType,
			Page:       page,
			Text:       m.Metadata.Text,
			Score:      m.Score,
			ModifiedAt: m.Metadata.ModifiedAt,
			Link:       m.Metadata.SourceLink,
		})
	}
	return sources
}

// resolve settles a source's recency: the live modified time when the
// document store knows one, then the time stored at ingestion, then a date
// read from the file name.
func resolve(s *Source, snap *corpus.Snapshot) {
	if snap != nil {
		if doc, ok := snap.Lookup(s.FileID); ok {
			if !doc.ModifiedTime.IsZero() {
				s.ModifiedAt = doc.ModifiedTime
			}
			if doc.Name != "" {
				s.RawName = doc.Name
				s.FileName = DisplayName(doc.Name)
			}
			if s.Link == "" {
				s.Link = doc.WebViewLink
			}
			if s.MimeType == "" {
				s.MimeType = doc.MimeType
			}
		}
	}
	if !s.ModifiedAt.IsZero() {
		return
	}
	if t, ok := ParseFilenameDate(s.RawName); ok {
		s.ModifiedAt = t
	}
}

// Rank orders sources newest first. Sources of equal age keep their
// similarity order.
func Rank(sources []Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].ModifiedAt.After(sources[j].ModifiedAt)
	})
}
