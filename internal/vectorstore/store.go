package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// Metadata travels with every index entry and is returned on match.
type Metadata struct {
	TenantID     string    `json:"tenant_id"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	MimeType     string    `json:"mime_type,omitempty"`
	ChunkIndex   int       `json:"chunk_index"`
	Page         int       `json:"page,omitempty"`
	Text         string    `json:"text"`
	SourceLink   string    `json:"source_link,omitempty"`
	ModifiedAt   time.Time `json:"modified_at,omitempty"`
}

type Entry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

type QueryOptions struct {
	TopK int
	// DocumentIDs restricts matches to these documents. nil means no
	// restriction; a non-nil empty slice matches nothing.
	DocumentIDs []string
}

type NamespaceStats struct {
	VectorCount int64 `json:"vector_count"`
}

type Stats struct {
	Dimension        int                       `json:"dimension"`
	TotalVectorCount int64                     `json:"total_vector_count"`
	Namespaces       map[string]NamespaceStats `json:"namespaces"`
}

// Index is a namespaced similarity index. Upsert overwrites entries with the
// same ID; nothing else is ever replaced.
type Index interface {
	Upsert(ctx context.Context, namespace string, entries []Entry) error
	Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]Match, error)
	ListIDs(ctx context.Context, namespace, prefix string) ([]string, error)
	Delete(ctx context.Context, namespace string, ids []string) error
	DeleteNamespace(ctx context.Context, namespace string) error
	DescribeStats(ctx context.Context) (*Stats, error)
}

const DefaultTopK = 10

var namespaceUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// Namespace returns the index namespace holding a tenant's entries. The
// readable part is folded to [a-z0-9_-]; the digest of the exact id keeps
// ids that fold alike, such as "acme" and "ACME", apart.
func Namespace(tenantID string) string {
	sum := sha256.Sum256([]byte(tenantID))
	slug := strings.Trim(namespaceUnsafe.ReplaceAllString(strings.ToLower(tenantID), "-"), "-")
	if slug == "" {
		return "tenant-" + hex.EncodeToString(sum[:8])
	}
	return "tenant-" + slug + "-" + hex.EncodeToString(sum[:8])
}

func allowSet(ids []string) map[string]struct{} {
	if ids == nil {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
