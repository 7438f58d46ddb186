package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore keeps entries in the index_entries table, one row per
// (namespace, id), scored by cosine distance.
type PgVectorStore struct {
	db        *pgxpool.Pool
	dimension int
}

func NewPgVectorStore(db *pgxpool.Pool, dimension int) *PgVectorStore {
	return &PgVectorStore{db: db, dimension: dimension}
}

func (s *PgVectorStore) Upsert(ctx context.Context, namespace string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		if s.dimension > 0 && len(e.Vector) != s.dimension {
			return fmt.Errorf("entry %s: dimension %d, want %d", e.ID, len(e.Vector), s.dimension)
		}
		batch.Queue(
			`INSERT INTO index_entries (namespace, id, document_id, embedding, metadata, updated_at)
			 VALUES ($1, $2, $3, $4, $5, now())
			 ON CONFLICT (namespace, id) DO UPDATE
			 SET document_id = $3, embedding = $4, metadata = $5, updated_at = now()`,
			namespace, e.ID, e.Metadata.DocumentID, pgvector.NewVector(e.Vector), e.Metadata,
		)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert entries: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PgVectorStore) Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]Match, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.DocumentIDs != nil && len(opts.DocumentIDs) == 0 {
		return nil, nil
	}

	embedding := pgvector.NewVector(vector)

	var (
		rows pgx.Rows
		err  error
	)
	if opts.DocumentIDs == nil {
		rows, err = s.db.Query(ctx,
			`SELECT id, 1 - (embedding <=> $1) AS score, metadata
			 FROM index_entries
			 WHERE namespace = $2
			 ORDER BY embedding <=> $1
			 LIMIT $3`,
			embedding, namespace, opts.TopK,
		)
	} else {
		rows, err = s.db.Query(ctx,
			`SELECT id, 1 - (embedding <=> $1) AS score, metadata
			 FROM index_entries
			 WHERE namespace = $2 AND document_id = ANY($4)
			 ORDER BY embedding <=> $1
			 LIMIT $3`,
			embedding, namespace, opts.TopK, opts.DocumentIDs,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Score, &m.Metadata); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *PgVectorStore) ListIDs(ctx context.Context, namespace, prefix string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM index_entries
		 WHERE namespace = $1 AND starts_with(id, $2)
		 ORDER BY id`,
		namespace, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PgVectorStore) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		"DELETE FROM index_entries WHERE namespace = $1 AND id = ANY($2)",
		namespace, ids,
	)
	return err
}

func (s *PgVectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.db.Exec(ctx, "DELETE FROM index_entries WHERE namespace = $1", namespace)
	return err
}

func (s *PgVectorStore) DescribeStats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.Query(ctx,
		"SELECT namespace, count(*) FROM index_entries GROUP BY namespace ORDER BY namespace",
	)
	if err != nil {
		return nil, fmt.Errorf("describe stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{Dimension: s.dimension, Namespaces: map[string]NamespaceStats{}}
	for rows.Next() {
		var (
			ns    string
			count int64
		)
		if err := rows.Scan(&ns, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.Namespaces[ns] = NamespaceStats{VectorCount: count}
		stats.TotalVectorCount += count
	}
	return stats, rows.Err()
}
