package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Index for tests and single-node deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	spaces    map[string]map[string]Entry
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		spaces:    make(map[string]map[string]Entry),
	}
}

func (s *MemoryStore) Upsert(_ context.Context, namespace string, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if s.dimension > 0 && len(e.Vector) != s.dimension {
			return fmt.Errorf("entry %s: dimension %d, want %d", e.ID, len(e.Vector), s.dimension)
		}
	}

	space, ok := s.spaces[namespace]
	if !ok {
		space = make(map[string]Entry)
		s.spaces[namespace] = space
	}
	for _, e := range entries {
		e.Vector = append([]float32(nil), e.Vector...)
		space[e.ID] = e
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, namespace string, vector []float32, opts QueryOptions) ([]Match, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	allowed := allowSet(opts.DocumentIDs)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for id, e := range s.spaces[namespace] {
		if allowed != nil {
			if _, ok := allowed[e.Metadata.DocumentID]; !ok {
				continue
			}
		}
		matches = append(matches, Match{ID: id, Score: cosine(vector, e.Vector), Metadata: e.Metadata})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

func (s *MemoryStore) ListIDs(_ context.Context, namespace, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id := range s.spaces[namespace] {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Delete(_ context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	space := s.spaces[namespace]
	for _, id := range ids {
		delete(space, id)
	}
	return nil
}

func (s *MemoryStore) DeleteNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.spaces, namespace)
	return nil
}

func (s *MemoryStore) DescribeStats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{Dimension: s.dimension, Namespaces: make(map[string]NamespaceStats, len(s.spaces))}
	for ns, space := range s.spaces {
		n := int64(len(space))
		stats.Namespaces[ns] = NamespaceStats{VectorCount: n}
		stats.TotalVectorCount += n
	}
	return stats, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
