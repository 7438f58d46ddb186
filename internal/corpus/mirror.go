package corpus

import (
	"context"
	"log/slog"
	"time"

	"github.com/lukeborglin-coder/mr-broker/internal/cache"
)

const mirrorTTL = 24 * time.Hour

// RedisMirror stores snapshots in Redis through the shared JSON cache.
type RedisMirror struct {
	cache *cache.Cache
}

func NewRedisMirror(c *cache.Cache) *RedisMirror {
	return &RedisMirror{cache: c}
}

func mirrorKey(tenantID string) string {
	return "corpus:membership:" + tenantID
}

func (m *RedisMirror) Load(ctx context.Context, tenantID string) (*Snapshot, bool) {
	var s Snapshot
	if err := m.cache.Get(ctx, mirrorKey(tenantID), &s); err != nil {
		if !cache.IsMiss(err) {
			slog.Warn("failed to read mirrored corpus snapshot", "tenant_id", tenantID, "error", err)
		}
		return nil, false
	}
	if s.Docs == nil {
		return nil, false
	}
	return &s, true
}

func (m *RedisMirror) Save(ctx context.Context, tenantID string, s *Snapshot) error {
	return m.cache.Set(ctx, mirrorKey(tenantID), s, mirrorTTL)
}

func (m *RedisMirror) Drop(ctx context.Context, tenantID string) error {
	return m.cache.Delete(ctx, mirrorKey(tenantID))
}
