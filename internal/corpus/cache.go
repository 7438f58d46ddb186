package corpus

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lukeborglin-coder/mr-broker/internal/models"
	"github.com/lukeborglin-coder/mr-broker/internal/tenant"
)

const DefaultTTL = 60 * time.Second

// Snapshot is an immutable view of a tenant's live documents.
type Snapshot struct {
	Docs        map[string]models.Document `json:"docs"`
	RefreshedAt time.Time                  `json:"refreshed_at"`
}

var emptySnapshot = &Snapshot{Docs: map[string]models.Document{}}

func NewSnapshot(docs []models.Document, at time.Time) *Snapshot {
	s := &Snapshot{Docs: make(map[string]models.Document, len(docs)), RefreshedAt: at}
	for _, d := range docs {
		s.Docs[d.ID] = d
	}
	return s
}

func (s *Snapshot) Len() int { return len(s.Docs) }

func (s *Snapshot) Contains(id string) bool {
	_, ok := s.Docs[id]
	return ok
}

// Lookup returns the live metadata of a member document.
func (s *Snapshot) Lookup(id string) (models.Document, bool) {
	d, ok := s.Docs[id]
	return d, ok
}

// IDs returns the member ids in sorted order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Docs))
	for id := range s.Docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Mirror persists snapshots outside the process so a restarted instance can
// still answer while the document store is unreachable.
type Mirror interface {
	Load(ctx context.Context, tenantID string) (*Snapshot, bool)
	Save(ctx context.Context, tenantID string, s *Snapshot) error
	Drop(ctx context.Context, tenantID string) error
}

// Cache answers "which documents currently exist for this tenant". Each
// tenant's snapshot is replaced atomically; readers never see a partial set.
// A refresh failure keeps serving the previous snapshot, and a tenant that
// was never loaded resolves to an empty snapshot. Refreshes of one tenant
// are collapsed into a single listing and, failed or not, are attempted at
// most once per TTL.
type Cache struct {
	store     Lister
	directory tenant.Directory
	accept    func(models.Document) bool
	ttl       time.Duration
	mirror    Mirror
	now       func() time.Time
	flights   singleflight.Group

	mu      sync.Mutex
	tenants map[string]*tenantSlot
}

type tenantSlot struct {
	snap atomic.Pointer[Snapshot]
	// attempted is the UnixNano time of the last refresh attempt, 0 if none.
	attempted atomic.Int64
}

var errBackoff = errors.New("corpus refresh attempted recently")

type Option func(*Cache)

func WithMirror(m Mirror) Option { return func(c *Cache) { c.mirror = m } }

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

func NewCache(store Lister, directory tenant.Directory, accept func(models.Document) bool, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store:     store,
		directory: directory,
		accept:    accept,
		ttl:       ttl,
		now:       time.Now,
		tenants:   make(map[string]*tenantSlot),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) slot(tenantID string) *tenantSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.tenants[tenantID]
	if !ok {
		s = &tenantSlot{}
		c.tenants[tenantID] = s
	}
	return s
}

func (c *Cache) fresh(s *Snapshot) bool {
	return s != nil && c.now().Sub(s.RefreshedAt) < c.ttl
}

func (c *Cache) backingOff(s *tenantSlot) bool {
	at := s.attempted.Load()
	return at != 0 && c.now().Sub(time.Unix(0, at)) < c.ttl
}

// Snapshot returns the tenant's current membership, refreshing it when older
// than the TTL. It never returns nil.
func (c *Cache) Snapshot(ctx context.Context, tenantID string) *Snapshot {
	s := c.slot(tenantID)
	if cur := s.snap.Load(); c.fresh(cur) {
		return cur
	}
	if c.backingOff(s) {
		return c.fallback(ctx, tenantID, s)
	}

	snap, err := c.refresh(ctx, tenantID, s, false)
	if err == nil {
		return snap
	}
	if !errors.Is(err, errBackoff) {
		slog.Warn("corpus membership refresh failed", "tenant_id", tenantID, "error", err, "has_previous", s.snap.Load() != nil)
	}
	return c.fallback(ctx, tenantID, s)
}

// Refresh reloads the tenant's membership now, ignoring the TTL, and reports
// why when the listing fails.
func (c *Cache) Refresh(ctx context.Context, tenantID string) (*Snapshot, error) {
	return c.refresh(ctx, tenantID, c.slot(tenantID), true)
}

func (c *Cache) refresh(ctx context.Context, tenantID string, s *tenantSlot, force bool) (*Snapshot, error) {
	key := tenantID
	if force {
		key = "force\x00" + tenantID
	}
	v, err, _ := c.flights.Do(key, func() (any, error) {
		if !force {
			// Another flight may have finished since the caller looked.
			if cur := s.snap.Load(); c.fresh(cur) {
				return cur, nil
			}
			if c.backingOff(s) {
				return nil, errBackoff
			}
		}
		s.attempted.Store(c.now().UnixNano())

		snap, err := c.load(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		s.snap.Store(snap)
		if c.mirror != nil {
			if err := c.mirror.Save(ctx, tenantID, snap); err != nil {
				slog.Warn("failed to mirror corpus snapshot", "tenant_id", tenantID, "error", err)
			}
		}
		slog.Debug("corpus membership refreshed", "tenant_id", tenantID, "documents", snap.Len())
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// fallback serves the last good snapshot, then the mirrored one, then empty.
func (c *Cache) fallback(ctx context.Context, tenantID string, s *tenantSlot) *Snapshot {
	if cur := s.snap.Load(); cur != nil {
		return cur
	}
	if c.mirror != nil {
		if mirrored, ok := c.mirror.Load(ctx, tenantID); ok {
			s.snap.CompareAndSwap(nil, mirrored)
			return mirrored
		}
	}
	return emptySnapshot
}

// Invalidate forgets the tenant so the next Snapshot call reloads it.
func (c *Cache) Invalidate(ctx context.Context, tenantID string) {
	c.mu.Lock()
	delete(c.tenants, tenantID)
	c.mu.Unlock()
	if c.mirror != nil {
		if err := c.mirror.Drop(ctx, tenantID); err != nil {
			slog.Warn("failed to drop mirrored corpus snapshot", "tenant_id", tenantID, "error", err)
		}
	}
}

func (c *Cache) load(ctx context.Context, tenantID string) (*Snapshot, error) {
	t, err := c.directory.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	docs, err := Walk(ctx, c.store, t.RootFolderID, c.accept)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(docs, c.now()), nil
}
