package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/models"
)

// Directory resolves tenant ids to their registration.
type Directory interface {
	Get(ctx context.Context, id string) (*models.Tenant, error)
	List(ctx context.Context) ([]models.Tenant, error)
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

func (s *Service) Get(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRow(ctx,
		"SELECT id, name, root_folder_id, created_at, updated_at FROM tenants WHERE id = $1", id,
	).Scan(&t.ID, &t.Name, &t.RootFolderID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "tenant.Get", "tenant %q not registered", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (s *Service) List(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, name, root_folder_id, created_at, updated_at FROM tenants ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[models.Tenant])
}

// Upsert registers a tenant or moves it to a new root folder.
func (s *Service) Upsert(ctx context.Context, id, name, rootFolderID string) (*models.Tenant, error) {
	if err := validate(id, rootFolderID); err != nil {
		return nil, err
	}
	if name == "" {
		name = id
	}

	var t models.Tenant
	err := s.db.QueryRow(ctx,
		`INSERT INTO tenants (id, name, root_folder_id) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = $2, root_folder_id = $3, updated_at = now()
		 RETURNING id, name, root_folder_id, created_at, updated_at`,
		id, name, rootFolderID,
	).Scan(&t.ID, &t.Name, &t.RootFolderID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert tenant: %w", err)
	}
	return &t, nil
}

func validate(id, rootFolderID string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return apperr.Newf(apperr.KindValidation, "tenant.Upsert", "tenant id is required")
	case strings.TrimSpace(rootFolderID) == "":
		return apperr.Newf(apperr.KindValidation, "tenant.Upsert", "root folder id is required")
	}
	return nil
}

// Static is a read-only Directory built from configuration.
type Static struct {
	tenants map[string]models.Tenant
}

func NewStatic(folders map[string]string) *Static {
	s := &Static{tenants: make(map[string]models.Tenant, len(folders))}
	now := time.Now().UTC()
	for id, folder := range folders {
		s.tenants[id] = models.Tenant{ID: id, Name: id, RootFolderID: folder, CreatedAt: now, UpdatedAt: now}
	}
	return s
}

func (s *Static) Get(_ context.Context, id string) (*models.Tenant, error) {
	t, ok := s.tenants[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "tenant.Get", "tenant %q not registered", id)
	}
	return &t, nil
}

func (s *Static) List(_ context.Context) ([]models.Tenant, error) {
	out := make([]models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Chain consults each Directory in order and returns the first hit.
type Chain []Directory

func (c Chain) Get(ctx context.Context, id string) (*models.Tenant, error) {
	var lastErr error = apperr.Newf(apperr.KindNotFound, "tenant.Get", "tenant %q not registered", id)
	for _, d := range c {
		t, err := d.Get(ctx, id)
		if err == nil {
			return t, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c Chain) List(ctx context.Context) ([]models.Tenant, error) {
	seen := map[string]bool{}
	var out []models.Tenant
	for _, d := range c {
		ts, err := d.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range ts {
			if !seen[t.ID] {
				seen[t.ID] = true
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Registry reads through a Chain and writes new registrations to the
// database-backed Service. Without a Service, Upsert is rejected.
type Registry struct {
	Chain
	db *Service
}

func NewRegistry(db *Service, fallback ...Directory) *Registry {
	chain := Chain(fallback)
	if db != nil {
		chain = append(Chain{db}, fallback...)
	}
	return &Registry{Chain: chain, db: db}
}

func (r *Registry) Upsert(ctx context.Context, id, name, rootFolderID string) (*models.Tenant, error) {
	if err := validate(id, rootFolderID); err != nil {
		return nil, err
	}
	if r.db == nil {
		return nil, apperr.Newf(apperr.KindValidation, "tenant.Upsert", "tenant registration requires DATABASE_URL")
	}
	return r.db.Upsert(ctx, id, name, rootFolderID)
}
