package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lukeborglin-coder/mr-broker/internal/models"
	"github.com/lukeborglin-coder/mr-broker/internal/tenant"
)

type TenantStore interface {
	tenant.Directory
	Upsert(ctx context.Context, id, name, rootFolderID string) (*models.Tenant, error)
}

type TenantHandler struct {
	store TenantStore
}

func NewTenantHandler(store TenantStore) *TenantHandler {
	return &TenantHandler{store: store}
}

type tenantRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RootFolderID string `json:"rootFolderId"`
}

func (h *TenantHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.store.Upsert(r.Context(), req.ID, req.Name, req.RootFolderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !tenant.Allowed(r.Context(), id) {
		writeForbidden(w, id)
		return
	}
	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tenants": tenants, "count": len(tenants)})
}
