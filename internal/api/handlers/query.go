package handlers

import (
	"net/http"

	"github.com/lukeborglin-coder/mr-broker/internal/rag"
	"github.com/lukeborglin-coder/mr-broker/internal/tenant"
)

type QueryHandler struct {
	pipeline rag.Pipeline
}

func NewQueryHandler(p rag.Pipeline) *QueryHandler {
	return &QueryHandler{pipeline: p}
}

// Query answers a question over one tenant's corpus. A tenant-scoped caller
// may omit tenantId.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req rag.QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.TenantID == "" {
		req.TenantID = tenant.IDFromContext(r.Context())
	}
	if !tenant.Allowed(r.Context(), req.TenantID) {
		writeForbidden(w, req.TenantID)
		return
	}

	resp, err := h.pipeline.Query(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
