package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/ingest"
	"github.com/lukeborglin-coder/mr-broker/internal/queue"
	"github.com/lukeborglin-coder/mr-broker/internal/tenant"
	"github.com/lukeborglin-coder/mr-broker/internal/vectorstore"
)

type IngestService interface {
	IngestTenant(ctx context.Context, tenantID string) (*ingest.Report, error)
	IngestDocument(ctx context.Context, tenantID, fileID string) (ingest.Outcome, error)
	Purge(ctx context.Context, tenantID string) error
}

type IngestHandler struct {
	svc      IngestService
	enqueuer queue.Enqueuer
	index    vectorstore.Index
}

// NewIngestHandler builds the ingest handler. A nil enqueuer disables
// async requests.
func NewIngestHandler(svc IngestService, enqueuer queue.Enqueuer, index vectorstore.Index) *IngestHandler {
	return &IngestHandler{svc: svc, enqueuer: enqueuer, index: index}
}

type ingestRequest struct {
	TenantID string `json:"tenantId"`
	FileID   string `json:"fileId,omitempty"`
	Async    bool   `json:"async,omitempty"`
}

type enqueuedResponse struct {
	RunID  string `json:"runId"`
	TaskID string `json:"taskId"`
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		writeError(w, r, apperr.Newf(apperr.KindValidation, "ingest", "tenantId is required"))
		return
	}
	if !tenant.Allowed(r.Context(), req.TenantID) {
		writeForbidden(w, req.TenantID)
		return
	}

	if req.Async {
		h.enqueue(w, r, req)
		return
	}

	if req.FileID != "" {
		out, err := h.svc.IngestDocument(r.Context(), req.TenantID, req.FileID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	report, err := h.svc.IngestTenant(r.Context(), req.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *IngestHandler) enqueue(w http.ResponseWriter, r *http.Request, req ingestRequest) {
	if h.enqueuer == nil {
		writeProblem(w, http.StatusServiceUnavailable, "unavailable", "async ingestion is not configured")
		return
	}
	runID := uuid.NewString()

	var taskID string
	var err error
	if req.FileID != "" {
		taskID, err = h.enqueuer.EnqueueIngestDocument(r.Context(), queue.IngestDocumentPayload{RunID: runID, TenantID: req.TenantID, FileID: req.FileID})
	} else {
		taskID, err = h.enqueuer.EnqueueIngestFolder(r.Context(), queue.IngestFolderPayload{RunID: runID, TenantID: req.TenantID})
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, enqueuedResponse{RunID: runID, TaskID: taskID})
}

// Stats reports index counts. Tenant-scoped callers see only their own
// namespace.
func (h *IngestHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.DescribeStats(r.Context())
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindVectorIndex, "stats", err))
		return
	}

	ctx := r.Context()
	if scoped := tenant.IDFromContext(ctx); scoped != "" && !tenant.IsAdmin(ctx) {
		ns := vectorstore.Namespace(scoped)
		own := stats.Namespaces[ns]
		stats = &vectorstore.Stats{
			Dimension:        stats.Dimension,
			TotalVectorCount: own.VectorCount,
			Namespaces:       map[string]vectorstore.NamespaceStats{ns: own},
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *IngestHandler) Purge(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if !tenant.Allowed(r.Context(), tenantID) {
		writeForbidden(w, tenantID)
		return
	}
	if err := h.svc.Purge(r.Context(), tenantID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
