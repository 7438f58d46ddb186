package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/corpus"
	"github.com/lukeborglin-coder/mr-broker/internal/render"
	"github.com/lukeborglin-coder/mr-broker/internal/tenant"
)

type Membership interface {
	Snapshot(ctx context.Context, tenantID string) *corpus.Snapshot
}

type PageHandler struct {
	renderer   render.Renderer
	membership Membership
}

func NewPageHandler(renderer render.Renderer, membership Membership) *PageHandler {
	return &PageHandler{renderer: renderer, membership: membership}
}

// Page proxies a rendered page image. Tenant-scoped callers only see pages
// of documents currently in their corpus.
func (h *PageHandler) Page(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		writeError(w, r, apperr.Newf(apperr.KindValidation, "page", "page must be a positive integer"))
		return
	}

	ctx := r.Context()
	if scoped := tenant.IDFromContext(ctx); scoped != "" && !tenant.IsAdmin(ctx) {
		if h.membership == nil || !h.membership.Snapshot(ctx, scoped).Contains(fileID) {
			writeError(w, r, apperr.Newf(apperr.KindNotFound, "page", "document %s not found", fileID))
			return
		}
	}

	img, err := h.renderer.RenderPage(ctx, fileID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer img.Body.Close()

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	if img.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(img.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, img.Body); err != nil {
		slog.Warn("page stream interrupted", "file_id", fileID, "page", page, "error", err)
	}
}
