package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeProblem(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Detail: detail}})
}

// writeError maps an error's kind to an HTTP status. External dependency
// failures are 502, or 504 when they timed out.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind, err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "kind", kind, "error", err)
	}
	if kind == "" {
		kind = "internal"
	}
	detail := apperr.DetailOf(err)
	if status == http.StatusInternalServerError {
		detail = "internal error"
	}
	writeProblem(w, status, string(kind), detail)
}

func statusFor(kind apperr.Kind, err error) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExtraction:
		return http.StatusUnprocessableEntity
	case apperr.KindEmbedding, apperr.KindVectorIndex, apperr.KindGeneration, apperr.KindDocumentStore:
		if apperr.IsTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case apperr.KindStalenessFilterEmpty:
		return http.StatusServiceUnavailable
	}
	if apperr.IsTimeout(err) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeForbidden(w http.ResponseWriter, tenantID string) {
	writeProblem(w, http.StatusForbidden, "forbidden", "caller may not access tenant "+tenantID)
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.KindValidation, "decode", "invalid request body", err)
	}
	return nil
}
