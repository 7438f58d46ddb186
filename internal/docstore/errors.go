package docstore

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
)

var (
	ErrUnauthorized = errors.New("docstore: unauthorised (invalid credentials)")
	ErrForbidden    = errors.New("docstore: forbidden (insufficient permissions)")
	ErrNotFound     = errors.New("docstore: file not found")
	ErrRateLimited  = errors.New("docstore: rate limit exceeded")
	ErrTooLarge     = errors.New("docstore: file exceeds download limit")
)

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests ||
			(gerr.Code == http.StatusForbidden && hasReason(gerr, "rateLimitExceeded", "userRateLimitExceeded"))
	}
	return false
}

func hasReason(gerr *googleapi.Error, reasons ...string) bool {
	for _, item := range gerr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}

// wrapError maps a Google API error onto the sentinel errors above and tags
// it with an apperr kind: not_found for 404, document_store otherwise.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	cause := err
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case IsRateLimited(err):
			cause = ErrRateLimited
		case gerr.Code == http.StatusUnauthorized:
			cause = ErrUnauthorized
		case gerr.Code == http.StatusForbidden:
			cause = ErrForbidden
		case gerr.Code == http.StatusNotFound:
			cause = ErrNotFound
		}
	}

	kind := apperr.KindDocumentStore
	if errors.Is(cause, ErrNotFound) {
		kind = apperr.KindNotFound
	}
	return apperr.Wrap(kind, op, cause.Error(), err)
}
