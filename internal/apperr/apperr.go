// Package apperr defines the failure kinds the ingestion and query pipelines
// report, so callers can tell "nothing found" apart from "service down".
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindExtraction           Kind = "extraction"
	KindEmbedding            Kind = "embedding_service"
	KindVectorIndex          Kind = "vector_index"
	KindGeneration           Kind = "generation_service"
	KindValidation           Kind = "validation"
	KindStalenessFilterEmpty Kind = "staleness_filter_empty"
	KindDocumentStore        Kind = "document_store"
	KindNotFound             Kind = "not_found"
)

// Error carries a machine-readable Kind alongside the wrapped cause.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil && e.Err.Error() != e.Detail {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. The detail defaults to the cause's message.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Detail: err.Error(), Err: err}
}

// Newf builds an error with a formatted detail and no underlying cause.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a human-readable detail to a cause.
func Wrap(kind Kind, op, detail string, err error) error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

// KindOf returns the outermost Kind in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DetailOf returns the detail of the outermost *Error, or err.Error().
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Detail != "" {
		return e.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
