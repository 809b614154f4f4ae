// Package apperr defines the closed error taxonomy shared by all domain
// services and the HTTP layer. Handlers map these kinds to status codes in
// one place so that individual endpoints never leak authorization detail.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an application error.
type Kind int

const (
	// Unexpected is the catch-all for internal failures. Callers see a
	// generic message; the real cause is logged server-side.
	Unexpected Kind = iota
	// AccessDenied means authorization failed. The response body never
	// explains why, to avoid role/consent enumeration.
	AccessDenied
	// ValidationFailed means the payload violated shape or business rules.
	// Field-level messages are returned to the caller.
	ValidationFailed
	// NotFound means the addressed resource does not exist.
	NotFound
	// DuplicateKey means a storage uniqueness invariant was violated.
	DuplicateKey
	// ExtractionFailed means text extraction from an uploaded document
	// failed. Non-fatal in the default upload workflow.
	ExtractionFailed
)

// Error is an application error carrying a Kind and, for validation
// failures, per-field messages.
type Error struct {
	Kind   Kind
	Msg    string
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for f, m := range e.Fields {
			parts = append(parts, f+": "+m)
		}
		sort.Strings(parts)
		return "validation failed: " + strings.Join(parts, "; ")
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "internal error"
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Validation creates a ValidationFailed error with field-level messages.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: ValidationFailed, Fields: fields}
}

// Field creates a ValidationFailed error for a single field.
func Field(field, msg string) *Error {
	return Validation(map[string]string{field: msg})
}

// KindOf returns the Kind of err, or Unexpected when err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Unexpected
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldsOf returns the field messages of a validation error, or nil.
func FieldsOf(err error) map[string]string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}

// HTTPStatus maps an error kind to the HTTP status the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case AccessDenied:
		return http.StatusForbidden
	case ValidationFailed:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case DuplicateKey:
		return http.StatusConflict
	case ExtractionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message the API exposes for err. AccessDenied
// and Unexpected are collapsed to fixed strings.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case AccessDenied:
		return "access denied"
	case Unexpected:
		return "internal server error"
	default:
		return err.Error()
	}
}
