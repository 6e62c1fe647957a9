// Package apperr defines the structured error kinds shared by the content
// tree, the admin gateway, the navigation machine and the transports.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so callers can branch without string matching.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindExternalIO   Kind = "external_io"
	KindPrecondition Kind = "precondition"
	KindTimeout      Kind = "timeout"
)

// Reasons surfaced verbatim to the UI.
const (
	ReasonNameRequired   = "name required"
	ReasonTitleRequired  = "title required"
	ReasonURLRequired    = "url required"
	ReasonVideoRequired  = "video reference required"
	ReasonIDRequired     = "id required"
	ReasonInvalidID      = "id must not contain '|' or '/'"
	ReasonDuplicateID    = "duplicate id"
	ReasonParentNotFound = "parent not found"
	ReasonInvalidClass   = "unknown class level"
	ReasonInvalidKind    = "unknown resource kind"
)

// Error is the single structured error type of the application.
type Error struct {
	Kind   Kind
	Reason string
	Field  string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && t.Field == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrExternalIO   = &Error{Kind: KindExternalIO}
	ErrPrecondition = &Error{Kind: KindPrecondition}
	ErrTimeout      = &Error{Kind: KindTimeout}
)

// Validation reports bad or missing input on field.
func Validation(field, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

// NotFound reports a missing node, e.g. NotFound("chapter", "c1").
func NotFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Field: what, Reason: fmt.Sprintf("%s %q not found", what, id)}
}

// Unauthorized reports a failed role check for op.
func Unauthorized(op string) *Error {
	return &Error{Kind: KindUnauthorized, Reason: "admin role required for " + op}
}

// Precondition reports a navigation transition attempted out of order.
func Precondition(reason string) *Error {
	return &Error{Kind: KindPrecondition, Reason: reason}
}

// External wraps a failed collaborator call. A deadline becomes KindTimeout.
// It returns nil for a nil err.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) && (ae.Kind == KindExternalIO || ae.Kind == KindTimeout) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Reason: op + " timed out", Err: err}
	}
	return &Error{Kind: KindExternalIO, Reason: op + " failed", Err: err}
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindPrecondition:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindExternalIO:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
