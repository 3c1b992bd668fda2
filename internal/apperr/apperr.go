// Package apperr defines the error taxonomy shared by every membership
// operation. Business-rule failures are returned as *Error values; anything
// else that reaches an operation boundary is reported as KindUnexpected.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindGone          Kind = "gone"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindValidation    Kind = "validation"
	KindNoOp          Kind = "no_op"
	KindUnavailable   Kind = "unavailable"
	KindUnexpected    Kind = "unexpected"
)

type Error struct {
	Kind    Kind
	Message string
	// Detail is rendered to callers verbatim (quota snapshots, member counts).
	Detail any
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can write errors.Is(err, apperr.ErrGone).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// WithDetail returns a copy of e carrying detail.
func (e *Error) WithDetail(detail any) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// Kind-only sentinels for errors.Is.
var (
	ErrUnauthorized  = &Error{Kind: KindUnauthorized}
	ErrForbidden     = &Error{Kind: KindForbidden}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrGone          = &Error{Kind: KindGone}
	ErrQuotaExceeded = &Error{Kind: KindQuotaExceeded}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNoOp          = &Error{Kind: KindNoOp}
	ErrUnavailable   = &Error{Kind: KindUnavailable}
	ErrUnexpected    = &Error{Kind: KindUnexpected}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Unauthorized(message string) *Error  { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error     { return New(KindForbidden, message) }
func NotFound(message string) *Error      { return New(KindNotFound, message) }
func Conflict(message string) *Error      { return New(KindConflict, message) }
func Gone(message string) *Error          { return New(KindGone, message) }
func QuotaExceeded(message string) *Error { return New(KindQuotaExceeded, message) }
func Validation(message string) *Error    { return New(KindValidation, message) }
func NoOp(message string) *Error          { return New(KindNoOp, message) }
func Unavailable(message string) *Error   { return New(KindUnavailable, message) }

// Wrap classifies err. Errors already in the taxonomy pass through untouched;
// anything else becomes KindUnexpected with message as context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Kind: KindUnexpected, Message: message, Err: err}
}

// KindOf reports the taxonomy kind of err; unknown errors are unexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// Message returns the caller-safe reason string for err.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindUnexpected {
		return appErr.Message
	}
	return "An unexpected error occurred"
}

// DetailOf returns the Detail payload of err, if any.
func DetailOf(err error) any {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Detail
	}
	return nil
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindNoOp, KindQuotaExceeded:
		return http.StatusConflict
	case KindGone:
		return http.StatusGone
	case KindValidation:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
