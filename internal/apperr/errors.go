// Package apperr defines the typed error shape shared by every component of
// the trust and data-plane substrate, and the single place that maps a
// component error down to an HTTP status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the category of a substrate error.
type Kind string

const (
	KindValidation       Kind = "ValidationError"
	KindUnauthorized     Kind = "Unauthorized"
	KindForbidden        Kind = "Forbidden"
	KindNotFound         Kind = "NotFound"
	KindConflict         Kind = "Conflict"
	KindRateLimited      Kind = "RateLimited"
	KindDecryptionFailed Kind = "DecryptionFailed"
	KindIntegrityFailed  Kind = "IntegrityFailed"
	KindUpstream         Kind = "UpstreamUnavailable"
	KindEmailFailed      Kind = "EmailDeliveryFailed"
	KindCrypto           Kind = "CryptoError"
	KindTimeout          Kind = "Timeout"
	KindInternal         Kind = "InternalError"
)

// defaultStatus maps each Kind to its default HTTP status. Individual errors
// may override it (e.g. DecryptionFailed is 401 at the envelope boundary but
// 400 when it fails on a plain request body).
var defaultStatus = map[Kind]int{
	KindValidation:       http.StatusBadRequest,
	KindUnauthorized:     http.StatusUnauthorized,
	KindForbidden:        http.StatusForbidden,
	KindNotFound:         http.StatusNotFound,
	KindConflict:         http.StatusConflict,
	KindRateLimited:      http.StatusTooManyRequests,
	KindDecryptionFailed: http.StatusUnauthorized,
	KindIntegrityFailed:  http.StatusInternalServerError,
	KindUpstream:         http.StatusServiceUnavailable,
	KindEmailFailed:      http.StatusBadGateway,
	KindCrypto:           http.StatusInternalServerError,
	KindTimeout:          http.StatusRequestTimeout,
	KindInternal:         http.StatusInternalServerError,
}

// Error is the typed error carried across every component boundary.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Message    string
	Detail     string
	Retryable  bool
	RetryAfter int // seconds; only meaningful for KindRateLimited
	cause      error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/As to reach a wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with its default HTTP status.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:       kind,
		HTTPStatus: defaultStatus[kind],
		Message:    message,
		Retryable:  kind == KindUpstream || kind == KindTimeout,
	}
}

// Wrap builds an Error of the given kind, attaching cause for errors.Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.cause = cause
	return e
}

// WithDetail returns a copy of e with Detail set.
func (e *Error) WithDetail(detail string) *Error {
	c := *e
	c.Detail = detail
	return &c
}

// WithStatus returns a copy of e with HTTPStatus overridden.
func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.HTTPStatus = status
	return &c
}

// WithRetryAfter returns a copy of e with RetryAfter set (KindRateLimited).
func (e *Error) WithRetryAfter(seconds int) *Error {
	c := *e
	c.RetryAfter = seconds
	return &c
}

// As extracts an *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOrDefault returns err's HTTP status if it is (or wraps) an *Error,
// otherwise 500.
func StatusOrDefault(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
