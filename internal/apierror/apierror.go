// Package apierror provides the error taxonomy shared by the engine, the
// repositories and the HTTP layer, plus the JSON envelope returned to clients.
// Internal causes (driver errors, stack traces) never reach the envelope.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure independently of its transport.
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindValidation        Kind = "validation"
	KindUnauthenticated   Kind = "unauthenticated"
	KindPermissionDenied  Kind = "permission_denied"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflict          Kind = "conflict"
	KindTimeout           Kind = "timeout"
	KindStorageFailure    Kind = "storage_failure"
)

// Error is a classified failure. Err, when set, is the wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// Set for KindInsufficientStock only.
	Product   string
	Available int

	// Retry marks a transient conflict (serialization failure, deadlock).
	Retry bool
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) *Error {
	return newf(KindInvalidArgument, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func PermissionDenied(format string, args ...any) *Error {
	return newf(KindPermissionDenied, format, args...)
}

func Unauthenticated(format string, args ...any) *Error {
	return newf(KindUnauthenticated, format, args...)
}

// InsufficientStock reports that product has only available units left for
// the sale being built.
func InsufficientStock(product string, available int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Msg:       fmt.Sprintf("insufficient stock for product %q: %d available", product, available),
		Product:   product,
		Available: available,
	}
}

// Conflict marks a failure that may succeed when retried (serialization
// failures, deadlocks) or a uniqueness / reference violation.
func Conflict(msg string, cause error) *Error {
	return &Error{Kind: KindConflict, Msg: msg, Err: cause}
}

// Retryable is a Conflict that may succeed if the whole unit of work is
// run again.
func Retryable(msg string, cause error) *Error {
	return &Error{Kind: KindConflict, Msg: msg, Err: cause, Retry: true}
}

// IsRetryable reports whether err carries a transient conflict.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retry
}

func Timeout(cause error) *Error {
	return &Error{Kind: KindTimeout, Msg: "request deadline exceeded", Err: cause}
}

func StorageFailure(cause error) *Error {
	return &Error{Kind: KindStorageFailure, Msg: "storage failure", Err: cause}
}

// KindOf classifies err. Unclassified errors are storage failures; context
// expiry is a timeout. KindOf(nil) returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindStorageFailure
}

// HTTPStatus maps a Kind to the response status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindConflict:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail    string `json:"detail"`
	Code      Kind   `json:"code,omitempty"`
	Product   string `json:"product,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// FromError builds the status and envelope for err. Storage failures and
// timeouts get a fixed message so driver text is never exposed.
func FromError(err error) (int, *APIError) {
	kind := KindOf(err)
	status := HTTPStatus(kind)
	body := &APIError{Code: kind}

	var e *Error
	switch {
	case kind == KindStorageFailure:
		body.Detail = "internal server error"
	case kind == KindTimeout:
		body.Detail = "request deadline exceeded"
	case errors.As(err, &e):
		body.Detail = e.Msg
		if kind == KindConflict && e.Msg == "" {
			body.Detail = "conflict"
		}
		if kind == KindInsufficientStock {
			available := e.Available
			body.Product = e.Product
			body.Available = &available
		}
	default:
		body.Detail = err.Error()
	}
	return status, body
}

// ValidationError wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Code   Kind              `json:"code"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "validation failed", Code: KindValidation, Fields: fields}
}
