// Package apperr defines the error kinds surfaced by the enrichment service
// and their mapping onto HTTP responses.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers.
type Kind int

const (
	// KindInternal is any error without an explicit kind.
	KindInternal Kind = iota
	// KindValidation is bad caller input.
	KindValidation
	// KindNotFound is an unknown session or record.
	KindNotFound
	// KindUpstream is an external service that is unreachable or out of retries.
	KindUpstream
	// KindRateLimit is an upstream 429 that survived serialization and retries.
	KindRateLimit
	// KindPartial is a batch that only partly succeeded.
	KindPartial
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFoundError"
	case KindUpstream:
		return "UpstreamError"
	case KindRateLimit:
		return "RateLimitError"
	case KindPartial:
		return "PartialFailure"
	default:
		return "InternalError"
	}
}

// Error carries a Kind alongside an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindNotFound error for the named entity.
func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s not found: %s", entity, id)}
}

// Upstream wraps err as a KindUpstream error.
func Upstream(err error, msg string) error {
	return &Error{Kind: KindUpstream, Msg: msg, Err: err}
}

// RateLimit wraps err as a KindRateLimit error.
func RateLimit(err error, msg string) error {
	return &Error{Kind: KindRateLimit, Msg: msg, Err: err}
}

// Partial returns a KindPartial error.
func Partial(format string, args ...any) error {
	return &Error{Kind: KindPartial, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	case KindPartial:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing text for err: the outermost *Error message
// when present, otherwise err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
