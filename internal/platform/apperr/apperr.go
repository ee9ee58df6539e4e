// Package apperr defines the error taxonomy shared by the domain services and
// its mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies a failure independently of the transport.
type Kind int

const (
	// KindNone is the Kind of a nil error.
	KindNone Kind = iota
	KindInternal
	KindValidation
	KindConflict
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error carries a stable Kind and a human-readable detail. Err, when set, is
// the underlying cause and is reachable through errors.Unwrap.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind so callers can write
// errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Detail == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind-only sentinels for errors.Is comparisons.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrInternal   = &Error{Kind: KindInternal}
)

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Detail: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) error {
	return &Error{Kind: KindForbidden, Detail: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

// Internal wraps a storage or invariant failure that is not the caller's fault.
func Internal(err error, detail string) error {
	return &Error{Kind: KindInternal, Detail: detail, Err: err}
}

// KindOf reports the Kind of err. Errors outside the taxonomy are Internal;
// a nil error is KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps a Kind onto an HTTP status code.
func Status(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into an echo error response. Internal details are
// not leaked to the client.
func HTTPError(err error) *echo.HTTPError {
	kind := KindOf(err)
	if kind == KindInternal || kind == KindNone {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	var e *Error
	errors.As(err, &e)
	return echo.NewHTTPError(Status(kind), map[string]string{
		"kind":   kind.String(),
		"detail": e.Detail,
	})
}
