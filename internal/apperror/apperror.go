// Package apperror defines the domain error taxonomy shared by every
// component: validation failures, auth failures, permission denials,
// missing entities, conflicts, and unexpected internal failures. HTTP
// handlers map a Kind to a status code; WebSocket handlers log and
// drop instead of surfacing most of these to the client.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	BadRequest
	Authentication
	Forbidden
	NotFound
	Conflict
)

// Error is the domain error type threaded through every layer.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code for the error's Kind.
func (e *Error) Status() int {
	switch e.Kind {
	case BadRequest:
		return http.StatusBadRequest
	case Authentication:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func BadRequestf(format string, args ...any) *Error      { return newf(BadRequest, format, args...) }
func Authenticationf(format string, args ...any) *Error  { return newf(Authentication, format, args...) }
func Forbiddenf(format string, args ...any) *Error        { return newf(Forbidden, format, args...) }
func NotFoundf(format string, args ...any) *Error          { return newf(NotFound, format, args...) }
func Conflictf(format string, args ...any) *Error          { return newf(Conflict, format, args...) }

// Internalf wraps an underlying cause as a 500. The cause is logged by
// callers but never leaked verbatim in the HTTP response body.
func Internalf(cause error, format string, args ...any) *Error {
	e := newf(Internal, format, args...)
	e.cause = cause
	return e
}

// As extracts an *Error from err, or reports ok=false if err is not
// (or does not wrap) one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Is is a convenience for checking an error's Kind.
func Is(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}
