// Package apperr holds the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"net/http"
)

// Error kinds. Services wrap these; handlers map them to HTTP statuses.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict indicates a uniqueness or concurrency conflict.
	ErrConflict = errors.New("conflict")

	// ErrUpstream indicates a third-party collaborator failed.
	ErrUpstream = errors.New("upstream failure")

	// ErrForbidden indicates the caller may not act on the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrDomainState indicates the entity's state forbids the operation.
	ErrDomainState = errors.New("domain state violation")
)

// Error is a classified error carrying a client-safe message.
type Error struct {
	Kind    error
	Message string
	Code    int
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Is matches the kind and, when present, the wrapped cause.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New classifies msg under kind.
func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies cause under kind with a client-safe message.
func Wrap(kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// WithStatus overrides the HTTP status derived from the kind.
func (e *Error) WithStatus(code int) *Error {
	e.Code = code
	return e
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != 0 {
		return ae.Code
	}

	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrDomainState), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-safe message of err, or "" when err is unclassified.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return ""
}
