// Package apierr defines the error kinds the HTTP layer knows how to render:
// validation failures, missing resources and illegal state changes. Anything
// else reaching the error handler is treated as an infrastructure failure.
package apierr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an Error.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
)

// Error is an API-facing error with a client-safe message.
type Error struct {
	Kind     Kind
	Message  string
	Required []string
}

func (e *Error) Error() string { return e.Message }

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a validation error. required lists the fields a caller
// must supply, when the failure is about missing input.
func Validation(msg string, required ...string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Required: required}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsKind(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}

func IsNotFound(err error) bool   { return IsKind(err, KindNotFound) }
func IsValidation(err error) bool { return IsKind(err, KindValidation) }
func IsConflict(err error) bool   { return IsKind(err, KindConflict) }

// FromBind converts a request binding failure into a validation error. An
// oversized body keeps its 413 so the client is told to send less rather
// than to fix its input.
func FromBind(err error, msg string, required ...string) error {
	for e := err; e != nil; {
		var he *echo.HTTPError
		if !errors.As(e, &he) {
			break
		}
		if he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		e = he.Internal
	}
	return Validation(msg, required...)
}
