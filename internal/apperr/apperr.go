package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindInactiveUser
	KindNotFound
)

// Error carries a server-side diagnostic and a separate safe client
// message. The two are never swapped: ServerDetail may contain raw
// identifiers or wrapped driver errors, ClientDetail may not.
type Error struct {
	Kind         Kind
	ServerDetail string
	ClientDetail string
	Cause        error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.ServerDetail, e.Cause)
	}
	return e.ServerDetail
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match two app errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Status maps the kind onto an HTTP status code. InactiveUser is a
// Forbidden subtype with its own client message.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden, KindInactiveUser:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, serverDetail, clientDetail string, cause ...error) *Error {
	e := &Error{Kind: kind, ServerDetail: serverDetail, ClientDetail: clientDetail}
	if len(cause) > 0 {
		e.Cause = cause[0]
	}
	return e
}

func BadRequest(serverDetail, clientDetail string, cause ...error) *Error {
	return newError(KindBadRequest, serverDetail, clientDetail, cause...)
}

func Unauthorized(serverDetail, clientDetail string, cause ...error) *Error {
	return newError(KindUnauthorized, serverDetail, clientDetail, cause...)
}

func Forbidden(serverDetail, clientDetail string, cause ...error) *Error {
	return newError(KindForbidden, serverDetail, clientDetail, cause...)
}

// InactiveUser marks a request from an account that exists but has not
// been activated yet, so callers can special-case the client message.
func InactiveUser(mail string) *Error {
	return newError(KindInactiveUser,
		fmt.Sprintf("inactive user tried to access backend: %s", mail),
		"inactive user")
}

func NotFound(serverDetail, clientDetail string, cause ...error) *Error {
	return newError(KindNotFound, serverDetail, clientDetail, cause...)
}

func Internal(serverDetail string, cause ...error) *Error {
	return newError(KindInternal, serverDetail, "unexpected error, please retry later", cause...)
}

// From returns err as an *Error, wrapping unclassified errors as
// internal so the boundary always has a kind to dispatch on.
func From(err error) *Error {
	var app *Error
	if errors.As(err, &app) {
		return app
	}
	return Internal("caught unknown error", err)
}
