package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures so the HTTP layer can pick a status code.
type Kind string

const (
	KindInvalidArgument     Kind = "invalid_argument"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUnconfigured        Kind = "unconfigured"
	KindUnexpected          Kind = "unexpected"
)

// Error is the error type returned by the application services.
// Status is only meaningful for upstream failures, where it carries the
// collaborator's HTTP status (0 when none was received).
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func Invalid(msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}

func Upstream(status int, msg string, err error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Status: status, Message: msg, Err: err}
}

func Unconfigured(msg string) *Error {
	return &Error{Kind: KindUnconfigured, Message: msg}
}

// KindOf returns the kind of err, or KindUnexpected for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnexpected
}
