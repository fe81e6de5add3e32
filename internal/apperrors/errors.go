// Package apperrors contains the error taxonomy shared by services and handlers
package apperrors

import (
	"errors"
	"net/http"
)

// Sentinel kinds. Every *Error wraps exactly one of these so callers can
// branch with errors.Is.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrStorage             = errors.New("storage error")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrRateLimited         = errors.New("rate limited")
)

// Error is a categorized error. Message is safe to return to the client,
// Err is the cause and only ever reaches the logs.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// Error method to comply with error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Kind.Error() + ": " + e.Message
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, err error, message string) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Unauthenticated returns an error with kind ErrUnauthenticated
func Unauthenticated(message string) error {
	return newError(ErrUnauthenticated, nil, message)
}

// NotFound returns an error with kind ErrNotFound
func NotFound(message string) error {
	return newError(ErrNotFound, nil, message)
}

// InvalidArgument returns an error with kind ErrInvalidArgument
func InvalidArgument(message string) error {
	return newError(ErrInvalidArgument, nil, message)
}

// DuplicateKey returns an error with kind ErrDuplicateKey
func DuplicateKey(err error, message string) error {
	return newError(ErrDuplicateKey, err, message)
}

// Storage wraps a store failure. The message sent to the client is generic.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return newError(ErrStorage, err, "")
}

// ProviderUnavailable wraps a market data provider failure
func ProviderUnavailable(err error) error {
	return newError(ErrProviderUnavailable, err, "")
}

// RateLimited returns an error with kind ErrRateLimited
func RateLimited(message string) error {
	return newError(ErrRateLimited, nil, message)
}

// Status describes how an error is rendered on the wire
type Status struct {
	HTTPCode int
	Code     string
	Message  string
	Internal bool
}

// StatusOf classifies err. Unknown errors are internal.
func StatusOf(err error) Status {
	var appErr *Error
	msg := ""
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	withDefault := func(def string) string {
		if msg == "" {
			return def
		}
		return msg
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return Status{HTTPCode: http.StatusUnauthorized, Code: "UNAUTHENTICATED", Message: withDefault("Unauthorized")}
	case errors.Is(err, ErrNotFound):
		return Status{HTTPCode: http.StatusNotFound, Code: "NOT_FOUND", Message: withDefault("Not found")}
	case errors.Is(err, ErrInvalidArgument):
		return Status{HTTPCode: http.StatusBadRequest, Code: "INVALID_ARGUMENT", Message: withDefault("Bad request")}
	case errors.Is(err, ErrDuplicateKey):
		return Status{HTTPCode: http.StatusConflict, Code: "CONFLICT", Message: withDefault("Already exists")}
	case errors.Is(err, ErrRateLimited):
		return Status{HTTPCode: http.StatusTooManyRequests, Code: "RATE_LIMITED", Message: withDefault("Too many requests")}
	case errors.Is(err, ErrProviderUnavailable):
		return Status{HTTPCode: http.StatusBadGateway, Code: "PROVIDER_UNAVAILABLE", Message: "Market data provider unavailable", Internal: true}
	default:
		return Status{HTTPCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "Internal Server Error", Internal: true}
	}
}
