package rng

import (
	"errors"
	"fmt"
)

// Error codes reported to callers of the gateway.
const (
	CodeConfiguration  = "CONFIGURATION"
	CodeUnavailable    = "SOURCE_UNAVAILABLE"
	CodeExhausted      = "SOURCE_EXHAUSTED"
	CodeInvalidRequest = "INVALID_REQUEST"
)

// Error is the structured error type used across the entropy engine.
// Two Errors match under errors.Is when their codes match, so a wrapped
// per-source error still compares equal to its sentinel.
type Error struct {
	Code    string
	Message string
	Key     string // source key, empty when not source specific
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Key != "" {
		msg = fmt.Sprintf("%s (source: %s)", msg, e.Key)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrConfiguration = &Error{
		Code:    CodeConfiguration,
		Message: "no usable entropy sources configured",
	}

	ErrUnavailable = &Error{
		Code:    CodeUnavailable,
		Message: "entropy source unavailable",
	}

	ErrExhausted = &Error{
		Code:    CodeExhausted,
		Message: "entropy source exhausted",
	}

	ErrInvalidRequest = &Error{
		Code:    CodeInvalidRequest,
		Message: "invalid request",
	}
)

// sourceError binds a sentinel to a source key and an optional cause.
func sourceError(sentinel *Error, key string, cause error) *Error {
	return &Error{
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Key:     key,
		Cause:   cause,
	}
}

// Code extracts the error code from err, or "" when err carries none.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
