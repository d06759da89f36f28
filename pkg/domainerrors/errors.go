// Package domainerrors defines a small set of error codes shared across
// service boundaries, so HTTP and WebSocket handlers can translate a
// failure into the right status code or wire message without type-switching
// on concrete error values.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport-layer translation.
type Code string

const (
	CodeInternal      Code = "internal_error"
	CodeBadRequest    Code = "bad_request"
	CodeUnauthorized  Code = "unauthorized"
	CodeNotFound      Code = "not_found"
	CodeUnavailable   Code = "unavailable"
	CodeInvalidInput  Code = "invalid_input"
	CodeConflict      Code = "conflict"
)

// Error is a coded error carrying a caller-facing description.
type Error struct {
	Code        Code
	Description string
	cause       error
}

func New(code Code, description string) *Error {
	return &Error{Code: code, Description: description}
}

func Wrap(code Code, description string, cause error) *Error {
	return &Error{Code: code, Description: description, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HasCode reports whether err is (or wraps) a *Error with the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// ToHTTPStatus maps a Code to its conventional HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput:
		return 400
	case CodeUnauthorized:
		return 401
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	case CodeUnavailable:
		return 503
	default:
		return 500
	}
}
