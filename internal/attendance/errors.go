package attendance

import (
	"errors"
	"fmt"
)

// Error is the typed error returned across every rollcall boundary.
//
// Callers branch on Code:
//   - CodeValidation: malformed input, rejected before any state changes
//   - CodeNotFound: the scope or roster cannot be resolved
//   - CodeTransport: a network, channel, or storage failure; retryable
type Error struct {
	// Code identifies the error category.
	Code ErrorCode `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Field names the offending input for validation errors.
	Field string `json:"field,omitempty"`

	// Err is the underlying cause, if any. Not serialized.
	Err error `json:"-"`
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	CodeValidation ErrorCode = "VALIDATION"
	CodeNotFound   ErrorCode = "NOT_FOUND"
	CodeTransport  ErrorCode = "TRANSPORT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field=%s)", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Invalid creates a validation error for field.
func Invalid(field, format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...), Field: field}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Transport wraps err as a transport error.
func Transport(message string, err error) *Error {
	return &Error{Code: CodeTransport, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation returns true if err is a validation error.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsTransport returns true if err is a transport error.
func IsTransport(err error) bool {
	return CodeOf(err) == CodeTransport
}

// AsTransport returns err unchanged when it already carries a code and wraps
// it as a transport error otherwise.
func AsTransport(message string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return Transport(message, err)
}
