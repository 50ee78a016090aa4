// Package domainerrors provides coded errors for validation and domain
// failures. Transport layers translate codes into HTTP statuses; services
// create them where input is well-formed Go but bad domain data.
package domainerrors

import "fmt"

// Code identifies a class of domain error.
type Code string

const (
	CodeInvalidInput     Code = "invalid_input"
	CodeMalformedPayload Code = "malformed_payload"
	CodeUnauthorized     Code = "unauthorized"
	CodeNotFound         Code = "not_found"
	CodeConflict         Code = "conflict"
	CodeUnavailable      Code = "unavailable"
	CodeInternal         Code = "internal_error"
)

// Error carries a machine-readable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from an error, defaulting to CodeInternal for
// anything that is not a domain error.
func CodeOf(err error) Code {
	if de, ok := err.(*Error); ok {
		return de.Code
	}
	return CodeInternal
}
