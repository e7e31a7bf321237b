// Package apperr defines the coded errors shared by the service layer and
// the HTTP boundary. Services fail with a code at the point of detection;
// the single translator in the HTTP layer maps codes to statuses.
package apperr

import "errors"

type Code string

const (
	CodeValidation     Code = "validation"
	CodeUnauthorized   Code = "unauthorized"
	CodeForbidden      Code = "forbidden"
	CodeConflict       Code = "conflict"
	CodeNotFound       Code = "not_found"
	CodeIntegrityBlock Code = "integrity_block"
	CodeInternal       Code = "internal"
)

type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from an error chain. Errors that never went
// through this package are treated as internal faults.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}
