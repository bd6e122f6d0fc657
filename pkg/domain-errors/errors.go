// Package domainerrors carries typed error codes from services to transports.
//
// Services return *Error values (optionally wrapping a cause); transports map the
// Code to a status and render Message to callers. Stores should not construct these
// directly; they return pkg/platform/sentinel errors that services translate.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain failure. The string value is the wire code.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeIntegrity          Code = "integrity_error"
	CodeUncalibrated       Code = "uncalibrated_field"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error with a code, a caller-safe message and an optional field.
type Error struct {
	Code    Code
	Message string
	// Field names the offending input field or comparable attribute, when known.
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// NewField creates a domain error attributed to a single field.
func NewField(code Code, field, msg string) error {
	return &Error{Code: code, Field: field, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost *Error in the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any domain error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool { return HasCode(err, code) }

// FieldOf returns the first field attribution found in the chain.
func FieldOf(err error) string {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return ""
		}
		if de.Field != "" {
			return de.Field
		}
		err = de.Err
	}
	return ""
}
