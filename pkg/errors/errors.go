// Package errors defines the typed application errors the service layer
// returns and the HTTP layer maps onto responses.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes an application error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNotFound          Kind = "not_found"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindConflict          Kind = "conflict"
	KindConfiguration     Kind = "configuration"
	KindInternal          Kind = "internal"
)

// AppError is a kind-tagged application error.
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given kind, code and message.
func New(kind Kind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

// Wrap creates an AppError wrapping an underlying cause.
func Wrap(kind Kind, code, message string, err error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Err: err}
}

// NewValidationError creates a validation error with the default code.
func NewValidationError(message string) *AppError {
	return New(KindValidation, "VALIDATION_ERROR", message)
}

// NewInsufficientFunds creates an insufficient funds error.
func NewInsufficientFunds(message string) *AppError {
	return New(KindInsufficientFunds, "INSUFFICIENT_FUNDS", message)
}

// NewNotFound creates a not found error for the named resource.
func NewNotFound(resource string) *AppError {
	return New(KindNotFound, "NOT_FOUND", resource+" not found")
}

// KindOf returns the kind of err if it is an AppError, KindInternal otherwise.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// CodeOf returns the error code if err is an AppError, empty otherwise.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
