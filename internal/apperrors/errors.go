// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrUnavailable         = errors.New("unavailable")
	ErrEngineCommunication = errors.New("engine communication error")
	ErrPersistence         = errors.New("persistence error")
	ErrEnrichment          = errors.New("enrichment error")
	ErrInternal            = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "backtest_id", "threshold")
	Resource string // For not found/conflict (e.g., "backtest")
	Op       string // Operation that failed (e.g., "persistence.phase2")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource string, id any) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %v not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource string, id any, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  fmt.Sprintf("%s %v: %s", resource, id, reason),
		Resource: resource,
	}
}

// Unavailable reports that a dependency or local capacity is exhausted.
func Unavailable(op string, cause error) error {
	return wrap(ErrUnavailable, op, cause)
}

// EngineCommunication wraps a failure talking to the backtest engine.
func EngineCommunication(op string, cause error) error {
	return wrap(ErrEngineCommunication, op, cause)
}

// Persistence wraps a failed write of a result phase.
func Persistence(op string, cause error) error {
	return wrap(ErrPersistence, op, cause)
}

// Enrichment wraps a failed report generation or attachment.
func Enrichment(op string, cause error) error {
	return wrap(ErrEnrichment, op, cause)
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return wrap(ErrInternal, op, cause)
}

func wrap(sentinel error, op string, cause error) error {
	return &Error{
		Sentinel: sentinel,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
