// Package shared contains the error taxonomy used across the domain,
// application and infrastructure layers. This package has zero external
// dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors: detected locally, the request is never sent.
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// Connectivity errors: transport failure, non-success status or an
	// undecodable response from the remote service.
	ErrConnectivity       = errors.New("connectivity error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrInvalidFormat      = errors.New("invalid format")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "student", "notas", "roster"
	Op      string // Operation that failed, e.g., "AddGrade"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Student domain errors
var (
	ErrStudentNotFound     = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrEmptyStudentID      = NewDomainError("student", "Validate", ErrInvalidID, "student ID cannot be empty")
	ErrEmptyStudentName    = NewDomainError("student", "Validate", ErrEmptyValue, "student name cannot be empty")
	ErrEmptySubjectName    = NewDomainError("student", "Validate", ErrEmptyValue, "subject name cannot be empty")
	ErrGradeOutOfRange     = NewDomainError("student", "Validate", ErrValueOutOfRange, "grade must be a number between 0 and 10")
	ErrNegativeGradeIndex  = NewDomainError("student", "Validate", ErrValueOutOfRange, "grade index cannot be negative")
	ErrReportNotFound      = NewDomainError("report", "Find", ErrNotFound, "no roster report published yet")
	ErrReportRowNotFound   = NewDomainError("report", "FindRow", ErrNotFound, "student not present in the latest report")
	ErrNotasAPIUnavailable = NewDomainError("notas", "Request", ErrServiceUnavailable, "student service is unavailable")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConnectivity checks if the error comes from talking to the remote service.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectivity) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
