// Package errors provides structured error handling for patchpilot operations.
// It defines error codes, error types, and utilities for creating and
// classifying errors raised by the enrichment pipeline and its transport shell.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"

	// Pipeline errors.
	CodeParse           ErrorCode = "PARSE"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// Store errors.
	CodeStoreConflict    ErrorCode = "STORE_CONFLICT"
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// External service errors. These are always absorbed inside the
	// pipeline (fail-open) and only surface in logs and metrics.
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
)

// ParseError indicates the raw scan report could not be parsed. It is a
// terminal failure for the pipeline invocation: no report is produced.
type ParseError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", CodeParse, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", CodeParse, e.Message)
}

// Unwrap returns the underlying parse diagnostic.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError wraps a parser diagnostic as a ParseError.
func NewParseError(message string, cause error) *ParseError {
	return &ParseError{Message: message, Cause: cause}
}

// NotFoundError indicates a report identifier that is unknown to the store.
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("[%s] %s not found (id: %s)", CodeNotFound, e.Resource, e.ID)
	}
	return fmt.Sprintf("[%s] %s not found", CodeNotFound, e.Resource)
}

// NewNotFoundError creates a not-found error for a resource and identifier.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// InvalidArgumentError indicates a structurally valid request with an
// out-of-range or otherwise unusable argument.
type InvalidArgumentError struct {
	Argument string
	Message  string
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("[%s] %s (argument: %s)", CodeInvalidArgument, e.Message, e.Argument)
}

// NewInvalidArgumentError creates an invalid-argument error.
func NewInvalidArgumentError(argument, message string) *InvalidArgumentError {
	return &InvalidArgumentError{Argument: argument, Message: message}
}

// StoreError represents report-store failures.
type StoreError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// WrapStoreError wraps an existing error as a store error.
func WrapStoreError(code ErrorCode, message, operation string, err error) *StoreError {
	return &StoreError{
		Code:      code,
		Message:   message,
		Operation: operation,
		Cause:     err,
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    CodeConfiguration,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// Utility functions for common error operations

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalidArgument reports whether err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var ia *InvalidArgumentError
	return errors.As(err, &ia)
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	var (
		pe *ParseError
		nf *NotFoundError
		ia *InvalidArgumentError
		se *StoreError
		ce *ConfigError
	)
	switch {
	case errors.As(err, &pe):
		return CodeParse
	case errors.As(err, &nf):
		return CodeNotFound
	case errors.As(err, &ia):
		return CodeInvalidArgument
	case errors.As(err, &se):
		return se.Code
	case errors.As(err, &ce):
		return ce.Code
	}
	return CodeUnknown
}

// IsRetryable determines if an error indicates a retryable condition.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeServiceUnavailable, CodeRateLimited, CodeStoreUnavailable:
		return true
	default:
		return false
	}
}
