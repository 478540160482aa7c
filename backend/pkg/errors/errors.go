package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents bad client input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents a missing node or row
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConflict represents a uniqueness or state conflict
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeUnauthorized represents missing or bad credentials
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	// ErrorTypeForbidden represents an authenticated caller lacking rights
	ErrorTypeForbidden ErrorType = "forbidden"
	// ErrorTypeRateLimited represents an exceeded quota
	ErrorTypeRateLimited ErrorType = "rate_limited"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeStore represents relational store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeCache represents Redis errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeMatrix represents Matrix homeserver errors
	ErrorTypeMatrix ErrorType = "matrix"
	// ErrorTypeStorage represents object storage errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeAgent represents agent/LLM-related errors
	ErrorTypeAgent ErrorType = "agent"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Client-facing errors

// Validation is returned when input fails a business rule
func Validation(format string, args ...interface{}) *BaseError {
	return NewBaseError(ErrorTypeValidation, fmt.Sprintf(format, args...), nil)
}

// Conflict is returned when an operation collides with existing state
func Conflict(format string, args ...interface{}) *BaseError {
	return NewBaseError(ErrorTypeConflict, fmt.Sprintf(format, args...), nil)
}

// Forbidden is returned when the caller may not perform the operation
func Forbidden(format string, args ...interface{}) *BaseError {
	return NewBaseError(ErrorTypeForbidden, fmt.Sprintf(format, args...), nil)
}

// Unauthorized is returned for bad or missing credentials
func Unauthorized(message string) *BaseError {
	return NewBaseError(ErrorTypeUnauthorized, message, nil)
}

// ErrRateLimited is returned when a caller exceeds a quota
type ErrRateLimited struct {
	*BaseError
	RetryAfter time.Duration
}

func NewRateLimited(what string, retryAfter time.Duration) *ErrRateLimited {
	return &ErrRateLimited{
		BaseError:  NewBaseError(ErrorTypeRateLimited, fmt.Sprintf("too many %s requests, retry later", what), nil),
		RetryAfter: retryAfter,
	}
}

// ErrNotFound is returned when a node or row cannot be found
type ErrNotFound struct {
	*BaseError
	Kind string
	ID   string
}

func NewNotFound(kind, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", kind, id), nil),
		Kind:      kind,
		ID:        id,
	}
}

// Backend errors

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Operation string
}

func NewGraphQueryFailed(operation string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("graph operation failed: %s", operation), err),
		Operation: operation,
	}
}

// ErrGraphConnectionFailed is returned when Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// NewStoreFailed wraps a relational store failure
func NewStoreFailed(operation string, err error) *BaseError {
	return NewBaseError(ErrorTypeStore, fmt.Sprintf("store operation failed: %s", operation), err)
}

// NewCacheFailed wraps a Redis failure
func NewCacheFailed(operation string, err error) *BaseError {
	return NewBaseError(ErrorTypeCache, fmt.Sprintf("cache operation failed: %s", operation), err)
}

// NewStorageFailed wraps an object storage failure
func NewStorageFailed(operation string, err error) *BaseError {
	return NewBaseError(ErrorTypeStorage, fmt.Sprintf("storage operation failed: %s", operation), err)
}

// ErrMatrixRequestFailed is returned when a homeserver call fails
type ErrMatrixRequestFailed struct {
	*BaseError
	Operation string
}

func NewMatrixRequestFailed(operation string, err error) *ErrMatrixRequestFailed {
	return &ErrMatrixRequestFailed{
		BaseError: NewBaseError(ErrorTypeMatrix, fmt.Sprintf("matrix request failed: %s", operation), err),
		Operation: operation,
	}
}

// ErrAgentLLMFailed is returned when LLM request fails
type ErrAgentLLMFailed struct {
	*BaseError
	Model     string
	Attempts  int
	Retryable bool
}

func NewAgentLLMFailed(model string, attempts int, retryable bool, err error) *ErrAgentLLMFailed {
	return &ErrAgentLLMFailed{
		BaseError: NewBaseError(ErrorTypeAgent, fmt.Sprintf("LLM request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// categorized is satisfied by BaseError and every struct embedding it
type categorized interface {
	base() *BaseError
}

func (e *BaseError) base() *BaseError { return e }

func baseOf(err error) *BaseError {
	var c categorized
	if stderrors.As(err, &c) {
		return c.base()
	}
	return nil
}

// TypeOf returns the category of the first BaseError in the chain, or "" when
// the chain holds none.
func TypeOf(err error) ErrorType {
	if b := baseOf(err); b != nil {
		return b.Type
	}
	return ""
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// MessageOf returns the client-safe message for err. Backend categories
// collapse to a generic message so driver details never reach callers.
func MessageOf(err error) string {
	base := baseOf(err)
	if base == nil {
		return "internal server error"
	}
	switch base.Type {
	case ErrorTypeGraph, ErrorTypeStore, ErrorTypeCache, ErrorTypeConfig:
		return "internal server error"
	case ErrorTypeMatrix:
		return "chat server request failed"
	case ErrorTypeStorage:
		return "file storage request failed"
	}
	return base.Message
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var llmErr *ErrAgentLLMFailed
	if stderrors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	switch TypeOf(err) {
	case ErrorTypeGraph, ErrorTypeCache, ErrorTypeMatrix, ErrorTypeStorage:
		return true
	}
	return false
}
