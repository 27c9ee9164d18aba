package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for NormGraph errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
	CONFIG_NOT_FOUND         ErrorCode = "CONFIG_NOT_FOUND"
)

// Catalog database error codes
const (
	DB_OPEN_FAILED      ErrorCode = "DB_OPEN_FAILED"
	DB_MIGRATION_FAILED ErrorCode = "DB_MIGRATION_FAILED"
	DB_QUERY_FAILED     ErrorCode = "DB_QUERY_FAILED"
	SOURCE_NOT_FOUND    ErrorCode = "SOURCE_NOT_FOUND"
)

// Document ingestion error codes
const (
	DOC_LOAD_FAILED       ErrorCode = "DOC_LOAD_FAILED"
	DOC_UNSUPPORTED       ErrorCode = "DOC_UNSUPPORTED"
	DOC_CLASSIFY_FAILED   ErrorCode = "DOC_CLASSIFY_FAILED"
	INGEST_FAILED         ErrorCode = "INGEST_FAILED"
	INGEST_DUPLICATE      ErrorCode = "INGEST_DUPLICATE"
	EXTRACTION_FAILED     ErrorCode = "EXTRACTION_FAILED"
	CHUNK_PROCESS_FAILED  ErrorCode = "CHUNK_PROCESS_FAILED"
	EMBEDDING_FAILED      ErrorCode = "EMBEDDING_FAILED"
	EMBEDDING_DIM_INVALID ErrorCode = "EMBEDDING_DIM_INVALID"
)

// Graph store error codes
const (
	GRAPH_CONNECTION_FAILED ErrorCode = "GRAPH_CONNECTION_FAILED"
	GRAPH_QUERY_FAILED      ErrorCode = "GRAPH_QUERY_FAILED"
	GRAPH_NODE_NOT_FOUND    ErrorCode = "GRAPH_NODE_NOT_FOUND"
)

// Vector store error codes
const (
	VECTOR_STORE_FAILED  ErrorCode = "VECTOR_STORE_FAILED"
	VECTOR_SEARCH_FAILED ErrorCode = "VECTOR_SEARCH_FAILED"
)

// LLM provider error codes
const (
	LLM_AUTH_FAILED       ErrorCode = "LLM_AUTH_FAILED"
	LLM_RATE_LIMITED      ErrorCode = "LLM_RATE_LIMITED"
	LLM_CONTEXT_EXCEEDED  ErrorCode = "LLM_CONTEXT_EXCEEDED"
	LLM_UNAVAILABLE       ErrorCode = "LLM_UNAVAILABLE"
	LLM_RESPONSE_INVALID  ErrorCode = "LLM_RESPONSE_INVALID"
	LLM_PROVIDER_UNKNOWN  ErrorCode = "LLM_PROVIDER_UNKNOWN"
	LLM_REQUEST_INVALID   ErrorCode = "LLM_REQUEST_INVALID"
	LLM_STREAMING_FAILED  ErrorCode = "LLM_STREAMING_FAILED"
	LLM_COMPLETION_FAILED ErrorCode = "LLM_COMPLETION_FAILED"
)

// Query pipeline error codes
const (
	QUERY_INVALID     ErrorCode = "QUERY_INVALID"
	RETRIEVAL_FAILED  ErrorCode = "RETRIEVAL_FAILED"
	SYNTHESIS_FAILED  ErrorCode = "SYNTHESIS_FAILED"
	INTENT_UNRESOLVED ErrorCode = "INTENT_UNRESOLVED"
)

// Auth error codes
const (
	AUTH_TOKEN_INVALID ErrorCode = "AUTH_TOKEN_INVALID"
	AUTH_TOKEN_EXPIRED ErrorCode = "AUTH_TOKEN_EXPIRED"
	AUTH_FORBIDDEN     ErrorCode = "AUTH_FORBIDDEN"
	AUTH_KEY_INVALID   ErrorCode = "AUTH_KEY_INVALID"
)

// Error represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for error handling logic.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
func (e *Error) Is(target error) bool {
	var ne *Error
	if errors.As(target, &ne) {
		return e.Code == ne.Code
	}
	return false
}

// NewError creates a new non-retryable Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable Error with the given code and message.
// Use this for transient errors that may succeed on retry (e.g., rate limits).
func NewRetryableError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a new non-retryable Error that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// WrapRetryableError creates a retryable Error wrapping an existing error.
func WrapRetryableError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// IsRetryable reports whether err (or any error in its chain) is a
// retryable Error.
func IsRetryable(err error) bool {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return false
}

// CodeOf returns the ErrorCode of err if it is an Error, or an empty code.
func CodeOf(err error) ErrorCode {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Code
	}
	return ""
}
