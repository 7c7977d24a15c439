package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Pipeline error codes. Chunking, embedding and store failures are fatal
// for the item being processed; summarization failures only skip the
// client summary for that cycle; configuration failures abort the run.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeChunkingFailed      = "CHUNKING_FAILED"
	ErrCodeEmbeddingFailed     = "EMBEDDING_FAILED"
	ErrCodeStoreWriteFailed    = "STORE_WRITE_FAILED"
	ErrCodeSummarizationFailed = "SUMMARIZATION_FAILED"
	ErrCodeConfiguration       = "CONFIGURATION_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidItemState     = NewDomainError(ErrCodeValidation, "invalid item state")
	ErrEmptyEmbeddingInput  = NewDomainError(ErrCodeValidation, "text cannot be empty")
)

// Not found errors
var (
	ErrItemNotFound    = NewDomainError(ErrCodeNotFound, "knowledge item not found")
	ErrSummaryNotFound = NewDomainError(ErrCodeNotFound, "client summary not found")
)

// Configuration errors
var (
	ErrMissingAPIKey     = NewDomainError(ErrCodeConfiguration, "embedding API key not configured")
	ErrDimensionMismatch = NewDomainError(ErrCodeConfiguration, "embedding dimension does not match configured model")
)

// Summarization errors
var (
	ErrEmptySummaryCorpus = NewDomainError(ErrCodeSummarizationFailed, "client has no chunks to summarize")
)

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}
