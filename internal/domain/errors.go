package domain

import "fmt"

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
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
	ErrCodeEmbeddingProvider = "EMBEDDING_PROVIDER_ERROR"
	ErrCodeRetrieval         = "RETRIEVAL_ERROR"
	ErrCodeSummarization     = "SUMMARIZATION_ERROR"
	ErrCodeGeneration        = "GENERATION_ERROR"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// RetrievalError marks a failed lookup against one of the two context
// sources. Source tells the orchestrator which retriever degraded.
type RetrievalError struct {
	Source PassageOrigin
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("[%s] %s retrieval failed: %v", ErrCodeRetrieval, e.Source, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// NewRetrievalError wraps err as a retrieval failure for the given source.
func NewRetrievalError(source PassageOrigin, err error) *RetrievalError {
	return &RetrievalError{Source: source, Err: err}
}

// Validation errors
var (
	ErrEmptyQuery        = NewDomainError(ErrCodeValidation, "query text cannot be empty")
	ErrInvalidDimensions = NewDomainError(ErrCodeValidation, "embedding has unexpected dimensions")
)

// Provider errors
var (
	ErrEmbeddingProvider = NewDomainError(ErrCodeEmbeddingProvider, "embedding provider call failed")
	ErrSummarization     = NewDomainError(ErrCodeSummarization, "context summarization failed")
	ErrGeneration        = NewDomainError(ErrCodeGeneration, "answer generation failed")
)

// Configuration errors
var (
	ErrMissingOpenAIKey = NewDomainError(ErrCodeConfiguration, "OpenAI API key is not configured")
	ErrMissingDatabase  = NewDomainError(ErrCodeConfiguration, "database URL is not configured")
	ErrMissingGraphURI  = NewDomainError(ErrCodeConfiguration, "graph store URI is not configured")
)
