package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatGuardrail  ErrorCategory = "guardrail"  // Trust-boundary contract violation
	ErrCatRegistry   ErrorCategory = "registry"   // Agent wiring problem
	ErrCatAgent      ErrorCategory = "agent"      // Agent execution failure
	ErrCatExtraction ErrorCategory = "extraction" // Response could not be parsed
	ErrCatExecution  ErrorCategory = "execution"  // Runtime failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatRateLimit  ErrorCategory = "rate_limit" // API rate limited
	ErrCatAuth       ErrorCategory = "auth"       // Authentication failure
	ErrCatNetwork    ErrorCategory = "network"    // Network connectivity
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrGuardrail creates a guardrail error. Guardrail errors are always fatal
// to the current request and never retried.
func ErrGuardrail(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatGuardrail,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrAgentNotRegistered creates a registry error for an unknown agent name.
func ErrAgentNotRegistered(name string) *DomainError {
	return &DomainError{
		Category:  ErrCatRegistry,
		Code:      CodeAgentNotRegistered,
		Message:   fmt.Sprintf("agent %s not registered", name),
		Retryable: false,
		Details:   map[string]interface{}{"agent": name},
	}
}

// ErrAgent creates an agent execution error. The message names the agent,
// the cause carries the root failure.
func ErrAgent(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatAgent,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrExtraction creates an extraction error.
func ErrExtraction(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExtraction,
		Code:      CodeExtractionFailed,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrAuth creates an authentication error.
func ErrAuth(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatAuth,
		Code:      "AUTH_FAILED",
		Message:   message,
		Retryable: false,
	}
}

// ErrNetwork creates a network error.
func ErrNetwork(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// IsGuardrail reports whether err was raised by a guardrail check.
func IsGuardrail(err error) bool {
	return IsCategory(err, ErrCatGuardrail)
}

// GetCode extracts the error code of the outermost domain error.
func GetCode(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return ""
}

// Predefined error codes
const (
	// Guardrail error codes
	CodeEmptyQuery            = "EMPTY_QUERY"
	CodeQueryTooLong          = "QUERY_TOO_LONG"
	CodeUnsupportedType       = "UNSUPPORTED_TYPE"
	CodeFileTooLarge          = "FILE_TOO_LARGE"
	CodeEmptyOutput           = "EMPTY_OUTPUT"
	CodeMalformedJSON         = "MALFORMED_JSON"
	CodeMissingFields         = "MISSING_FIELDS"
	CodeInvalidRecommendation = "INVALID_RECOMMENDATION"

	// Registry error codes
	CodeAgentNotRegistered = "AGENT_NOT_REGISTERED"

	// Agent error codes
	CodeAgentFailed     = "AGENT_FAILED"
	CodeSynthesisFailed = "SYNTHESIS_FAILED"

	// Extraction error codes
	CodeExtractionFailed = "EXTRACTION_FAILED"

	// Adapter error codes
	CodeRetrievalFailed  = "RETRIEVAL_FAILED"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeIndexFailed      = "INDEX_FAILED"
	CodeInvalidConfig    = "INVALID_CONFIG"

	// Pipeline error codes
	CodeNoDocuments = "NO_DOCUMENTS"
)
