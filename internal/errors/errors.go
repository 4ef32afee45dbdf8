package errors

import (
	"errors"
	"fmt"
)

// AlloyError is the structured error type for Alloy.
// It provides context for error handling, logging, and user presentation.
type AlloyError struct {
	// Code is the unique error code (e.g., "ERR_301_BACKEND_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Backend, Validation, Internal).
	Category Category

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AlloyError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AlloyError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with AlloyError.
func (e *AlloyError) Is(target error) bool {
	if t, ok := target.(*AlloyError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AlloyError) WithDetail(key, value string) *AlloyError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AlloyError) WithSuggestion(suggestion string) *AlloyError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AlloyError with the given code and message.
// Category and retryable flag are derived from the code.
func New(code string, message string, cause error) *AlloyError {
	return &AlloyError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AlloyError from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *AlloyError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AlloyError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AlloyError {
	return New(ErrCodeInvalidInput, message, cause)
}

// BackendError creates a backend-call error. Backend errors are retryable.
func BackendError(message string, cause error) *AlloyError {
	return New(ErrCodeBackendUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AlloyError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ae *AlloyError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// CodeOf returns the error code of an AlloyError in the chain,
// or empty string if none is found.
func CodeOf(err error) string {
	var ae *AlloyError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
