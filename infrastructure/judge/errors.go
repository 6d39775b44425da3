// Package judge provides the client for the external LLM judging service.
// It abstracts provider-specific APIs (OpenAI, Anthropic) behind a unified
// client and layers cross-cutting concerns (retries with exponential
// backoff, request timeouts, rate limiting, metrics, tracing) as composable
// middleware. Failures are classified as retryable or fatal so callers can
// distinguish transient trouble from configuration errors that retrying
// cannot fix.
package judge

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by the judge client and providers.
var (
	// ErrEmptyAPIKey indicates that an API key was required but not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates that the provider returned an empty response body.
	ErrEmptyResponse = errors.New("empty response from judge")
	// ErrNoResponseChoice indicates that the provider's response contained no choices.
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType categorizes a provider failure for standardized handling,
// in particular for deciding retryability.
type ErrorType int

const (
	// ErrorTypeUnknown indicates an error of an undetermined category.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeAuthentication indicates an invalid or rejected API key.
	ErrorTypeAuthentication
	// ErrorTypeRateLimit indicates that a rate limit has been exceeded.
	ErrorTypeRateLimit
	// ErrorTypeBadRequest indicates a malformed request or invalid parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates a missing resource, e.g. an unknown model.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a problem on the provider's end.
	ErrorTypeServerError
	// ErrorTypeNetwork indicates a client-side network problem.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates that the request timed out.
	ErrorTypeTimeout
)

// ProviderError normalizes provider-specific failures into a common shape
// carrying the classified type, the HTTP status when applicable, and the
// original error for unwrapping.
type ProviderError struct {
	// Type classifies the error into a standard category.
	Type ErrorType
	// Provider names the judge provider that produced the error.
	Provider string
	// StatusCode holds the HTTP status from the provider, if applicable.
	StatusCode int
	// Message is the user-facing message from the provider.
	Message string
	// WrappedError holds the underlying error for chaining.
	WrappedError error
}

// Error satisfies the standard error interface.
func (e *ProviderError) Error() string {
	base := fmt.Sprintf("%s error", e.Provider)
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if ts := e.typeString(); ts != "" {
		base += fmt.Sprintf(" [%s]", ts)
	}
	if e.Message != "" {
		base += ": " + e.Message
	}
	if e.WrappedError != nil {
		base += fmt.Sprintf(": %v", e.WrappedError)
	}
	return base
}

// Unwrap returns the wrapped error for errors.Is / errors.As inspection.
func (e *ProviderError) Unwrap() error { return e.WrappedError }

// IsRetryable reports whether a request failing with this error should be
// reattempted. Rate limits, server errors, network trouble, and timeouts are
// transient; everything else is not.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

func (e *ProviderError) typeString() string {
	switch e.Type {
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return ""
	}
}

// NewProviderError builds a standardized ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// RetryExhaustedError reports that every permitted attempt at a judge call
// failed with a retryable error. It carries the attempt count and the last
// underlying error.
type RetryExhaustedError struct {
	// Attempts is the number of attempts made before giving up.
	Attempts int
	// Err is the error from the final attempt.
	Err error
}

// Error satisfies the standard error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("judge call failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the final attempt's error.
func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// IsRetryExhausted reports whether err is (or wraps) a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

// IsFatal reports whether err is a failure that retrying cannot fix:
// an authentication error, a malformed request, or a missing model.
// Fatal errors must abort the scoring stage rather than fail one batch.
func IsFatal(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Type {
	case ErrorTypeAuthentication, ErrorTypeBadRequest, ErrorTypeNotFound:
		return true
	default:
		return false
	}
}

// ErrorClassifier standardizes provider-specific errors into ProviderError
// instances based on HTTP status codes or context errors.
type ErrorClassifier struct {
	// Provider is the judge provider this classifier works for.
	Provider string
}

// ClassifyHTTPError maps an HTTP status code onto a ProviderError.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *ProviderError {
	var errType ErrorType
	switch {
	case statusCode == 401 || statusCode == 403:
		errType = ErrorTypeAuthentication
		message = fmt.Sprintf("%s authentication failed", ec.Provider)
	case statusCode == 429:
		errType = ErrorTypeRateLimit
		message = fmt.Sprintf("%s rate limit exceeded", ec.Provider)
	case statusCode == 400:
		errType = ErrorTypeBadRequest
	case statusCode == 404:
		errType = ErrorTypeNotFound
	case statusCode >= 500:
		errType = ErrorTypeServerError
	case statusCode >= 400:
		errType = ErrorTypeBadRequest
	default:
		errType = ErrorTypeUnknown
	}
	return NewProviderError(ec.Provider, errType, statusCode, message, err)
}

// ClassifyContextError maps context.DeadlineExceeded and context.Canceled
// onto the timeout and network categories.
func (ec *ErrorClassifier) ClassifyContextError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "request canceled", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "", err)
	}
}
