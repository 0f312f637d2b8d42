// Package errors defines the structured error types used across oracle.
// The taxonomy follows the three failure classes the execution layer
// distinguishes: validation (never retried), transport (retried only in the
// background poll loop), and response (backend-reported terminal failure,
// never retried automatically).
package errors

import (
	"fmt"
	"time"
)

// TransportReason is the closed taxonomy of transport-level failures.
type TransportReason string

const (
	// ReasonClientTimeout indicates the client gave up waiting, either on a
	// connection timeout or on the run's absolute deadline.
	ReasonClientTimeout TransportReason = "client-timeout"

	// ReasonConnectionLost indicates the connection dropped mid-flight
	// (reset, broken pipe, unexpected EOF).
	ReasonConnectionLost TransportReason = "connection-lost"

	// ReasonClientAbort indicates the caller cancelled the operation.
	ReasonClientAbort TransportReason = "client-abort"

	// ReasonUnknown is the default when no known pattern matches.
	ReasonUnknown TransportReason = "unknown"
)

// TransportError represents a network/connection-level failure, as opposed
// to the backend reporting a logical failure.
type TransportError struct {
	// Reason is the classified failure category.
	Reason TransportReason

	// Message is the human-readable error description.
	Message string

	// Cause is the underlying error the classifier saw.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("transport failure (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("transport failure (%s)", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether this failure class is worth retrying.
// Only timeouts and lost connections are; an abort reflects caller intent
// and an unknown error could be anything.
func (e *TransportError) Retryable() bool {
	return e.Reason == ReasonClientTimeout || e.Reason == ReasonConnectionLost
}

// ResponseError represents a backend that accepted the job but reported a
// terminal non-success status. It is never retried automatically.
type ResponseError struct {
	// Model is the model identifier the request targeted.
	Model string

	// Status is the backend's reported terminal status (e.g. "failed").
	Status string

	// Diagnostic is whatever explanation the backend attached.
	Diagnostic string
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("model %s returned status %q", e.Model, e.Status)
	if e.Diagnostic != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Diagnostic)
	}
	return msg
}

// BackendError represents an HTTP-level failure from a backend API,
// carrying the status code and any provider-supplied detail.
type BackendError struct {
	// Backend is the name of the backend (e.g. "openai").
	Backend string

	// StatusCode is the HTTP status code (if applicable).
	StatusCode int

	// Message is the human-readable error message.
	Message string

	// Suggestion provides actionable guidance for resolution.
	Suggestion string

	// RequestID correlates this error with backend logs.
	RequestID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend %s error", e.Backend)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Message)
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// ValidationError represents user input validation failures.
// Use this for invalid input, missing credentials, or constraint violations.
type ValidationError struct {
	// Field identifies which input failed validation.
	Field string

	// Message is the human-readable error description.
	Message string

	// Suggestion provides actionable guidance for fixing the error.
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "model", "session").
	Resource string

	// ID is the identifier that was not found.
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g. "models.gpt-5.2").
	Key string

	// Reason explains what's wrong with the configuration.
	Reason string

	// Cause is the underlying error (e.g. file read error, parse error).
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts at a coarser granularity than
// TransportError; it is used where the failing operation is local, not a
// backend call.
type TimeoutError struct {
	// Operation describes what timed out (e.g. "session store write").
	Operation string

	// Duration is how long the operation ran before timing out.
	Duration time.Duration

	// Cause is the underlying error (if any).
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}
