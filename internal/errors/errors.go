// Package errors provides structured error handling with HTTP status code
// mapping for the inbound operation surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeInvalidInput indicates a missing/empty/malformed argument (HTTP 400).
	TypeInvalidInput ErrorType = "invalid_input"
	// TypeSessionNotFound indicates an operation targeting an unknown session (HTTP 404).
	TypeSessionNotFound ErrorType = "session_not_found"
	// TypeInternal indicates a server-side error (HTTP 500).
	TypeInternal ErrorType = "internal"
	// TypeDependency indicates a collaborator failure (HTTP 502).
	TypeDependency ErrorType = "dependency"
)

// Error represents a structured error with type, message, and context.
// Permission denials are never represented as errors: they travel as
// entries in a subscription result's denied list.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeInvalidInput:
		return http.StatusBadRequest
	case TypeSessionNotFound:
		return http.StatusNotFound
	case TypeDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// InvalidInput creates a new invalid-input error (HTTP 400).
func InvalidInput(message string) *Error {
	return &Error{Type: TypeInvalidInput, Message: message}
}

// SessionNotFound creates a new unknown-session error (HTTP 404).
func SessionNotFound(sessionID string) *Error {
	return &Error{
		Type:    TypeSessionNotFound,
		Message: "session not found",
		Context: map[string]any{"sessionId": sessionID},
	}
}

// Internal creates a new internal error (HTTP 500).
func Internal(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause}
}

// Dependency creates a new collaborator-failure error (HTTP 502).
func Dependency(message string, cause error) *Error {
	return &Error{Type: TypeDependency, Message: message, Cause: cause}
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsType reports whether err is a structured error of the given type.
func IsType(err error, t ErrorType) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Type == t
	}
	return false
}

// ErrorResponse represents the JSON structure sent to clients. Internal
// details never leak beyond the message string.
type ErrorResponse struct {
	Error string    `json:"error"`
	Type  ErrorType `json:"type"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Type: e.Type}
}

// AsStructuredError converts any error into a structured Error. If err is
// already an *Error it is returned unchanged; otherwise it is wrapped as
// an internal error so raw causes never reach the caller.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return Internal("internal server error", err)
}
