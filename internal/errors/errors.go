// Package errors provides structured error handling for the motion demo.
// It defines error types, sentinel errors, and helpers that map errors to
// HTTP status codes for the API layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an error
type ErrorType string

const (
	// ErrorTypeSession indicates session lookup or lifecycle errors
	ErrorTypeSession ErrorType = "session"
	// ErrorTypeValidation indicates rejected input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeState indicates an operation not allowed in the current state
	ErrorTypeState ErrorType = "state"
	// ErrorTypeResource indicates resource limits
	ErrorTypeResource ErrorType = "resource"
	// ErrorTypeInternal indicates internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors for common scenarios
var (
	// ErrSessionNotFound indicates a session ID doesn't exist or has expired
	ErrSessionNotFound = errors.New("session not found")

	// ErrClosed indicates the session has been torn down
	ErrClosed = errors.New("session closed")

	// ErrBusy indicates generation is in progress and inputs are locked
	ErrBusy = errors.New("generation in progress")

	// ErrNotReady indicates Generate was requested without both inputs
	ErrNotReady = errors.New("image and video are both required")

	// ErrNoResult indicates there is no result to download yet
	ErrNoResult = errors.New("no result available")

	// ErrInvalidSlot indicates an unknown upload slot
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrEmptySlot indicates a slot was read before anything was uploaded into it
	ErrEmptySlot = errors.New("slot is empty")

	// ErrReadFailed indicates the uploaded file could not be read
	ErrReadFailed = errors.New("failed to read upload")

	// ErrUploadTooLarge indicates an upload exceeded an enforced limit
	ErrUploadTooLarge = errors.New("upload too large")

	// ErrUnsupportedMedia indicates an upload of the wrong media family
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// ErrInvalidDataURI indicates a malformed data URI handle
	ErrInvalidDataURI = errors.New("invalid data uri")

	// ErrResourceLimitExceeded indicates max concurrent sessions reached
	ErrResourceLimitExceeded = errors.New("resource limit exceeded")
)

// MotionError provides structured error information with context
type MotionError struct {
	Type      ErrorType              // Error classification
	Op        string                 // Operation that failed (e.g. "generate", "upload")
	SessionID string                 // Related session ID if applicable
	Err       error                  // Underlying error
	Details   map[string]interface{} // Additional context
}

// Error implements the error interface
func (e *MotionError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s error in %s for session %s: %v", e.Type, e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *MotionError) Unwrap() error {
	return e.Err
}

// New creates a new MotionError
func New(errType ErrorType, op string, err error) *MotionError {
	return &MotionError{
		Type:    errType,
		Op:      op,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithSession adds session context to the error
func (e *MotionError) WithSession(sessionID string) *MotionError {
	e.SessionID = sessionID
	return e
}

// WithDetail adds a key-value detail to the error
func (e *MotionError) WithDetail(key string, value interface{}) *MotionError {
	e.Details[key] = value
	return e
}

// SessionError creates a session-related error
func SessionError(op string, err error) *MotionError {
	return New(ErrorTypeSession, op, err)
}

// ValidationError creates a validation error
func ValidationError(op string, err error) *MotionError {
	return New(ErrorTypeValidation, op, err)
}

// StateError creates an error for an operation rejected by the current state
func StateError(op string, err error) *MotionError {
	return New(ErrorTypeState, op, err)
}

// ResourceError creates a resource-related error
func ResourceError(op string, err error) *MotionError {
	return New(ErrorTypeResource, op, err)
}

// InternalError creates an internal error
func InternalError(op string, err error) *MotionError {
	return New(ErrorTypeInternal, op, err)
}

// GetType extracts the error type, defaulting to internal
func GetType(err error) ErrorType {
	var me *MotionError
	if errors.As(err, &me) {
		return me.Type
	}
	return ErrorTypeInternal
}

// GetOperation extracts the failed operation name
func GetOperation(err error) string {
	var me *MotionError
	if errors.As(err, &me) {
		return me.Op
	}
	return ""
}

// HTTPStatus maps an error to the status code the API responds with
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, ErrBusy), errors.Is(err, ErrNotReady), errors.Is(err, ErrNoResult), errors.Is(err, ErrEmptySlot):
		return http.StatusConflict
	case errors.Is(err, ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrReadFailed), errors.Is(err, ErrInvalidDataURI):
		return http.StatusBadRequest
	case errors.Is(err, ErrResourceLimitExceeded):
		return http.StatusServiceUnavailable
	}

	switch GetType(err) {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeState:
		return http.StatusConflict
	case ErrorTypeSession:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Is reports whether any error in err's tree matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
