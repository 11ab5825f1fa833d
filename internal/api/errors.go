// Package api provides error handling utilities for HTTP APIs
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/geneseez/geneseez/internal/errors"
	"github.com/geneseez/geneseez/internal/logger"
	"github.com/gin-gonic/gin"
)

// Error codes returned to clients
const (
	CodeNotFound      = "NOT_FOUND"
	CodeValidation    = "VALIDATION_ERROR"
	CodeConflict      = "CONFLICT"
	CodeTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeUnsupported   = "UNSUPPORTED_MEDIA_TYPE"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeRateLimited   = "RATE_LIMITED"
	CodeCancelled     = "CANCELLED"
	CodeInternal      = "INTERNAL_ERROR"
	requestIDKey      = "request_id"
	requestIDHeader   = "X-Request-ID"
	defaultRetryAfter = 1
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Error   ErrorDetails `json:"error"`
	Success bool         `json:"success"`
}

// ErrorDetails contains detailed error information
type ErrorDetails struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Operation  string                 `json:"operation,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Retryable  bool                   `json:"retryable"`
	RetryAfter int                    `json:"retry_after,omitempty"` // seconds
	Context    map[string]interface{} `json:"context,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
}

// RequestID returns the request ID assigned by the request logger, falling
// back to the incoming header
func RequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	return c.GetHeader(requestIDHeader)
}

// RespondWithError sends a structured error response
func RespondWithError(c *gin.Context, err error) {
	requestID := RequestID(c)
	status := StatusFor(err)

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetails{
			Code:      codeForStatus(status),
			Message:   err.Error(),
			RequestID: requestID,
		},
	}

	var motionErr *apperrors.MotionError
	if errors.As(err, &motionErr) {
		response.Error.Operation = motionErr.Op
		response.Error.SessionID = motionErr.SessionID
		response.Error.Context = motionErr.Details
	}

	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		response.Error.Retryable = true
		response.Error.RetryAfter = defaultRetryAfter
		c.Header("Retry-After", fmt.Sprint(defaultRetryAfter))
	}

	logError(err, status, requestID)

	c.AbortWithStatusJSON(status, response)
}

// RespondWithCode sends an error response with an explicit status and code
func RespondWithCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Success: false,
		Error: ErrorDetails{
			Code:      code,
			Message:   message,
			Retryable: status == http.StatusTooManyRequests,
			RequestID: RequestID(c),
		},
	})
}

// StatusFor maps an error to an HTTP status
func StatusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return apperrors.HTTPStatus(err)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusConflict:
		return CodeConflict
	case http.StatusRequestEntityTooLarge:
		return CodeTooLarge
	case http.StatusUnsupportedMediaType:
		return CodeUnsupported
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return CodeCancelled
	}
	return CodeInternal
}

// logError logs the error with a severity matching its status
func logError(err error, status int, requestID string) {
	fields := []interface{}{
		"status", status,
		"error", err,
		"request_id", requestID,
	}

	if op := apperrors.GetOperation(err); op != "" {
		fields = append(fields, "operation", op)
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", fields...)
	case status == http.StatusConflict, status == http.StatusNotFound:
		logger.Debug("request rejected", fields...)
	default:
		logger.Warn("request rejected", fields...)
	}
}

// ErrorMiddleware recovers from panics and answers with an internal error
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				var err error
				switch v := r.(type) {
				case error:
					err = v
				case string:
					err = errors.New(v)
				default:
					err = fmt.Errorf("panic: %v", v)
				}

				logger.Error("panic recovered",
					"error", err,
					"request_path", c.Request.URL.Path,
					"request_method", c.Request.Method,
				)

				RespondWithError(c, apperrors.InternalError("panic", err))
			}
		}()

		c.Next()
	}
}
