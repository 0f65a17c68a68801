package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/router"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorCode represents error codes used in API responses
type ErrorCode string

const (
	ErrorCodeInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrorCodeUnknownCapability ErrorCode = "UNKNOWN_CAPABILITY"
	ErrorCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrorCodeMethodNotAllowed  ErrorCode = "METHOD_NOT_ALLOWED"
	ErrorCodeNotReady          ErrorCode = "NOT_READY"
	ErrorCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// APIError is an error with the status code and code to answer it with.
type APIError struct {
	Code       ErrorCode
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewInvalidRequestError creates a 400 error.
func NewInvalidRequestError(message string, args ...interface{}) *APIError {
	return &APIError{Code: ErrorCodeInvalidRequest, StatusCode: http.StatusBadRequest, Message: fmt.Sprintf(message, args...)}
}

// NewInternalServerError creates a 500 error.
func NewInternalServerError(message string, args ...interface{}) *APIError {
	return &APIError{Code: ErrorCodeInternalError, StatusCode: http.StatusInternalServerError, Message: fmt.Sprintf(message, args...)}
}

// toAPIError maps router and capability errors to responses. Backend failures
// never reach here; they are sections of the report.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, capability.ErrUnknownCapability):
		return &APIError{Code: ErrorCodeUnknownCapability, StatusCode: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, router.ErrInvalidQuery):
		return NewInvalidRequestError("%s", err.Error())
	default:
		return NewInternalServerError("query failed: %v", err)
	}
}
