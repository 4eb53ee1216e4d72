package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeMethod       ErrorType = "METHOD_NOT_ALLOWED"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// authentication
	ErrCodeNoToken         ErrorCode = "NO_TOKEN"
	ErrCodeInvalidToken    ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired    ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInvalidUser     ErrorCode = "INVALID_USER"
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"

	// authorization
	ErrCodeInsufficientRoleLevel  ErrorCode = "INSUFFICIENT_ROLE_LEVEL"
	ErrCodeInsufficientPermission ErrorCode = "INSUFFICIENT_PERMISSION"
	ErrCodeMethodNotAllowed       ErrorCode = "METHOD_NOT_ALLOWED"

	// session management
	ErrCodeSessionNotFound         ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeCannotEndCurrentSession ErrorCode = "CANNOT_END_CURRENT_SESSION"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUnknownRole        ErrorCode = "UNKNOWN_ROLE"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

// RoleDenialDetails is attached to role-based denials so callers can show
// the required versus the caller's current role.
type RoleDenialDetails struct {
	Required string `json:"required"`
	Current  string `json:"current"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewMethodNotAllowedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeMethod,
		Code:       ErrCodeMethodNotAllowed,
		Message:    message,
		StatusCode: http.StatusMethodNotAllowed,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrNoToken         = NewUnauthorizedError("Missing authorization token", ErrCodeNoToken)
	ErrInvalidToken    = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired    = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrInvalidUser     = NewUnauthorizedError("User not found or inactive", ErrCodeInvalidUser)
	ErrUnauthenticated = NewUnauthorizedError("Authentication required", ErrCodeUnauthenticated)

	ErrInvalidCredentials = NewUnauthorizedError("Invalid email or password", ErrCodeInvalidCredentials)

	ErrSessionNotFound         = NewNotFoundError("Session not found", ErrCodeSessionNotFound)
	ErrCannotEndCurrentSession = NewConflictError("Cannot end the current session; use logout instead", ErrCodeCannotEndCurrentSession)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
