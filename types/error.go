package types

import "fmt"

// ErrorCode represents a unified error code across the coordination core.
type ErrorCode string

// Switch validation error codes. These are returned synchronously to the
// caller and never retried automatically.
const (
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrAlreadyInMode ErrorCode = "ALREADY_IN_MODE"
	ErrNotActive     ErrorCode = "NOT_ACTIVE"
	ErrInternal      ErrorCode = "INTERNAL"
)

// CanSwitch denial codes. The two-tier lookup distinguishes "call
// legitimately ended" from "session merely expired".
const (
	ErrCallEnded      ErrorCode = "CALL_ENDED"
	ErrSessionExpired ErrorCode = "SESSION_EXPIRED"
)

// Transport / request error codes.
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrStoreUnavailable   ErrorCode = "STORE_UNAVAILABLE"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Gateway command error codes.
const (
	ErrWrongMode      ErrorCode = "WRONG_MODE"
	ErrUnknownCommand ErrorCode = "UNKNOWN_COMMAND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsErrorCode checks whether err is a *Error with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}
