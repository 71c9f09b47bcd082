package common

import (
	"errors"
	"net/http"
)

// Common error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("resource conflict")
	ErrValidation   = errors.New("validation error")
	ErrUpstream     = errors.New("upstream unavailable")
	ErrInvalidToken = errors.New("invalid token")
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithErrorCode sets a machine-readable code the UI can switch on.
func (e *AppError) WithErrorCode(code string) *AppError {
	e.ErrorCode = code
	return e
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewNotFoundError(message string, err error) *AppError {
	if err == nil {
		err = ErrNotFound
	}
	return NewAppError(http.StatusNotFound, message, err)
}

func NewConflictError(message string) *AppError {
	return NewAppError(http.StatusConflict, message, ErrConflict)
}

// NewValidationError reports a locally resolvable input problem.
func NewValidationError(message string) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, message, ErrValidation)
}

// NewUpstreamError reports a failed call to the ride API.
func NewUpstreamError(message string, err error) *AppError {
	if err == nil {
		err = ErrUpstream
	}
	return NewAppError(http.StatusBadGateway, message, err)
}

// AsAppError returns the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
