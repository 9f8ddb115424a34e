package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is matches by code so cloned copies compare equal to their sentinel
// under errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Access policy outcomes. Handlers collapse both into a generic message
	// when existence of the content must not leak to the caller.
	ErrNotEnrolled = New("NOT_ENROLLED", http.StatusForbidden, "not enrolled in course")
	ErrNotAssigned = New("NOT_ASSIGNED", http.StatusForbidden, "activity not assigned to student")

	// Completion state machine.
	ErrInvalidTransition = New("INVALID_TRANSITION", http.StatusConflict, "invalid progress transition")
	ErrNotGradeable      = New("NOT_GRADEABLE", http.StatusConflict, "activity type does not support grading")
	ErrProgressGate      = New("PROGRESS_GATE", http.StatusPreconditionFailed, "content progress below completion threshold")

	// Generative gateway failures are retryable by contract.
	ErrProviderTimeout  = New("PROVIDER_TIMEOUT", http.StatusGatewayTimeout, "content provider timed out, retry the request")
	ErrProviderResponse = New("PROVIDER_RESPONSE", http.StatusBadGateway, "content provider returned an unusable response, retry the request")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Retryable reports whether the caller may safely retry the failed operation.
func Retryable(err error) bool {
	e := FromError(err)
	if e == nil {
		return false
	}
	return e.Code == ErrProviderTimeout.Code || e.Code == ErrProviderResponse.Code
}
