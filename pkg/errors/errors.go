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
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Face pipeline errors. NoFaceDetected covers the zero-face and
	// ambiguous-face cases after every detector strategy has been tried;
	// NoReferenceData means the student never completed face registration.
	ErrNoFaceDetected  = New("NO_FACE_DETECTED", http.StatusUnprocessableEntity, "no face detected in the captured image")
	ErrNoReferenceData = New("NO_REFERENCE_DATA", http.StatusConflict, "no reference face data registered for this student")
	ErrFaceMismatch    = New("FACE_MISMATCH", http.StatusUnauthorized, "captured face does not match the registered reference")

	// Ledger and infrastructure errors.
	ErrBackendUnreachable = New("BACKEND_UNREACHABLE", http.StatusServiceUnavailable, "backend store unreachable")
	ErrRateLimited        = New("RATE_LIMITED", http.StatusTooManyRequests, "too many failed attempts")
	ErrUploadFailed       = New("UPLOAD_FAILED", http.StatusBadGateway, "photo upload failed")
	ErrStudentAuthOff     = New("STUDENT_AUTH_DISABLED", http.StatusForbidden, "student self-service authentication is disabled")
	ErrUpdateInFlight     = New("UPDATE_IN_FLIGHT", http.StatusConflict, "another update is already in progress")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
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

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
