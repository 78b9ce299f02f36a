package errors

import (
	"errors"
	"fmt"
)

// Standardized error codes. Components outside this package should use these
// constants rather than string literals so a code-switch stays exhaustive.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeConflict         = "CONFLICT"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL"
	CodeTimeout          = "TIMEOUT"
	CodePermissionDenied = "PERMISSION_DENIED"
)

// AppError is the structured error type used throughout the system. It
// carries a stable code callers can switch on, a human-readable message, and
// the underlying cause (if any) for chaining.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code, message, and optional cause.
func New(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Wrap attaches message context to err, preserving err as the cause. If err
// is already an *AppError its code is preserved; otherwise the result is
// CodeInternal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{Code: appErr.Code, Message: message + ": " + appErr.Message, Cause: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

// NotFound creates a CodeNotFound error.
func NotFound(message string, cause error) *AppError {
	return New(CodeNotFound, message, cause)
}

// InvalidArgument creates a CodeInvalidArgument error.
func InvalidArgument(message string, cause error) *AppError {
	return New(CodeInvalidArgument, message, cause)
}

// Conflict creates a CodeConflict error.
func Conflict(message string, cause error) *AppError {
	return New(CodeConflict, message, cause)
}

// Unavailable creates a CodeUnavailable error, used for transient
// downstream/network failures that are candidates for retry.
func Unavailable(message string, cause error) *AppError {
	return New(CodeUnavailable, message, cause)
}

// Internal creates a CodeInternal error.
func Internal(message string, cause error) *AppError {
	return New(CodeInternal, message, cause)
}

// PermissionDenied creates a CodePermissionDenied error, used when an
// operation lacks the administrative privilege to proceed but the caller
// should treat that as non-fatal (e.g. topic auto-creation).
func PermissionDenied(message string, cause error) *AppError {
	return New(CodePermissionDenied, message, cause)
}

// Code returns the AppError code of err, or CodeInternal if err is not (or
// does not wrap) an *AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}
