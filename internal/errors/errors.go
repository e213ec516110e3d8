// Package errors provides the structured application error used at service and
// transport boundaries.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/target/marketpulse/internal/domain/model"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodeJobNotFound indicates an unknown job or one owned by someone else.
	ErrCodeJobNotFound ErrorCode = "job_not_found"
	// ErrCodeSubmissionRejected indicates invalid submission input.
	ErrCodeSubmissionRejected ErrorCode = "submission_rejected"
	// ErrCodeJobTerminal indicates the job already finished.
	ErrCodeJobTerminal ErrorCode = "job_terminal"
	// ErrCodeNotCancellable indicates the job kind has no cancellation support.
	ErrCodeNotCancellable ErrorCode = "not_cancellable"
	// ErrCodeResultNotReady indicates the job has no result to return.
	ErrCodeResultNotReady ErrorCode = "result_not_ready"
	// ErrCodeMissingPrecondition indicates data a stage depends on does not exist.
	ErrCodeMissingPrecondition ErrorCode = "missing_precondition"
	// ErrCodeStreamAbort indicates an answer stream failed.
	ErrCodeStreamAbort ErrorCode = "stream_abort"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field is the input field that caused a validation error, if known.
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// domainCodes maps job engine sentinels to codes. Order matters: the first match wins.
var domainCodes = []struct {
	target error
	code   ErrorCode
}{
	{model.ErrJobNotFound, ErrCodeJobNotFound},
	{model.ErrSubmissionRejected, ErrCodeSubmissionRejected},
	{model.ErrJobTerminal, ErrCodeJobTerminal},
	{model.ErrNotCancellable, ErrCodeNotCancellable},
	{model.ErrResultNotReady, ErrCodeResultNotReady},
	{model.ErrArtifactNotFound, ErrCodeNotFound},
	{model.ErrStreamAbort, ErrCodeStreamAbort},
}

// FromError converts any error into an AppError. AppErrors pass through unchanged,
// job engine sentinels get their dedicated code, everything else is internal.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if model.IsPrecondition(err) {
		return &AppError{Code: ErrCodeMissingPrecondition, Cause: err}
	}
	for _, dc := range domainCodes {
		if errors.Is(err, dc.target) {
			return &AppError{Code: dc.code, Cause: err}
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "Timed out waiting for the job to finish", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "Request canceled", Cause: err}
	}
	return &AppError{Code: ErrCodeInternal, Cause: err}
}

// HTTPStatus returns the response status for an error code.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeJobNotFound:
		return http.StatusNotFound
	case ErrCodeValidation, ErrCodeSubmissionRejected:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeJobTerminal, ErrCodeNotCancellable,
		ErrCodeResultNotReady, ErrCodeMissingPrecondition:
		return http.StatusConflict
	case ErrCodeStreamAbort:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
