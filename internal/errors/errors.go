// Package errors provides the structured application error taxonomy used by
// the HTTP layer to map domain failures onto response codes.
package errors

import (
	"errors"
	"fmt"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnauthorized indicates a missing or failed authentication.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeForbidden indicates the principal lacks the required role.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeRateLimited indicates the caller exceeded an issuance window.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeUnavailable indicates a dependency failure the caller can retry.
	ErrCodeUnavailable ErrorCode = "unavailable"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError is a structured application error with a code, message, and
// optional cause. It supports errors.Is and errors.As through Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field is the specific input field at fault, for validation errors.
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField creates a Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Unauthorized creates a new Unauthorized error.
func Unauthorized(message string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: message}
}

// Forbidden creates a new Forbidden error.
func Forbidden(message string) *AppError {
	return &AppError{Code: ErrCodeForbidden, Message: message}
}

// Internal creates a new Internal error wrapping its cause.
func Internal(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Cause: cause}
}

// CodeOf extracts the ErrorCode from any error, defaulting to internal.
func CodeOf(err error) ErrorCode {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return ErrCodeInternal
}

// FromDomain classifies a domain sentinel into the application taxonomy. The
// message is kept verbatim: the domain sentinels carry the user-facing text.
func FromDomain(err error) *AppError {
	var app *AppError
	if errors.As(err, &app) {
		return app
	}

	code := ErrCodeInternal
	switch {
	case errors.Is(err, domainauth.ErrInvalidPhoneFormat):
		code = ErrCodeValidation
	case errors.Is(err, domainauth.ErrChallengeNotFound),
		errors.Is(err, domainauth.ErrProfileNotFound),
		errors.Is(err, domainauth.ErrNoSessionRecord):
		code = ErrCodeNotFound
	case errors.Is(err, domainauth.ErrAlreadyUsed):
		code = ErrCodeConflict
	case errors.Is(err, domainauth.ErrTooManyAttempts),
		errors.Is(err, domainauth.ErrIssuanceRateLimited):
		code = ErrCodeRateLimited
	case errors.Is(err, domainauth.ErrChallengeExpired),
		errors.Is(err, domainauth.ErrInvalidCode):
		code = ErrCodeUnauthorized
	case errors.Is(err, domainauth.ErrDeliveryFailed),
		errors.Is(err, domainauth.ErrStoreRead),
		errors.Is(err, domainauth.ErrStoreWrite):
		code = ErrCodeUnavailable
	}

	return &AppError{Code: code, Message: userMessage(err), Cause: err}
}

// userMessage returns the outermost sentinel text without any joined causes.
func userMessage(err error) string {
	for _, sentinel := range []error{
		domainauth.ErrInvalidPhoneFormat,
		domainauth.ErrChallengeNotFound,
		domainauth.ErrAlreadyUsed,
		domainauth.ErrTooManyAttempts,
		domainauth.ErrChallengeExpired,
		domainauth.ErrInvalidCode,
		domainauth.ErrIssuanceRateLimited,
		domainauth.ErrDeliveryFailed,
		domainauth.ErrStoreRead,
		domainauth.ErrStoreWrite,
		domainauth.ErrProfileFetchFailed,
		domainauth.ErrProfileNotFound,
		domainauth.ErrNoSessionRecord,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
