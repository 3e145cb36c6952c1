// Package apperror defines the application's error taxonomy.
//
// Every failure that crosses the service boundary is one of the sentinel
// errors below, wrapped in an *AppError carrying a user-safe message.
// HTTP handlers translate sentinels to status codes in one place
// (handler/response.go) — the service layer never mentions HTTP.
//
// SECURITY-SENSITIVE MESSAGES:
// Two sentinels are intentionally vague:
//   - ErrInvalidCredentials covers both "no such user" and "wrong password",
//     so a login response never reveals whether an email is registered.
//   - ErrInvalidCode covers missing, expired and mismatched reset codes,
//     so a reset response never reveals which check failed.
//
// Constructors return the same generic message for every failure in the
// class. Do not add detail to these — the vagueness is the point.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrDelivery           = errors.New("delivery failure")
)

type AppError struct {
	Err     error  // sentinel identifying the class
	Message string // human-readable, safe to show to the caller
	Field   string // optional: input field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, key string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, key),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// DuplicateEmail is the registration conflict. The email itself is echoed
// back — the caller just typed it, so this reveals nothing new.
func DuplicateEmail(email string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("an account with email %s already exists", email),
		Field:   "email",
	}
}

// InvalidCredentials returns the uniform login failure.
// Same message whether the email is unknown or the password is wrong —
// otherwise an attacker could enumerate registered accounts.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid email or password",
	}
}

// InvalidCode returns the uniform reset-code failure.
// Same message for missing, expired and mismatched codes.
func InvalidCode() *AppError {
	return &AppError{
		Err:     ErrInvalidCode,
		Message: "invalid or expired code",
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// DeliveryFailed reports that an outbound notification (email) could not
// be sent. The transport error is kept in Err's chain for logging but the
// message stays generic.
func DeliveryFailed(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrDelivery, cause),
		Message: "could not deliver the email, please try again",
	}
}
