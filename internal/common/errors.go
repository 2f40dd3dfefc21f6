// Package common defines shared constants and sentinel errors used across
// the server layers of cellscope. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal           = errors.New("internal error")
	ErrorUnauthorized       = errors.New("unauthorized")
	ErrorInvalidCredentials = errors.New("invalid username or password")
	ErrorUsernameExists     = errors.New("username already exists")
	ErrorValidation         = errors.New("validation error")
	ErrorQueue              = errors.New("failed to submit analysis job")

	// Password hashing subsystem failure (not a password mismatch).
	ErrHashingFailed = errors.New("hashing failed")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ValidationError carries a human readable validation message and matches
// ErrorValidation with errors.Is.
type ValidationError struct {
	Message string
}

// NewValidationError returns a ValidationError with the given message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrorValidation
}

// NotFoundError names the missing resource and matches ErrorNotFound with
// errors.Is.
type NotFoundError struct {
	Message string
}

func NewNotFoundError(msg string) *NotFoundError {
	return &NotFoundError{Message: msg}
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrorNotFound
}
