package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidToken covers expired, mismatched and tampered links.
	ErrInvalidToken    = errors.New("invalid or expired link")
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrUnauthorized is deliberately generic so callers cannot probe which accounts exist.
	ErrUnauthorized = errors.New("invalid login credentials")
	ErrForbidden    = errors.New("permission denied")
	ErrNotFound     = errors.New("not found")
)

// ValidationError reports bad or duplicate input, optionally tied to a field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Validation builds a *ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// RateLimitedError carries how long the caller should wait.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	minutes := int(e.RetryAfter / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("too many requests, try again in %d minute(s)", minutes)
}

func RateLimited(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsRateLimited(err error) bool {
	var r *RateLimitedError
	return errors.As(err, &r)
}
