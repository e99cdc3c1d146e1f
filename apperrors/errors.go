// Package apperrors holds the error kinds shared by the store, the services
// and the HTTP layer. Callers wrap them with fmt.Errorf("...: %w", ...) and
// classify with errors.Is.
package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrRateLimited        = errors.New("too many attempts")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// Validation wraps ErrValidation with a caller-facing message.
func Validation(msg string) error {
	return &validationError{msg: msg}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return ErrValidation }

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that is safe to send to clients.
// Internal failures never leak their cause.
func PublicMessage(err error) string {
	var ve *validationError
	switch {
	case errors.As(err, &ve):
		return ve.msg
	case errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentials.Error()
	case errors.Is(err, ErrUnauthenticated):
		return "invalid or expired token"
	case errors.Is(err, ErrForbidden):
		return "insufficient role"
	case errors.Is(err, ErrNotFound):
		return "user not found"
	case errors.Is(err, ErrDuplicateEmail):
		return ErrDuplicateEmail.Error()
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited.Error()
	case errors.Is(err, ErrStoreUnavailable):
		return "service temporarily unavailable, retry later"
	default:
		return "internal error"
	}
}
