// Package apperr defines the error taxonomy shared by repositories, services
// and handlers. Each sentinel carries the HTTP status that the central echo
// error handler answers with; callers wrap sentinels with fmt.Errorf("%w")
// to add detail and compare them with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

// Error is a sentinel with an attached HTTP status code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// New returns a new sentinel error.
func New(code int, msg string) *Error { return &Error{Code: code, Message: msg} }

var (
	ErrValidation        = New(http.StatusBadRequest, "validation failed")
	ErrNotFound          = New(http.StatusNotFound, "not found")
	ErrCapacityExceeded  = New(http.StatusConflict, "the date is no longer available for that number of participants")
	ErrInvalidTransition = New(http.StatusConflict, "invalid booking status transition")
	ErrSignatureInvalid  = New(http.StatusBadRequest, "invalid webhook signature")
	ErrExternalService   = New(http.StatusBadGateway, "external service failure")
	ErrUnauthorized      = New(http.StatusUnauthorized, "unauthorized")
	ErrForbidden         = New(http.StatusForbidden, "forbidden")
	ErrConflict          = New(http.StatusConflict, "conflict")
	ErrNotConfigured     = New(http.StatusInternalServerError, "not configured")
)

// StatusOf returns the HTTP status of the first apperr.Error in err's chain,
// or 500 when err is not part of the taxonomy.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return http.StatusInternalServerError
}

// PublicMessage returns text safe to show to a client. Validation errors
// keep their detail; everything else is reduced to the sentinel message.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "internal server error"
	}
	if ae == ErrValidation {
		return err.Error()
	}
	return ae.Message
}
