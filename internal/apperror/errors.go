// Package apperror defines the error kinds surfaced to callers of the
// adherence engine. Every kind is recoverable by the caller and is never
// retried by the engine itself.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation error")
)

// Error carries a kind plus caller-facing context
type Error struct {
	Kind       error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func NotFound(resource, id string) *Error {
	return &Error{
		Kind:       ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

func Forbidden(message string) *Error {
	return &Error{
		Kind:       ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

func InvalidState(message string) *Error {
	return &Error{
		Kind:       ErrInvalidState,
		Message:    message,
		Code:       "INVALID_STATE",
		HTTPStatus: http.StatusConflict,
	}
}

func Validation(message string, details map[string]string) *Error {
	return &Error{
		Kind:       ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Is reports whether err is an *Error of the given kind
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// StatusCode maps any error to the HTTP status a caller boundary should use
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
