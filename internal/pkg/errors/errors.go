// Package errors provides domain-specific error types for the stats indexer.
//
// Every AppError carries a Kind sentinel from the indexer error taxonomy
// (not found, transient store failure, configuration) so callers branch with
// errors.Is instead of string matching.
//
// Import Path: statsidx.io/statsidx/internal/pkg/errors
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds. AppError.Is matches against these.
var (
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient store failure")
	ErrConfiguration = errors.New("configuration error")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
)

// AppError is a structured application error with HTTP status and error code.
type AppError struct {
	// Code is a machine-readable error code (e.g., "ROW_NOT_FOUND").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// HTTPStatus is the corresponding HTTP status code.
	HTTPStatus int `json:"-"`

	// Params carries structured context (index name, natural id, ...).
	Params map[string]interface{} `json:"params,omitempty"`

	// Kind is one of the sentinel kinds above.
	Kind error `json:"-"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind.
func (e *AppError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// New creates a new AppError.
func New(kind error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Kind:       kind,
	}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, kind error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Kind:       kind,
		Err:        err,
	}
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// Common error constructors.

// NotFound creates a 404 error of kind ErrNotFound.
func NotFound(code, message string) *AppError {
	return New(ErrNotFound, code, message, http.StatusNotFound)
}

// BadRequest creates a 400 error of kind ErrInvalidInput.
func BadRequest(code, message string) *AppError {
	return New(ErrInvalidInput, code, message, http.StatusBadRequest)
}

// Conflict creates a 409 error of kind ErrConflict.
func Conflict(code, message string) *AppError {
	return New(ErrConflict, code, message, http.StatusConflict)
}

// Configuration creates a fatal configuration error. Not retried.
func Configuration(code, message string) *AppError {
	return New(ErrConfiguration, code, message, http.StatusUnprocessableEntity)
}

// Transient wraps a store I/O failure. Callers may retry.
func Transient(op string, err error) *AppError {
	return Wrap(err, ErrTransient, CodeStoreUnavailable, op, http.StatusServiceUnavailable)
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is of kind ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTransient reports whether err is of kind ErrTransient.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsConfiguration reports whether err is of kind ErrConfiguration.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
