// Package errors defines the sentinel errors shared by the search, feedback
// and corpus layers, and the AppError wrapper that carries an HTTP status and
// a client-facing message across package boundaries.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyQuery       = errors.New("empty query")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidQuery     = fmt.Errorf("invalid query: %w", ErrInvalidInput)
	ErrNoResults        = errors.New("no results")
	ErrUnknownReference = errors.New("unknown reference")
	ErrCorpusLoad       = errors.New("corpus load failure")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps err to the status the HTTP boundary should answer with.
// An AppError's own status wins over the sentinel mapping. ErrNoResults maps
// to 200: an empty result list is a valid answer, not a failure.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrEmptyQuery), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoResults):
		return http.StatusOK
	case errors.Is(err, ErrUnknownReference):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the short machine-readable code used in JSON error bodies.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return "empty_query"
	case errors.Is(err, ErrNoResults):
		return "no_results"
	case errors.Is(err, ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrUnknownReference):
		return "unknown_reference"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "internal"
	}
}
