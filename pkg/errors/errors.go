// Package errors defines the sentinel errors shared by the index, ranking,
// and service layers, plus an AppError wrapper that carries an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrImageExists        = errors.New("image already exists in the index")
	ErrImageNotFound      = errors.New("image does not exist in the index")
	ErrDimensionMismatch  = errors.New("histogram length does not match vocabulary size")
	ErrInvalidHistogram   = errors.New("invalid histogram")
	ErrUnreachableImage   = errors.New("histogram has no visual word above cutoff")
	ErrInvalidInput       = errors.New("invalid input")
	ErrEncoderUnavailable = errors.New("histogram encoder unavailable")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
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

// IsPrecondition reports whether err signals caller misuse of the index
// (bad histogram shape or content) rather than a runtime condition.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrInvalidHistogram) ||
		errors.Is(err, ErrUnreachableImage) ||
		errors.Is(err, ErrInvalidInput)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrImageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrImageExists):
		return http.StatusConflict
	case IsPrecondition(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrEncoderUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
