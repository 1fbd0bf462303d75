package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error taxonomy. Every failure that leaves a package wraps one of these.
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrConversion        = errors.New("conversion failed")
	ErrParse             = errors.New("parse failed")
	ErrGeometry          = errors.New("unrecognized geometry")
	ErrSummarization     = errors.New("summarization failed")
	ErrInvalidInput      = errors.New("invalid input")
)

// Client-facing error categories.
const (
	CategoryNotFound    = "not_found"
	CategoryBadRequest  = "bad_request"
	CategoryServerError = "server_error"
)

// NewAppError builds an AppError wrapping cause.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CategoryOf maps an error onto the category reported to clients.
func CategoryOf(err error) string {
	switch {
	case errors.Is(err, ErrFileNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrInvalidInput):
		return CategoryBadRequest
	default:
		return CategoryServerError
	}
}

// HTTPStatus returns the HTTP status code for err's category.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the human-readable part of err for client responses: the
// message of the outermost AppError, or the error text otherwise.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
