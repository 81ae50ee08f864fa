// Package apperr defines the error kinds shared by the template store, the
// job registry and the export renderer, and maps them onto HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned for unknown template, version or job ids.
	ErrNotFound = errors.New("not found")

	// ErrNotReady is returned when a job has not reached a terminal state yet.
	ErrNotReady = errors.New("job not ready")

	// ErrJobFailed is returned when a result is requested from a failed job.
	ErrJobFailed = errors.New("job failed")

	// ErrConflict is returned when a concurrent write won a race.
	ErrConflict = errors.New("conflict")

	// ErrUnrenderable is returned when content cannot be represented in the
	// requested export format with the configured resources.
	ErrUnrenderable = errors.New("content cannot be rendered")
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedFormatError is returned for export formats outside the closed set.
type UnsupportedFormatError struct {
	Format    string
	Supported []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q (supported: %s)", e.Format, strings.Join(e.Supported, ", "))
}

// ExtractionError wraps a failure to turn a reference file into text.
type ExtractionError struct {
	FileID string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract reference %s: %v", e.FileID, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NotFoundf wraps ErrNotFound with a description of what was missing.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HTTPStatus maps an error onto the status code a handler should answer with.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		ue *UnsupportedFormatError
		ee *ExtractionError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve), errors.As(err, &ue):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrJobFailed):
		return http.StatusGone
	case errors.As(err, &ee), errors.Is(err, ErrUnrenderable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
