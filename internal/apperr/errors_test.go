package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Invalid("body", "must not be empty"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("create: %w", Invalid("name", "required")), http.StatusBadRequest},
		{"unsupported format", &UnsupportedFormatError{Format: "exe", Supported: []string{"pdf"}}, http.StatusBadRequest},
		{"not found", NotFoundf("template %s", "x"), http.StatusNotFound},
		{"not ready", fmt.Errorf("export: %w", ErrNotReady), http.StatusConflict},
		{"job failed", ErrJobFailed, http.StatusGone},
		{"extraction", &ExtractionError{FileID: "a.pdf", Err: errors.New("boom")}, http.StatusUnprocessableEntity},
		{"unrenderable", fmt.Errorf("render pdf: %w", ErrUnrenderable), http.StatusUnprocessableEntity},
		{"other", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "validation: body: must not be empty", Invalid("body", "must not be empty").Error())
	assert.Equal(t, "validation: bad input", (&ValidationError{Message: "bad input"}).Error())

	uf := &UnsupportedFormatError{Format: "exe", Supported: []string{"docx", "pdf", "md", "html"}}
	assert.Contains(t, uf.Error(), `"exe"`)
	assert.Contains(t, uf.Error(), "docx, pdf, md, html")

	err := NotFoundf("job %d", 7)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "job 7: not found", err.Error())

	inner := errors.New("corrupt")
	ee := &ExtractionError{FileID: "f1", Err: inner}
	assert.ErrorIs(t, ee, inner)
	assert.True(t, IsValidation(Invalid("x", "y")))
	assert.False(t, IsValidation(inner))
}
