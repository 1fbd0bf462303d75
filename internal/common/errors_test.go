package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       string
		wantStatus int
	}{
		{"not found", NewAppError("FILE_NOT_FOUND", "File not found: a.dxf", ErrFileNotFound), CategoryNotFound, http.StatusNotFound},
		{"unsupported", NewAppError("UNSUPPORTED_FORMAT", "x", ErrUnsupportedFormat), CategoryBadRequest, http.StatusBadRequest},
		{"too large", fmt.Errorf("fetch: %w", ErrFileTooLarge), CategoryBadRequest, http.StatusBadRequest},
		{"invalid input", ErrInvalidInput, CategoryBadRequest, http.StatusBadRequest},
		{"conversion", NewAppError("CONVERSION_ERROR", "x", errors.Join(ErrConversion, errors.New("exit 1"))), CategoryServerError, http.StatusInternalServerError},
		{"parse", ErrParse, CategoryServerError, http.StatusInternalServerError},
		{"plain", errors.New("boom"), CategoryServerError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.err))
			assert.Equal(t, tt.wantStatus, HTTPStatus(tt.err))
		})
	}
}

func TestDetail(t *testing.T) {
	assert.Equal(t, "", Detail(nil))
	assert.Equal(t, "boom", Detail(errors.New("boom")))

	inner := NewAppError("PARSE_ERROR", "bad group code", ErrParse)
	outer := NewAppError("CONVERSION_ERROR", "Failed to convert DWG to DXF: bad group code", inner)
	assert.Equal(t, "Failed to convert DWG to DXF: bad group code", Detail(outer))
	assert.Equal(t, "bad group code", Detail(fmt.Errorf("read: %w", inner)))
}

func TestAppError(t *testing.T) {
	err := NewAppError("PARSE_ERROR", "bad group code", ErrParse)
	assert.Equal(t, "PARSE_ERROR: bad group code: parse failed", err.Error())
	assert.ErrorIs(t, err, ErrParse)
	assert.Equal(t, "HISTORY_ERROR: closed", NewAppError("HISTORY_ERROR", "closed", nil).Error())
}
