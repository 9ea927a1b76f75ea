package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/keyword-collector/internal/schemas"
	"github.com/jonathan/keyword-collector/internal/storage"
	"github.com/jonathan/keyword-collector/internal/types"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "body", Message: "invalid JSON"}
	assert.Equal(t, "validation error: body - invalid JSON", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestErrBusy(t *testing.T) {
	err := &ErrBusy{InFlight: 1}
	assert.Equal(t, "collector busy: 1 collection(s) in flight", err.Error())
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"request validation", &types.ValidationError{Field: "category", Message: "too long"}, http.StatusBadRequest},
		{"schema validation", &schemas.ValidationError{Schema: "collection_request.schema.json"}, http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("load: %w", storage.ErrNotFound), http.StatusNotFound},
		{"bad name", storage.ErrInvalidName, http.StatusBadRequest},
		{"no run log", ErrRunLogDisabled, http.StatusServiceUnavailable},
		{"other", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
