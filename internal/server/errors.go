// Package server provides the HTTP API that triggers keyword collections.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/keyword-collector/internal/schemas"
	"github.com/jonathan/keyword-collector/internal/storage"
	"github.com/jonathan/keyword-collector/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrBusy indicates that no collection slot became free before the request ended.
type ErrBusy struct {
	InFlight int64
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("collector busy: %d collection(s) in flight", e.InFlight)
}

// ErrRunLogDisabled indicates that run history was requested without a database.
var ErrRunLogDisabled = errors.New("run log is not configured")

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		requestErr    *types.ValidationError
		schemaErr     *schemas.ValidationError
		busyErr       *ErrBusy
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &requestErr), errors.As(err, &schemaErr):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &busyErr), errors.Is(err, ErrRunLogDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
