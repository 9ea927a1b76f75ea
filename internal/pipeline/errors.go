package pipeline

import (
	"errors"
	"fmt"
)

// ErrEmptyRequest is returned when a request has no category, purposes or params.
var ErrEmptyRequest = errors.New("request has no category, purposes or parameters")

// ErrEmptyQuery is returned when the composed query is blank.
var ErrEmptyQuery = errors.New("composed query is empty")

// StageError records the stage a run failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
