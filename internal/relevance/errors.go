package relevance

import (
	"errors"
	"fmt"
)

// ErrNoCandidates is recorded when there is nothing to filter.
var ErrNoCandidates = errors.New("no candidate keywords")

// FilterServiceError represents a failure of the language-model call. It is
// never returned to callers; Apply absorbs it into a FallbackFiltered outcome.
type FilterServiceError struct {
	Message string
	Cause   error
}

func (e *FilterServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("filter service error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("filter service error: %s", e.Message)
}

func (e *FilterServiceError) Unwrap() error {
	return e.Cause
}
