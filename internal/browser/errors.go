package browser

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingCredentials is returned when the site asks for a login and no credentials are configured.
var ErrMissingCredentials = errors.New("login required but credentials are not configured")

// SessionCreationError represents a failure to launch or configure the browser.
type SessionCreationError struct {
	Message string
	Cause   error
}

func (e *SessionCreationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session creation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("session creation error: %s", e.Message)
}

func (e *SessionCreationError) Unwrap() error {
	return e.Cause
}

// AuthenticationTimeoutError reports that login did not complete in time.
type AuthenticationTimeoutError struct {
	Timeout time.Duration
	// URL is the page the browser was on when the wait expired.
	URL string
	// Notice is the site's visible alert text, if any.
	Notice string
}

func (e *AuthenticationTimeoutError) Error() string {
	msg := fmt.Sprintf("authentication timeout: not logged in after %s (url: %s)", e.Timeout, e.URL)
	if e.Notice != "" {
		msg += fmt.Sprintf(": site says %q", e.Notice)
	}
	return msg
}

// ElementNotFoundError reports that a step could not locate an element it needs.
type ElementNotFoundError struct {
	Element string
	Step    string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found: %s (during %s)", e.Element, e.Step)
}
