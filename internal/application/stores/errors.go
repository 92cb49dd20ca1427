package stores

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateSubmission is returned when the same action is already in flight for this client.
	ErrDuplicateSubmission = errors.New("This request is already being processed")
	// ErrStale is returned when a response arrives after SignOut invalidated its request.
	ErrStale = errors.New("response discarded: session changed while the request was in flight")
	// ErrNoToken is returned by actions that need a bearer token when none is held.
	ErrNoToken = errors.New("No access token available")
)

// ValidationError is a local input check that failed before any network call.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// ActionError is a failed API call, carrying the API's message and code.
type ActionError struct {
	Action  string
	Message string
	Code    string
	Status  int // 0 when the request never got a response
}

func (e *ActionError) Error() string {
	return e.Message
}

// String is the log form, with the action and status.
func (e *ActionError) String() string {
	return fmt.Sprintf("%s failed (status %d): %s", e.Action, e.Status, e.Message)
}

// UserMessage returns the text to show for err on a page.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
