package answer

import (
	"errors"
	"fmt"
)

var (
	// ErrElementNotFound is returned when the trigger element is absent
	// after navigation. It is not retried.
	ErrElementNotFound = errors.New("could not find the book element")
	// ErrResultTimeout is returned when answer.result_timeout elapses before
	// the result content appears.
	ErrResultTimeout = errors.New("timed out waiting for the answer")
)

// NavigationError wraps the last failure of a navigation that exhausted its
// retries. Unwrap exposes the original error.
type NavigationError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }
