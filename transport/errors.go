package transport

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted marks a 429 that was still returned on the last attempt.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Error is returned when the upstream is unreachable or answered with a status
// that is not worth retrying. Err holds the last underlying cause, if any.
type Error struct {
	Attempts   int
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("upstream request failed after %d attempts: %s: %v", e.Attempts, e.Status, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream request failed: %s", e.Status)
	default:
		return fmt.Sprintf("upstream request failed after %d attempts: %v", e.Attempts, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }
