package fetch

import (
	"errors"
	"fmt"
)

// ErrInvalidUsage marks API misuse. It is returned synchronously and never
// delivered through a listener.
var ErrInvalidUsage = errors.New("invalid usage")

var ErrAlreadySent = fmt.Errorf("%w: request can only be sent once", ErrInvalidUsage)

// URLError reports a URL that could not be turned into a request.
type URLError struct {
	URL string
	Err error
}

func (e *URLError) Error() string {
	return fmt.Sprintf("invalid URL: %s", e.URL)
}

func (e *URLError) Unwrap() error { return e.Err }

// StatusError reports a response whose status code was not 200.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with HTTP status code %d", e.URL, e.StatusCode)
}

// FailureError folds the message and cause of a failure callback into one error.
func FailureError(message string, cause error) error {
	if cause == nil {
		return errors.New(message)
	}
	var se *StatusError
	if errors.As(cause, &se) {
		return cause
	}
	return fmt.Errorf("%s: %w", message, cause)
}
