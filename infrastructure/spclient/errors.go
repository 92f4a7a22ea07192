package spclient

import "fmt"

// EnumerationError annotates a failed enumeration with the number of items
// already yielded, so callers building a report can keep partial progress.
type EnumerationError struct {
	Yielded int
	Err     error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumeration failed after %d items: %v", e.Yielded, e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// StatusError is returned when the service answers with an unexpected HTTP
// status that is not a throttling signal.
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.Endpoint)
}
