package dispatch

import (
	"errors"
	"fmt"
)

// FailureClass represents why a single call collapsed to a null page.
type FailureClass string

const (
	// FailureNone marks a successful call.
	FailureNone FailureClass = ""

	// FailureAdmission means the deadline passed while waiting for a limiter slot.
	FailureAdmission FailureClass = "admission"

	// FailureTimeout means the per-call deadline passed during the request.
	FailureTimeout FailureClass = "timeout"

	// FailureNetwork represents connect, write, or read errors.
	FailureNetwork FailureClass = "network"

	// FailureDecode means the body was not valid JSON.
	FailureDecode FailureClass = "decode"
)

// ErrInvalidJSON is returned when a response body is not a JSON document.
var ErrInvalidJSON = errors.New("response body is not valid JSON")

// FetchError describes a per-call failure. It never escapes Dispatch as a
// returned error; it is attached to the Result for logging and metrics.
type FetchError struct {
	URL        string
	Class      FailureClass
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s failed (%s, status %d): %v", e.URL, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s failed (%s): %v", e.URL, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}
