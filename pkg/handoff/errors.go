package handoff

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failures visible to the originator. Match them
// with errors.Is; the concrete value is always an *Error.
var (
	// ErrBatchTimeout is returned when polling exhausted its iteration bound.
	ErrBatchTimeout = errors.New("batch timeout")

	// ErrHandoffCorruption is returned when results are absent, unparseable,
	// or of the wrong length once polling has succeeded.
	ErrHandoffCorruption = errors.New("handoff corruption")

	// ErrLaunchFailed is returned when the dispatcher process could not start.
	ErrLaunchFailed = errors.New("dispatcher launch failed")
)

// Kind classifies a handoff failure.
type Kind string

const (
	// KindBatchTimeout maps to ErrBatchTimeout.
	KindBatchTimeout Kind = "batch_timeout"

	// KindCorruption maps to ErrHandoffCorruption.
	KindCorruption Kind = "corruption"

	// KindLaunch maps to ErrLaunchFailed.
	KindLaunch Kind = "launch"
)

// Error is a handoff failure with the location and protocol state it
// happened in.
type Error struct {
	Kind    Kind
	State   State
	Path    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("handoff %s in state %s: %s", e.Kind, e.State, e.Message)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the error's Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBatchTimeout:
		return e.Kind == KindBatchTimeout
	case ErrHandoffCorruption:
		return e.Kind == KindCorruption
	case ErrLaunchFailed:
		return e.Kind == KindLaunch
	default:
		return false
	}
}

func corruption(state State, path, message string, err error) *Error {
	return &Error{Kind: KindCorruption, State: state, Path: path, Message: message, Err: err}
}
