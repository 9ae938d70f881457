package transport

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Send after the channel has closed.
var ErrClosed = errors.New("transcription channel closed")

// Class separates failures before the channel opened from failures of an
// open channel.
type Class string

const (
	ClassInitialConnect Class = "initial_connect_failure"
	ClassMidSession     Class = "mid_session_failure"
)

// Error is a classified channel failure. Unreachable is only meaningful for
// ClassInitialConnect and marks dial-level network failures.
type Error struct {
	Class       Class
	Unreachable bool
	Err         error
}

func (e *Error) Error() string {
	switch {
	case e.Class == ClassInitialConnect && e.Unreachable:
		return fmt.Sprintf("transcription server unreachable: %v", e.Err)
	case e.Class == ClassInitialConnect:
		return fmt.Sprintf("transcription channel handshake failed: %v", e.Err)
	default:
		return fmt.Sprintf("transcription channel failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Label is the metric label for the failure.
func (e *Error) Label() string {
	if e.Class == ClassInitialConnect && e.Unreachable {
		return "server_unreachable"
	}
	return string(e.Class)
}
