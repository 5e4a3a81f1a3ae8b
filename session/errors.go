package session

import (
	"errors"
	"fmt"

	"github.com/justapithecus/rehearse/types"
)

var (
	// ErrSessionBusy is returned by SelectQuestion while a session is
	// acquiring, live, recording, stopped or uploading.
	ErrSessionBusy = errors.New("session busy")

	// ErrInvalidTransition is matched by *TransitionError.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrEmptyRecording is returned by Save when no media bytes were
	// recorded.
	ErrEmptyRecording = errors.New("empty recording")

	// ErrCancelled is returned to the caller of an in-flight acquire or
	// upload that was overtaken by Cancel. It is not a failure.
	ErrCancelled = errors.New("session cancelled")
)

// TransitionError reports an event that is not valid in the current state.
// The state is left untouched.
type TransitionError struct {
	Event Event
	State types.State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s in state %s", ErrInvalidTransition, e.Event, e.State)
}

// Is reports whether target is ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Human-readable failure messages exposed through Snapshot.
const (
	MessageDeviceDenied  = "Failed to access camera"
	MessageEngineFailure = "Failed to record"
	MessageEngineMisuse  = "Recording error, session reset"
	MessageUploadFailed  = "Failed to save recording"
)
