package session

import (
	"time"

	"github.com/justapithecus/rehearse/types"
)

// Event names a session state machine input.
type Event string

// Session events.
const (
	EventSelectQuestion Event = "select_question"
	EventAcquireOK      Event = "acquire_ok"
	EventAcquireDenied  Event = "acquire_denied"
	EventStartRecording Event = "start_recording"
	EventStopRecording  Event = "stop_recording"
	EventSave           Event = "save"
	EventUploadOK       Event = "upload_ok"
	EventUploadFailed   Event = "upload_failed"
	EventEngineFailure  Event = "engine_failure"
	EventEngineMisuse   Event = "engine_misuse"
	EventCancel         Event = "cancel"
)

// Transition is published to observers for every state change.
type Transition struct {
	SessionID  string
	QuestionID string
	Difficulty types.Difficulty
	From       types.State
	To         types.State
	Event      Event
	Reason     types.FailureReason
	Err        error
	At         time.Time

	// Recording totals at the time of the transition.
	Chunks       int
	Bytes        int64
	SaveAttempts int
	StartedAt    time.Time
	// AckID is set on the transition to saved.
	AckID string
}

// Outcome reports whether the transition ended the session and how.
// Cancels from a terminal state do not end a session; it already ended.
func (t Transition) Outcome() (types.Outcome, types.FailureReason, bool) {
	switch {
	case t.To == types.StateSaved:
		return types.OutcomeSaved, types.ReasonNone, true
	case t.To == types.StateFailed:
		return types.OutcomeFailed, t.Reason, true
	case t.Event == EventEngineMisuse:
		return types.OutcomeFailed, types.ReasonEngineMisuse, true
	case t.Event == EventCancel && !t.From.IsTerminal():
		return types.OutcomeCancelled, types.ReasonNone, true
	}
	return "", types.ReasonNone, false
}

// Meta returns the session identity carried by the transition.
func (t Transition) Meta() types.SessionMeta {
	return types.SessionMeta{SessionID: t.SessionID, QuestionID: t.QuestionID, Difficulty: t.Difficulty}
}

// Observer receives transitions in order. Observers run outside the
// machine lock and may call Snapshot, but must not call transition methods.
type Observer func(Transition)
