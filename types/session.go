//nolint:revive // types is a common Go package naming convention
package types

// State is the lifecycle state of a recording session.
type State string

// Session states.
const (
	StateIdle            State = "idle"
	StateAcquiringDevice State = "acquiring_device"
	StateLive            State = "live"
	StateRecording       State = "recording"
	StateStopped         State = "stopped"
	StateUploading       State = "uploading"
	StateSaved           State = "saved"
	StateFailed          State = "failed"
)

// IsTerminal returns true for states that end a session.
func (s State) IsTerminal() bool {
	return s == StateSaved || s == StateFailed
}

// AcceptsSelection returns true if a new question may be selected.
func (s State) AcceptsSelection() bool {
	return s == StateIdle || s.IsTerminal()
}

// FailureReason qualifies StateFailed.
type FailureReason string

// Failure reasons.
const (
	ReasonNone          FailureReason = ""
	ReasonDeviceDenied  FailureReason = "device_denied"
	ReasonEngineFailure FailureReason = "engine_failure"
	// ReasonEngineMisuse is recorded for sessions reset to idle after an
	// out-of-order engine call. StateFailed never carries it.
	ReasonEngineMisuse FailureReason = "engine_misuse"
)

// Outcome is how a session ended, as recorded in the journal.
type Outcome string

// Session outcomes.
const (
	OutcomeSaved     Outcome = "saved"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// SessionMeta identifies a session for logs, journal records and
// notifications.
type SessionMeta struct {
	// SessionID is unique per selected question.
	SessionID string
	// QuestionID is the question being answered.
	QuestionID string
	// Difficulty is the question difficulty, if known.
	Difficulty Difficulty
}
