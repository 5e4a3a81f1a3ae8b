package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/justapithecus/rehearse/metrics"
	"github.com/justapithecus/rehearse/session"
	"github.com/justapithecus/rehearse/types"
)

// RecordKind discriminator values. record_kind is also a partition key.
const (
	RecordKindSession = "session"
	RecordKindMetrics = "metrics"
)

// dayFormat is the layout of the day partition key.
const dayFormat = "2006-01-02"

// SessionRecord is the storage format for one ended session.
type SessionRecord struct {
	// Record discriminator
	RecordKind      string `json:"record_kind"`
	ContractVersion string `json:"contract_version"`

	// Session identity
	SessionID  string           `json:"session_id"`
	QuestionID string           `json:"question_id"`
	Difficulty types.Difficulty `json:"difficulty,omitempty"`

	// Outcome
	Outcome types.Outcome       `json:"outcome"`
	Reason  types.FailureReason `json:"reason,omitempty"`
	Error   string              `json:"error,omitempty"`
	AckID   string              `json:"ack_id,omitempty"`

	// Recording totals
	Chunks       int   `json:"chunks"`
	Bytes        int64 `json:"bytes"`
	SaveAttempts int   `json:"save_attempts"`

	// Timing (RFC3339Nano, UTC)
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at"`
	DurationMS int64  `json:"duration_ms"`

	// Partition key
	Day string `json:"day"`
}

// MetricsRecord is the storage format for a metrics snapshot.
type MetricsRecord struct {
	RecordKind      string `json:"record_kind"`
	ContractVersion string `json:"contract_version"`
	Ts              string `json:"ts"`

	metrics.Snapshot

	// Partition key
	Day string `json:"day"`
}

// SessionRecordFrom builds the record for a transition that ended a
// session. ok is false for transitions that did not.
func SessionRecordFrom(tr session.Transition) (rec SessionRecord, ok bool) {
	outcome, reason, ended := tr.Outcome()
	if !ended {
		return SessionRecord{}, false
	}

	endedAt := tr.At.UTC()
	started := tr.StartedAt.UTC()
	rec = SessionRecord{
		RecordKind:      RecordKindSession,
		ContractVersion: types.ContractVersion,
		SessionID:       tr.SessionID,
		QuestionID:      tr.QuestionID,
		Difficulty:      tr.Difficulty,
		Outcome:         outcome,
		Reason:          reason,
		AckID:           tr.AckID,
		Chunks:          tr.Chunks,
		Bytes:           tr.Bytes,
		SaveAttempts:    tr.SaveAttempts,
		StartedAt:       started.Format(time.RFC3339Nano),
		EndedAt:         endedAt.Format(time.RFC3339Nano),
		Day:             endedAt.Format(dayFormat),
	}
	if !tr.StartedAt.IsZero() {
		rec.DurationMS = endedAt.Sub(started).Milliseconds()
	}
	if tr.Err != nil {
		rec.Error = tr.Err.Error()
	}
	return rec, true
}

// newMetricsRecord builds the record for snap taken at at.
func newMetricsRecord(snap metrics.Snapshot, at time.Time) MetricsRecord {
	at = at.UTC()
	return MetricsRecord{
		RecordKind:      RecordKindMetrics,
		ContractVersion: types.ContractVersion,
		Ts:              at.Format(time.RFC3339Nano),
		Snapshot:        snap,
		Day:             at.Format(dayFormat),
	}
}

// toRecordMap converts a record struct to the map form Lode's HiveLayout
// requires, using the struct's JSON field names.
func toRecordMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return m, nil
}

// fromRecordMap decodes a stored record map into v.
func fromRecordMap(m map[string]any, v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
