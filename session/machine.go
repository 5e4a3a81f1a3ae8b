// Package session implements the interview recording session state machine.
//
// A Machine mediates between the device gateway, the recording engine, the
// chunk buffer and the uploader. Transitions are serialized by the
// machine's lock. Device acquisition and upload run with the lock released;
// when they return, the machine checks that the session was not cancelled
// or replaced in the meantime and discards the late result if it was.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/rehearse/buffer"
	"github.com/justapithecus/rehearse/device"
	"github.com/justapithecus/rehearse/engine"
	"github.com/justapithecus/rehearse/log"
	"github.com/justapithecus/rehearse/metrics"
	"github.com/justapithecus/rehearse/types"
	"github.com/justapithecus/rehearse/upload"
)

// Config wires a Machine to its collaborators.
type Config struct {
	Gateway  device.Gateway
	Engine   engine.Engine
	Uploader upload.Uploader

	// Logger receives one entry per transition. Defaults to a no-op logger.
	Logger *log.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
	// Now defaults to time.Now.
	Now func() time.Time
	// NewID generates session IDs. Defaults to random UUIDs.
	NewID func() string
}

// Snapshot is an inspectable view of the machine.
type Snapshot struct {
	State      types.State         `json:"state"`
	Reason     types.FailureReason `json:"reason,omitempty"`
	Message    string              `json:"message,omitempty"`
	LastError  string              `json:"last_error,omitempty"`
	SessionID  string              `json:"session_id,omitempty"`
	QuestionID string              `json:"question_id,omitempty"`
	Difficulty types.Difficulty    `json:"difficulty,omitempty"`

	BufferedChunks int         `json:"buffered_chunks"`
	BufferedBytes  int64       `json:"buffered_bytes"`
	HoldsStream    bool        `json:"holds_stream"`
	SaveAttempts   int         `json:"save_attempts"`
	StartedAt      time.Time   `json:"started_at,omitzero"`
	Ack            *upload.Ack `json:"ack,omitempty"`
}

// Machine is the session state machine. One session is active at a time.
type Machine struct {
	gateway  device.Gateway
	engine   engine.Engine
	uploader upload.Uploader
	logger   *log.Logger
	metrics  *metrics.Collector
	now      func() time.Time
	newID    func() string

	mu        sync.Mutex
	state     types.State
	reason    types.FailureReason
	message   string
	lastErr   error
	meta      types.SessionMeta
	slog      *log.Logger
	gen       uint64
	stream    *device.Stream
	handle    *engine.Handle
	capture   *capture
	buf       *buffer.ChunkBuffer
	pending   []*types.Chunk
	attempts  int
	ack       *upload.Ack
	startedAt time.Time
	outbox    []Transition
	observers []Observer

	// pubMu orders observer delivery across lock holders.
	pubMu sync.Mutex
}

// NewMachine creates an idle machine.
func NewMachine(config Config) (*Machine, error) {
	if config.Gateway == nil || config.Engine == nil || config.Uploader == nil {
		return nil, errors.New("session: gateway, engine and uploader are required")
	}
	m := &Machine{
		gateway:  config.Gateway,
		engine:   config.Engine,
		uploader: config.Uploader,
		logger:   config.Logger,
		metrics:  config.Metrics,
		now:      config.Now,
		newID:    config.NewID,
		state:    types.StateIdle,
		buf:      buffer.New(),
	}
	if m.logger == nil {
		m.logger = log.Nop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	m.slog = m.logger
	return m, nil
}

// Subscribe registers an observer for future transitions.
func (m *Machine) Subscribe(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// SelectQuestion starts a new session for q and acquires the devices.
// It blocks until acquisition finishes. Accepted only from idle, saved or
// failed; otherwise ErrSessionBusy is returned and the session is untouched.
func (m *Machine) SelectQuestion(ctx context.Context, q types.Question) error {
	if q.ID == "" {
		return errors.New("select question: question id is required")
	}

	m.mu.Lock()
	if !m.state.AcceptsSelection() {
		err := fmt.Errorf("%w: session %s is %s", ErrSessionBusy, m.meta.SessionID, m.state)
		m.unlock()
		return err
	}

	m.resetLocked()
	m.gen++
	gen := m.gen
	m.meta = types.SessionMeta{SessionID: m.newID(), QuestionID: q.ID, Difficulty: q.Difficulty}
	m.slog = m.logger.With(m.meta)
	m.startedAt = m.now()
	m.metrics.IncSessionStarted()
	m.transition(types.StateAcquiringDevice, EventSelectQuestion, nil)
	m.unlock()

	stream, err := m.gateway.Acquire(ctx)

	m.mu.Lock()
	if m.gen != gen || m.state != types.StateAcquiringDevice {
		m.unlock()
		if stream != nil {
			_ = m.gateway.Release(stream)
		}
		return ErrCancelled
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			m.cancelLocked()
			m.unlock()
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		m.reason = types.ReasonDeviceDenied
		m.message = MessageDeviceDenied
		m.lastErr = err
		m.transition(types.StateFailed, EventAcquireDenied, err)
		m.unlock()
		return fmt.Errorf("acquire device: %w", err)
	}

	m.stream = stream
	m.transition(types.StateLive, EventAcquireOK, nil)
	m.unlock()
	return nil
}

// StartRecording starts the engine on the live stream.
func (m *Machine) StartRecording(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlock()

	if m.state != types.StateLive {
		return &TransitionError{Event: EventStartRecording, State: m.state}
	}

	c := &capture{open: true, buf: m.buf, metrics: m.metrics}
	handle, err := m.engine.Start(ctx, m.stream, c.sink)
	if err != nil {
		return m.engineFaultLocked(err)
	}

	m.handle = handle
	m.capture = c
	m.transition(types.StateRecording, EventStartRecording, nil)
	return nil
}

// StopRecording stops the engine, which flushes the final chunk, and
// releases the devices.
func (m *Machine) StopRecording() error {
	m.mu.Lock()
	defer m.unlock()

	if m.state != types.StateRecording {
		return &TransitionError{Event: EventStopRecording, State: m.state}
	}

	err := m.engine.Stop(m.handle)
	m.handle = nil
	captureErr := m.capture.close()
	m.capture = nil
	m.releaseLocked()

	if err != nil {
		return m.engineFaultLocked(err)
	}
	if captureErr != nil {
		return m.engineFaultLocked(fmt.Errorf("buffer chunk: %w", captureErr))
	}

	m.transition(types.StateStopped, EventStopRecording, nil)
	return nil
}

// Save uploads the recording. It blocks until the upload finishes and the
// resulting transition has been delivered to observers. On failure the
// session returns to stopped with its chunks retained, so Save can be
// called again without recording anew. A recording without media bytes is
// never submitted.
func (m *Machine) Save(ctx context.Context) (*upload.Ack, error) {
	m.mu.Lock()
	if m.state != types.StateStopped {
		err := &TransitionError{Event: EventSave, State: m.state}
		m.unlock()
		return nil, err
	}
	if len(m.pending) == 0 {
		m.pending = m.buf.DrainAll()
	}
	if _, size := m.bufferedLocked(); size == 0 {
		m.unlock()
		return nil, ErrEmptyRecording
	}

	chunks := m.pending
	questionID := m.meta.QuestionID
	gen := m.gen
	m.attempts++
	m.message = ""
	m.transition(types.StateUploading, EventSave, nil)
	m.unlock()

	ack, err := m.uploader.Submit(ctx, questionID, chunks)

	m.mu.Lock()
	defer m.unlock()

	if m.gen != gen || m.state != types.StateUploading {
		return nil, ErrCancelled
	}

	if err != nil {
		m.message = MessageUploadFailed
		m.lastErr = err
		m.metrics.IncUploadFailure()
		m.transition(types.StateStopped, EventUploadFailed, err)
		return nil, fmt.Errorf("save recording: %w", err)
	}

	m.metrics.IncUploadSuccess()
	m.ack = ack
	m.transition(types.StateSaved, EventUploadOK, nil)
	m.pending = nil
	m.buf.Clear()
	return ack, nil
}

// Cancel abandons the session from any state: the devices are released,
// the buffer is cleared and the machine returns to idle. An acquire or
// upload in flight is overtaken; its caller receives ErrCancelled.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.unlock()
	m.cancelLocked()
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	chunks, bytes := m.bufferedLocked()
	s := Snapshot{
		State:          m.state,
		Reason:         m.reason,
		Message:        m.message,
		SessionID:      m.meta.SessionID,
		QuestionID:     m.meta.QuestionID,
		Difficulty:     m.meta.Difficulty,
		BufferedChunks: chunks,
		BufferedBytes:  bytes,
		HoldsStream:    m.stream != nil,
		SaveAttempts:   m.attempts,
		StartedAt:      m.startedAt,
		Ack:            m.ack,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

func (m *Machine) cancelLocked() {
	if m.state == types.StateIdle {
		return
	}
	m.gen++

	if m.capture != nil {
		_ = m.capture.close()
		m.capture = nil
	}
	if m.handle != nil {
		if err := m.engine.Stop(m.handle); err != nil {
			m.slog.Warn("engine stop on cancel failed", map[string]any{"error": err.Error()})
		}
		m.handle = nil
	}
	m.releaseLocked()

	m.transition(types.StateIdle, EventCancel, nil)
	m.resetLocked()
}

// engineFaultLocked handles an engine error: the device is released, the
// buffer cleared, and the session reset to idle on misuse or failed
// otherwise.
func (m *Machine) engineFaultLocked(err error) error {
	if m.capture != nil {
		_ = m.capture.close()
		m.capture = nil
	}
	m.handle = nil
	m.releaseLocked()
	m.lastErr = err

	if errors.Is(err, engine.ErrEngineMisuse) {
		m.message = MessageEngineMisuse
		m.transition(types.StateIdle, EventEngineMisuse, err)
		m.buf.Clear()
		m.pending = nil
		return err
	}

	m.reason = types.ReasonEngineFailure
	m.message = MessageEngineFailure
	m.transition(types.StateFailed, EventEngineFailure, err)
	m.buf.Clear()
	m.pending = nil
	return fmt.Errorf("recording engine: %w", err)
}

// releaseLocked releases the stream, if held.
func (m *Machine) releaseLocked() {
	if m.stream == nil {
		return
	}
	if err := m.gateway.Release(m.stream); err != nil {
		m.slog.Warn("device release failed", map[string]any{"error": err.Error()})
	}
	m.stream = nil
}

// resetLocked clears per-session data. The state is left as is.
func (m *Machine) resetLocked() {
	m.buf.Clear()
	m.pending = nil
	m.ack = nil
	m.attempts = 0
	m.reason = types.ReasonNone
	m.message = ""
	m.lastErr = nil
}

func (m *Machine) bufferedLocked() (int, int64) {
	stats := m.buf.Stats()
	chunks, bytes := int(stats.Chunks), stats.Bytes
	for _, c := range m.pending {
		chunks++
		bytes += c.Size()
	}
	return chunks, bytes
}

// transition moves to state to and queues the transition for observers.
func (m *Machine) transition(to types.State, event Event, err error) {
	chunks, bytes := m.bufferedLocked()
	tr := Transition{
		SessionID:    m.meta.SessionID,
		QuestionID:   m.meta.QuestionID,
		Difficulty:   m.meta.Difficulty,
		From:         m.state,
		To:           to,
		Event:        event,
		Err:          err,
		At:           m.now(),
		Chunks:       chunks,
		Bytes:        bytes,
		SaveAttempts: m.attempts,
		StartedAt:    m.startedAt,
	}
	if to == types.StateFailed {
		tr.Reason = m.reason
	}
	if to == types.StateSaved && m.ack != nil {
		tr.AckID = m.ack.ID
	}
	m.state = to
	m.outbox = append(m.outbox, tr)
	m.count(tr)

	fields := map[string]any{
		"from":  string(tr.From),
		"to":    string(tr.To),
		"event": string(tr.Event),
	}
	if err != nil {
		fields["error"] = err.Error()
		m.slog.Warn("session transition", fields)
		return
	}
	m.slog.Info("session transition", fields)
}

func (m *Machine) count(tr Transition) {
	outcome, reason, ended := tr.Outcome()
	if !ended {
		return
	}
	switch outcome {
	case types.OutcomeSaved:
		m.metrics.IncSessionSaved()
	case types.OutcomeCancelled:
		m.metrics.IncSessionCancelled()
	case types.OutcomeFailed:
		m.metrics.IncSessionFailed()
		switch reason {
		case types.ReasonDeviceDenied:
			m.metrics.IncDeviceDenied()
		case types.ReasonEngineFailure:
			m.metrics.IncEngineFailure()
		case types.ReasonEngineMisuse:
			m.metrics.IncEngineMisuse()
		}
	}
}

// unlock releases the machine lock and delivers queued transitions.
func (m *Machine) unlock() {
	m.mu.Unlock()
	m.flush()
}

// flush delivers the outbox in queue order. Deliveries are serialized by
// pubMu, which is never acquired while holding mu.
func (m *Machine) flush() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	pending := m.outbox
	m.outbox = nil
	observers := m.observers
	m.mu.Unlock()

	for _, tr := range pending {
		for _, obs := range observers {
			obs(tr)
		}
	}
}

// capture is the engine sink of one recording. Chunks arriving after it is
// closed are dropped.
type capture struct {
	mu      sync.Mutex
	open    bool
	buf     *buffer.ChunkBuffer
	metrics *metrics.Collector
	err     error
}

func (c *capture) sink(chunk *types.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.err != nil {
		return
	}
	if err := c.buf.Append(chunk); err != nil {
		c.err = err
		return
	}
	c.metrics.AddRecorded(1, chunk.Size())
}

// close stops accepting chunks and returns the first append error.
func (c *capture) close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return c.err
}
