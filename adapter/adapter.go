// Package adapter publishes recording-saved notifications to downstream
// systems.
//
// The session machine knows nothing about adapters; Dispatcher bridges the
// two. Notification failures are logged and never change a session.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/rehearse/log"
	"github.com/justapithecus/rehearse/session"
	"github.com/justapithecus/rehearse/types"
)

// EventTypeRecordingSaved is the event_type of RecordingSavedEvent.
const EventTypeRecordingSaved = "recording_saved"

// DefaultBackoff is the delay before the first retry; it doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// DefaultPublishTimeout bounds one Dispatcher delivery, retries included.
const DefaultPublishTimeout = 30 * time.Second

// RecordingSavedEvent is the payload published when a recording is saved.
type RecordingSavedEvent struct {
	ContractVersion string           `json:"contract_version"`
	EventType       string           `json:"event_type"`
	SessionID       string           `json:"session_id"`
	QuestionID      string           `json:"question_id"`
	Difficulty      types.Difficulty `json:"difficulty,omitempty"`
	RecordingID     string           `json:"recording_id"`
	Chunks          int              `json:"chunks"`
	Bytes           int64            `json:"bytes"`
	SaveAttempts    int              `json:"save_attempts"`
	DurationMs      int64            `json:"duration_ms"`
	Timestamp       string           `json:"timestamp"` // RFC 3339
}

// NewRecordingSavedEvent builds the event for a transition into saved.
// ok is false for any other transition.
func NewRecordingSavedEvent(tr session.Transition) (event *RecordingSavedEvent, ok bool) {
	if tr.To != types.StateSaved {
		return nil, false
	}
	event = &RecordingSavedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       EventTypeRecordingSaved,
		SessionID:       tr.SessionID,
		QuestionID:      tr.QuestionID,
		Difficulty:      tr.Difficulty,
		RecordingID:     tr.AckID,
		Chunks:          tr.Chunks,
		Bytes:           tr.Bytes,
		SaveAttempts:    tr.SaveAttempts,
		Timestamp:       tr.At.UTC().Format(time.RFC3339),
	}
	if !tr.StartedAt.IsZero() {
		event.DurationMs = tr.At.Sub(tr.StartedAt).Milliseconds()
	}
	return event, true
}

// Adapter publishes recording-saved events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation and
	// deadlines.
	Publish(ctx context.Context, event *RecordingSavedEvent) error

	// Close releases adapter resources.
	Close() error
}

// dispatchQueueSize bounds the saved events awaiting delivery. Observe
// blocks once it is full.
const dispatchQueueSize = 16

// Dispatcher publishes saved recordings through an Adapter from its own
// goroutine, in the order they were observed. Session transitions never
// wait on delivery.
type Dispatcher struct {
	ctx     context.Context
	adapter Adapter
	logger  *log.Logger

	mu     sync.Mutex
	closed bool
	queue  chan queuedEvent
	done   chan struct{}
}

type queuedEvent struct {
	event *RecordingSavedEvent
	meta  types.SessionMeta
}

// NewDispatcher starts delivering to a. Each delivery is bounded by
// DefaultPublishTimeout and derives from ctx.
func NewDispatcher(ctx context.Context, a Adapter, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	d := &Dispatcher{
		ctx:     ctx,
		adapter: a,
		logger:  logger,
		queue:   make(chan queuedEvent, dispatchQueueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Observe is a session.Observer. It queues the event of a transition into
// saved and ignores every other transition.
func (d *Dispatcher) Observe(tr session.Transition) {
	event, ok := NewRecordingSavedEvent(tr)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.With(tr.Meta()).Warn("recording notification dropped after close", map[string]any{
			"recording_id": event.RecordingID,
		})
		return
	}
	d.queue <- queuedEvent{event: event, meta: tr.Meta()}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for q := range d.queue {
		d.publish(q)
	}
}

func (d *Dispatcher) publish(q queuedEvent) {
	ctx, cancel := context.WithTimeout(d.ctx, DefaultPublishTimeout)
	defer cancel()
	logger := d.logger.With(q.meta)
	if err := d.adapter.Publish(ctx, q.event); err != nil {
		logger.Warn("recording notification failed", map[string]any{
			"recording_id": q.event.RecordingID,
			"error":        err.Error(),
		})
		return
	}
	logger.Debug("recording notification sent", map[string]any{
		"recording_id": q.event.RecordingID,
	})
}

// Close waits for queued events to be delivered, then closes the adapter.
// It is safe to call more than once.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	return d.adapter.Close()
}

// permanentError marks an attempt failure that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry stops without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls attempt once plus up to retries more times, doubling the
// delay from backoff between attempts. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, backoff time.Duration, attempt func(context.Context) error) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff << (i - 1)):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: non-retriable error: %w", name, perm.err)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
