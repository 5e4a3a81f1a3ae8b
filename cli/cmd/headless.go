package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/justapithecus/rehearse/adapter"
	"github.com/justapithecus/rehearse/cli/tui"
	"github.com/justapithecus/rehearse/device"
	"github.com/justapithecus/rehearse/engine"
	"github.com/justapithecus/rehearse/log"
	"github.com/justapithecus/rehearse/session"
	"github.com/justapithecus/rehearse/types"
	"github.com/justapithecus/rehearse/upload"
)

// saveBackoff is the delay before the first headless save retry.
const saveBackoff = time.Second

// questionSource lists questions by difficulty. *api.Client implements it.
type questionSource interface {
	Questions(ctx context.Context, difficulty types.Difficulty) ([]types.Question, error)
}

// findQuestion looks up id among the questions of difficulty, or of every
// difficulty, easiest first, when difficulty is empty.
func findQuestion(ctx context.Context, src questionSource, id string, difficulty types.Difficulty) (types.Question, error) {
	levels := []types.Difficulty{difficulty}
	if difficulty == "" {
		levels = []types.Difficulty{types.DifficultyEasy, types.DifficultyMedium, types.DifficultyHard}
	}
	for _, level := range levels {
		questions, err := src.Questions(ctx, level)
		if err != nil {
			return types.Question{}, fmt.Errorf("list %s questions: %w", level, err)
		}
		if q, ok := types.FindQuestion(questions, id); ok {
			return q, nil
		}
	}
	return types.Question{}, fmt.Errorf("question not found: %s", id)
}

// headlessRun records one answer without a UI: select, record for the
// duration or until stop closes, then save.
type headlessRun struct {
	ctrl        tui.Controller
	question    types.Question
	duration    time.Duration
	saveRetries int
	saveBackoff time.Duration
	stop        <-chan struct{}
	logger      *log.SugaredLogger

	// prompt receives operator hints. Nil disables them.
	prompt io.Writer
}

func (h *headlessRun) run(ctx context.Context) (*upload.Ack, error) {
	if err := h.ctrl.SelectQuestion(ctx, h.question); err != nil {
		return nil, err
	}
	if err := h.ctrl.StartRecording(ctx); err != nil {
		return nil, err
	}
	h.logger.Infof("recording answer to %s", h.question.ID)
	h.hint(h.question.Prompt)
	if h.duration > 0 {
		h.hint(fmt.Sprintf("Recording for %s. Press Ctrl+C to stop early.", h.duration))
	} else {
		h.hint("Recording. Press Ctrl+C to stop.")
	}

	if !h.wait(ctx) {
		h.ctrl.Cancel()
		return nil, fmt.Errorf("%w: %w", session.ErrCancelled, ctx.Err())
	}
	if err := h.ctrl.StopRecording(); err != nil {
		return nil, err
	}

	backoff := h.saveBackoff
	if backoff <= 0 {
		backoff = saveBackoff
	}
	var ack *upload.Ack
	err := adapter.Retry(ctx, "save recording", h.saveRetries, backoff, func(ctx context.Context) error {
		a, err := h.ctrl.Save(ctx)
		if err == nil {
			ack = a
			return nil
		}
		var uerr *upload.Error
		if errors.As(err, &uerr) && uerr.Retriable() {
			h.logger.Warnf("save failed, retrying: %v", err)
			return err
		}
		return adapter.Permanent(err)
	})
	if err != nil {
		// Unsaved recordings are not kept across runs.
		h.ctrl.Cancel()
		return nil, err
	}
	h.logger.Infof("recording saved as %s", ack.ID)
	return ack, nil
}

// wait blocks until the duration elapses or stop closes. It returns false
// when ctx is done first.
func (h *headlessRun) wait(ctx context.Context) bool {
	var elapsed <-chan time.Time
	if h.duration > 0 {
		timer := time.NewTimer(h.duration)
		defer timer.Stop()
		elapsed = timer.C
	}
	select {
	case <-elapsed:
		return true
	case <-h.stop:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *headlessRun) hint(msg string) {
	if h.prompt != nil && msg != "" {
		fmt.Fprintln(h.prompt, msg)
	}
}

// RehearsalResult is the outcome of a headless rehearsal.
type RehearsalResult struct {
	SessionID    string           `json:"session_id,omitempty"`
	QuestionID   string           `json:"question_id"`
	Difficulty   types.Difficulty `json:"difficulty,omitempty"`
	State        types.State      `json:"state"`
	RecordingID  string           `json:"recording_id,omitempty"`
	URL          string           `json:"url,omitempty"`
	Chunks       int              `json:"chunks"`
	Bytes        int64            `json:"bytes"`
	SaveAttempts int              `json:"save_attempts"`
	Error        string           `json:"error,omitempty"`
}

// resultOf summarizes a headless run from the final snapshot. A session
// abandoned after a failure has an idle snapshot, so the question comes
// from q.
func resultOf(snap session.Snapshot, q types.Question, ack *upload.Ack, err error) RehearsalResult {
	res := RehearsalResult{
		SessionID:    snap.SessionID,
		QuestionID:   q.ID,
		Difficulty:   q.Difficulty,
		State:        snap.State,
		Chunks:       snap.BufferedChunks,
		Bytes:        snap.BufferedBytes,
		SaveAttempts: snap.SaveAttempts,
	}
	if ack != nil {
		res.RecordingID = ack.ID
		res.URL = ack.URL
		res.Chunks = ack.Chunks
		res.Bytes = ack.SizeBytes
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// exitCodeFor maps a failed headless run to the process exit code.
func exitCodeFor(err error, snap session.Snapshot) int {
	var uerr *upload.Error
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, device.ErrDeviceDenied), snap.Reason == types.ReasonDeviceDenied:
		return exitDeviceDenied
	case errors.As(err, &uerr):
		return exitUploadFailed
	case errors.Is(err, engine.ErrEngineMisuse),
		errors.Is(err, session.ErrEmptyRecording),
		snap.Reason == types.ReasonEngineFailure:
		return exitEngineFailure
	default:
		return exitUsage
	}
}
