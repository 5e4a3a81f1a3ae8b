package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/rehearse/device"
	"github.com/justapithecus/rehearse/engine"
	"github.com/justapithecus/rehearse/metrics"
	"github.com/justapithecus/rehearse/types"
	"github.com/justapithecus/rehearse/upload"
)

var easyQuestion = types.Question{ID: "q-easy-1", Prompt: "Tell me about yourself.", Difficulty: types.DifficultyEasy}

type harness struct {
	m        *Machine
	gateway  *fakeGateway
	engine   *fakeEngine
	uploader *fakeUploader
	metrics  *metrics.Collector

	mu          sync.Mutex
	transitions []Transition
}

func newHarness(t *testing.T, uploadResults ...error) *harness {
	t.Helper()
	h := &harness{
		gateway:  newFakeGateway(),
		engine:   &fakeEngine{},
		uploader: newFakeUploader(uploadResults...),
		metrics:  metrics.NewCollector("fake", "fake", "memory"),
	}
	var n int
	m, err := NewMachine(Config{
		Gateway:  h.gateway,
		Engine:   h.engine,
		Uploader: h.uploader,
		Metrics:  h.metrics,
		NewID: func() string {
			n++
			return fmt.Sprintf("session-%d", n)
		},
	})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.Subscribe(func(tr Transition) {
		h.mu.Lock()
		h.transitions = append(h.transitions, tr)
		h.mu.Unlock()
	})
	h.m = m
	return h
}

func (h *harness) states() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.transitions))
	for i, tr := range h.transitions {
		out[i] = fmt.Sprintf("%s>%s", tr.From, tr.To)
	}
	return out
}

func (h *harness) last() Transition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transitions[len(h.transitions)-1]
}

// toLive selects easyQuestion and expects live.
func (h *harness) toLive(t *testing.T) {
	t.Helper()
	if err := h.m.SelectQuestion(t.Context(), easyQuestion); err != nil {
		t.Fatalf("SelectQuestion: %v", err)
	}
	h.expectState(t, types.StateLive)
}

func (h *harness) toRecording(t *testing.T) {
	t.Helper()
	h.toLive(t)
	if err := h.m.StartRecording(t.Context()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	h.expectState(t, types.StateRecording)
}

func (h *harness) toStopped(t *testing.T, sizes ...int) []*types.Chunk {
	t.Helper()
	h.toRecording(t)
	chunks := h.engine.emit(sizes...)
	if err := h.m.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	h.expectState(t, types.StateStopped)
	return chunks
}

func (h *harness) expectState(t *testing.T, want types.State) {
	t.Helper()
	if got := h.m.Snapshot().State; got != want {
		t.Fatalf("state = %s, want %s", got, want)
	}
}

func (h *harness) expectCleanIdle(t *testing.T) {
	t.Helper()
	snap := h.m.Snapshot()
	if snap.State != types.StateIdle {
		t.Errorf("state = %s, want idle", snap.State)
	}
	if snap.BufferedChunks != 0 || snap.BufferedBytes != 0 {
		t.Errorf("buffer not empty: %d chunks, %d bytes", snap.BufferedChunks, snap.BufferedBytes)
	}
	if snap.HoldsStream {
		t.Error("machine still holds a stream")
	}
	if snap.Ack != nil {
		t.Error("ack not discarded")
	}
	if !h.gateway.allReleased() {
		t.Error("a device stream was not released")
	}
}

func TestMachine_HappyPath(t *testing.T) {
	h := newHarness(t)

	emitted := h.toStopped(t, 10, 20, 15)

	if !h.gateway.allReleased() {
		t.Error("device not released after stop")
	}
	if snap := h.m.Snapshot(); snap.BufferedChunks != 3 || snap.BufferedBytes != 45 || snap.HoldsStream {
		t.Errorf("stopped snapshot = %+v", snap)
	}

	ack, err := h.m.Save(t.Context())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	h.expectState(t, types.StateSaved)

	if ack.SizeBytes != 45 || ack.Chunks != 3 {
		t.Errorf("ack = %+v, want 45 bytes / 3 chunks", ack)
	}

	if len(h.uploader.received) != 1 {
		t.Fatalf("uploader called %d times, want 1", len(h.uploader.received))
	}
	artifact, err := upload.Assemble(h.uploader.received[0], "")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := append(append(append([]byte(nil), emitted[0].Data...), emitted[1].Data...), emitted[2].Data...)
	if artifact.SizeBytes() != 45 || !bytes.Equal(artifact.Data, want) {
		t.Errorf("artifact is not chunk1 || chunk2 || chunk3 (%d bytes)", artifact.SizeBytes())
	}

	snap := h.m.Snapshot()
	if snap.BufferedChunks != 0 {
		t.Errorf("buffer not cleared after save: %d chunks", snap.BufferedChunks)
	}
	if snap.QuestionID != easyQuestion.ID || snap.Difficulty != types.DifficultyEasy {
		t.Errorf("snapshot identity = %q/%q", snap.QuestionID, snap.Difficulty)
	}
	if snap.SaveAttempts != 1 {
		t.Errorf("SaveAttempts = %d, want 1", snap.SaveAttempts)
	}

	wantStates := []string{
		"idle>acquiring_device",
		"acquiring_device>live",
		"live>recording",
		"recording>stopped",
		"stopped>uploading",
		"uploading>saved",
	}
	if got := h.states(); fmt.Sprint(got) != fmt.Sprint(wantStates) {
		t.Errorf("transitions = %v\nwant %v", got, wantStates)
	}

	saved := h.last()
	if saved.SessionID != "session-1" || saved.AckID != "rec-q-easy-1" || saved.Bytes != 45 {
		t.Errorf("saved transition = %+v", saved)
	}
	if outcome, _, ended := saved.Outcome(); !ended || outcome != types.OutcomeSaved {
		t.Errorf("Outcome() = %v, %v", outcome, ended)
	}

	ms := h.metrics.Snapshot()
	if ms.SessionsStarted != 1 || ms.SessionsSaved != 1 || ms.UploadSuccess != 1 || ms.ChunksRecorded != 3 || ms.BytesRecorded != 45 {
		t.Errorf("metrics = %+v", ms)
	}
}

func TestMachine_EngineFlushOnStop(t *testing.T) {
	h := newHarness(t)
	h.engine.flush = []*types.Chunk{{Seq: 2, IsLast: true, Data: []byte("tail")}}

	h.toRecording(t)
	h.engine.emit(4)
	if err := h.m.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	if snap := h.m.Snapshot(); snap.BufferedChunks != 2 || snap.BufferedBytes != 8 {
		t.Errorf("final chunk not buffered: %+v", snap)
	}
}

func TestMachine_LateChunksDropped(t *testing.T) {
	h := newHarness(t)
	h.toStopped(t, 5)

	// The old sink must not feed the buffer after stop.
	h.engine.emit(7)

	if snap := h.m.Snapshot(); snap.BufferedChunks != 1 || snap.BufferedBytes != 5 {
		t.Errorf("late chunk buffered: %+v", snap)
	}
}

func TestMachine_DeviceDeniedThenReselect(t *testing.T) {
	h := newHarness(t)
	h.gateway.deny = &device.DeniedError{Kind: device.TrackVideo, Path: "/dev/video0", Err: errors.New("permission denied")}

	err := h.m.SelectQuestion(t.Context(), easyQuestion)
	if !errors.Is(err, device.ErrDeviceDenied) {
		t.Fatalf("SelectQuestion = %v, want ErrDeviceDenied", err)
	}

	snap := h.m.Snapshot()
	if snap.State != types.StateFailed || snap.Reason != types.ReasonDeviceDenied {
		t.Fatalf("state = %s(%s), want failed(device_denied)", snap.State, snap.Reason)
	}
	if snap.Message != MessageDeviceDenied {
		t.Errorf("Message = %q", snap.Message)
	}
	if snap.HoldsStream {
		t.Error("stream held after denial")
	}
	firstSession := snap.SessionID

	h.gateway.deny = nil
	h.toLive(t)

	snap = h.m.Snapshot()
	if snap.Reason != types.ReasonNone || snap.Message != "" || snap.LastError != "" {
		t.Errorf("failure not cleared on reselect: %+v", snap)
	}
	if snap.SessionID == firstSession {
		t.Error("reselect reused the session id")
	}

	if err := h.m.StartRecording(t.Context()); err != nil {
		t.Fatalf("StartRecording after reselect: %v", err)
	}

	ms := h.metrics.Snapshot()
	if ms.DeviceDenied != 1 || ms.SessionsFailed != 1 || ms.SessionsStarted != 2 {
		t.Errorf("metrics = %+v", ms)
	}
}

func TestMachine_SelectWhileBusy(t *testing.T) {
	h := newHarness(t)
	h.toRecording(t)
	h.engine.emit(10, 20)
	before := h.m.Snapshot()

	other := types.Question{ID: "q-hard-1", Difficulty: types.DifficultyHard}
	err := h.m.SelectQuestion(t.Context(), other)
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("SelectQuestion while recording = %v, want ErrSessionBusy", err)
	}

	after := h.m.Snapshot()
	if after.State != types.StateRecording || after.SessionID != before.SessionID || after.QuestionID != easyQuestion.ID {
		t.Errorf("session disturbed: before %+v after %+v", before, after)
	}
	if after.BufferedChunks != 2 || !after.HoldsStream {
		t.Errorf("recording disturbed: %+v", after)
	}
	if h.gateway.acquires != 1 {
		t.Errorf("gateway acquired %d times, want 1", h.gateway.acquires)
	}

	// The recording continues normally.
	h.engine.emit(15)
	if err := h.m.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if snap := h.m.Snapshot(); snap.BufferedBytes != 45 {
		t.Errorf("BufferedBytes = %d, want 45", snap.BufferedBytes)
	}
}

func TestMachine_SelectRejectedInEveryActiveState(t *testing.T) {
	setups := map[types.State]func(t *testing.T, h *harness){
		types.StateLive:      func(t *testing.T, h *harness) { h.toLive(t) },
		types.StateRecording: func(t *testing.T, h *harness) { h.toRecording(t) },
		types.StateStopped:   func(t *testing.T, h *harness) { h.toStopped(t, 3) },
	}
	for state, setup := range setups {
		t.Run(string(state), func(t *testing.T) {
			h := newHarness(t)
			setup(t, h)
			if err := h.m.SelectQuestion(t.Context(), easyQuestion); !errors.Is(err, ErrSessionBusy) {
				t.Errorf("SelectQuestion = %v, want ErrSessionBusy", err)
			}
			h.expectState(t, state)
		})
	}
}

func TestMachine_SelectFromSaved(t *testing.T) {
	h := newHarness(t)
	h.toStopped(t, 1)
	if _, err := h.m.Save(t.Context()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	h.toLive(t)
	if snap := h.m.Snapshot(); snap.Ack != nil || snap.SaveAttempts != 0 {
		t.Errorf("previous session leaked into new one: %+v", snap)
	}
}

func TestMachine_CancelFromEveryState(t *testing.T) {
	setups := []struct {
		state types.State
		setup func(t *testing.T, h *harness)
	}{
		{types.StateLive, func(t *testing.T, h *harness) { h.toLive(t) }},
		{types.StateRecording, func(t *testing.T, h *harness) {
			h.toRecording(t)
			h.engine.emit(10, 20)
		}},
		{types.StateStopped, func(t *testing.T, h *harness) { h.toStopped(t, 10, 20, 15) }},
		{types.StateSaved, func(t *testing.T, h *harness) {
			h.toStopped(t, 10)
			if _, err := h.m.Save(t.Context()); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}},
		{types.StateFailed, func(t *testing.T, h *harness) {
			h.gateway.deny = device.ErrDeviceDenied
			_ = h.m.SelectQuestion(t.Context(), easyQuestion)
		}},
	}

	for _, tt := range setups {
		t.Run(string(tt.state), func(t *testing.T) {
			h := newHarness(t)
			tt.setup(t, h)
			h.expectState(t, tt.state)

			h.m.Cancel()
			h.expectCleanIdle(t)

			if tt.state == types.StateRecording && h.engine.active != nil {
				t.Error("engine still running after cancel")
			}

			// Cancel is always safe to repeat.
			h.m.Cancel()
			h.expectCleanIdle(t)
		})
	}
}

func TestMachine_CancelDuringAcquire(t *testing.T) {
	h := newHarness(t)
	h.gateway.gate = make(chan error)

	done := make(chan error, 1)
	go func() {
		done <- h.m.SelectQuestion(context.Background(), easyQuestion)
	}()
	<-h.gateway.started
	h.expectState(t, types.StateAcquiringDevice)

	h.m.Cancel()
	h.expectCleanIdle(t)

	// The late grant is discarded and its stream released at once.
	h.gateway.gate <- nil
	if err := <-done; !errors.Is(err, ErrCancelled) {
		t.Errorf("SelectQuestion = %v, want ErrCancelled", err)
	}
	h.expectCleanIdle(t)
	if len(h.gateway.streams) != 1 {
		t.Fatalf("gateway produced %d streams, want 1", len(h.gateway.streams))
	}

	if ms := h.metrics.Snapshot(); ms.SessionsCancelled != 1 {
		t.Errorf("SessionsCancelled = %d, want 1", ms.SessionsCancelled)
	}
}

func TestMachine_CancelDuringAcquireThenReselect(t *testing.T) {
	h := newHarness(t)
	h.gateway.gate = make(chan error)

	first := make(chan error, 1)
	go func() {
		first <- h.m.SelectQuestion(context.Background(), easyQuestion)
	}()
	<-h.gateway.started
	h.m.Cancel()

	second := make(chan error, 1)
	go func() {
		second <- h.m.SelectQuestion(context.Background(), types.Question{ID: "q2"})
	}()
	<-h.gateway.started

	// Grant both; whichever Acquire receives first, only the current
	// session keeps its stream.
	h.gateway.gate <- nil
	h.gateway.gate <- nil

	if err := <-first; !errors.Is(err, ErrCancelled) {
		t.Errorf("first SelectQuestion = %v, want ErrCancelled", err)
	}
	if err := <-second; err != nil {
		t.Errorf("second SelectQuestion = %v", err)
	}

	snap := h.m.Snapshot()
	if snap.State != types.StateLive || snap.QuestionID != "q2" || !snap.HoldsStream {
		t.Errorf("snapshot = %+v, want live q2", snap)
	}

	var live int
	for _, s := range h.gateway.streams {
		if !s.Released() {
			live++
		}
	}
	if live != 1 {
		t.Errorf("%d unreleased streams, want 1", live)
	}
}

func TestMachine_AcquireContextCancelled(t *testing.T) {
	h := newHarness(t)
	h.gateway.gate = make(chan error)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- h.m.SelectQuestion(ctx, easyQuestion)
	}()
	<-h.gateway.started
	cancel()

	err := <-done
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Errorf("SelectQuestion = %v, want ErrCancelled wrapping context.Canceled", err)
	}
	h.expectCleanIdle(t)
}

func TestMachine_CancelDuringUpload(t *testing.T) {
	h := newHarness(t)
	h.toStopped(t, 10, 20, 15)
	h.uploader.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.m.Save(context.Background())
		done <- err
	}()
	<-h.uploader.started
	h.expectState(t, types.StateUploading)

	h.m.Cancel()
	h.expectCleanIdle(t)

	close(h.uploader.gate)
	if err := <-done; !errors.Is(err, ErrCancelled) {
		t.Errorf("Save = %v, want ErrCancelled", err)
	}
	// The late ack does not resurrect the session.
	h.expectCleanIdle(t)
}

func TestMachine_UploadRetry(t *testing.T) {
	transient := &upload.Error{Kind: upload.KindTransient, QuestionID: easyQuestion.ID, Err: errors.New("connection reset")}
	h := newHarness(t, transient)
	h.toStopped(t, 10, 20, 15)

	_, err := h.m.Save(t.Context())
	var upErr *upload.Error
	if !errors.As(err, &upErr) || !upErr.Retriable() {
		t.Fatalf("Save = %v, want retriable *upload.Error", err)
	}

	snap := h.m.Snapshot()
	if snap.State != types.StateStopped {
		t.Fatalf("state after failed upload = %s, want stopped", snap.State)
	}
	if snap.Message != MessageUploadFailed || snap.LastError == "" {
		t.Errorf("failure not exposed: %+v", snap)
	}
	if snap.BufferedChunks != 3 || snap.BufferedBytes != 45 {
		t.Errorf("chunks not retained: %+v", snap)
	}

	ack, err := h.m.Save(t.Context())
	if err != nil {
		t.Fatalf("retry Save: %v", err)
	}
	h.expectState(t, types.StateSaved)
	if ack.SizeBytes != 45 {
		t.Errorf("retry ack = %+v", ack)
	}

	if len(h.uploader.received) != 2 {
		t.Fatalf("uploader called %d times, want 2", len(h.uploader.received))
	}
	first, second := h.uploader.received[0], h.uploader.received[1]
	if len(first) != len(second) {
		t.Fatalf("retry sent %d chunks, first attempt %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between attempts", i)
		}
	}
	if h.engine.starts != 1 {
		t.Errorf("engine started %d times, want 1", h.engine.starts)
	}
	if snap := h.m.Snapshot(); snap.SaveAttempts != 2 || snap.Message != "" {
		t.Errorf("snapshot after retry = %+v", snap)
	}

	ms := h.metrics.Snapshot()
	if ms.UploadFailure != 1 || ms.UploadSuccess != 1 || ms.SessionsSaved != 1 {
		t.Errorf("metrics = %+v", ms)
	}
}

func TestMachine_EmptySave(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
	}{
		{"no chunks", nil},
		{"zero-byte chunks", []int{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.toStopped(t, tt.sizes...)

			if _, err := h.m.Save(t.Context()); !errors.Is(err, ErrEmptyRecording) {
				t.Errorf("Save = %v, want ErrEmptyRecording", err)
			}
			h.expectState(t, types.StateStopped)
			if h.uploader.calls.Load() != 0 {
				t.Error("empty recording was submitted")
			}
			if snap := h.m.Snapshot(); snap.SaveAttempts != 0 {
				t.Errorf("save attempts = %d, want 0", snap.SaveAttempts)
			}
		})
	}
}

func TestMachine_EngineMisuseResetsToIdle(t *testing.T) {
	t.Run("stop", func(t *testing.T) {
		h := newHarness(t)
		h.toRecording(t)
		h.engine.emit(10)
		h.engine.stopErr = fmt.Errorf("%w: stale handle", engine.ErrEngineMisuse)

		err := h.m.StopRecording()
		if !errors.Is(err, engine.ErrEngineMisuse) {
			t.Fatalf("StopRecording = %v, want ErrEngineMisuse", err)
		}
		h.expectCleanIdle(t)
		if msg := h.m.Snapshot().Message; msg != MessageEngineMisuse {
			t.Errorf("Message = %q", msg)
		}

		outcome, reason, ended := h.last().Outcome()
		if !ended || outcome != types.OutcomeFailed || reason != types.ReasonEngineMisuse {
			t.Errorf("Outcome() = %v/%v/%v", outcome, reason, ended)
		}
		if ms := h.metrics.Snapshot(); ms.EngineMisuse != 1 {
			t.Errorf("EngineMisuse = %d, want 1", ms.EngineMisuse)
		}
	})

	t.Run("start", func(t *testing.T) {
		h := newHarness(t)
		h.toLive(t)
		h.engine.startFn = func() error { return engine.ErrEngineMisuse }

		if err := h.m.StartRecording(t.Context()); !errors.Is(err, engine.ErrEngineMisuse) {
			t.Fatalf("StartRecording = %v, want ErrEngineMisuse", err)
		}
		h.expectCleanIdle(t)

		// The machine is usable again.
		h.engine.startFn = nil
		h.toRecording(t)
	})
}

func TestMachine_EngineFailure(t *testing.T) {
	h := newHarness(t)
	h.toLive(t)
	h.engine.startFn = func() error { return errors.New("ffmpeg: not found") }

	err := h.m.StartRecording(t.Context())
	if err == nil || errors.Is(err, engine.ErrEngineMisuse) {
		t.Fatalf("StartRecording = %v, want engine failure", err)
	}

	snap := h.m.Snapshot()
	if snap.State != types.StateFailed || snap.Reason != types.ReasonEngineFailure {
		t.Errorf("state = %s(%s), want failed(engine_failure)", snap.State, snap.Reason)
	}
	if snap.HoldsStream || !h.gateway.allReleased() {
		t.Error("device not released after engine failure")
	}
	if snap.Message != MessageEngineFailure {
		t.Errorf("Message = %q", snap.Message)
	}
}

func TestMachine_StopFailureClearsBuffer(t *testing.T) {
	h := newHarness(t)
	h.toRecording(t)
	h.engine.emit(10, 20)
	h.engine.stopErr = errors.New("encoder exited: exit status 1")

	if err := h.m.StopRecording(); err == nil {
		t.Fatal("expected error")
	}
	snap := h.m.Snapshot()
	if snap.State != types.StateFailed || snap.BufferedChunks != 0 || snap.HoldsStream {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMachine_InvalidTransitions(t *testing.T) {
	h := newHarness(t)

	if err := h.m.StartRecording(t.Context()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("StartRecording in idle = %v, want ErrInvalidTransition", err)
	}
	if err := h.m.StopRecording(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("StopRecording in idle = %v", err)
	}

	h.toLive(t)
	_, err := h.m.Save(t.Context())
	var trErr *TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("Save in live = %v, want *TransitionError", err)
	}
	if trErr.Event != EventSave || trErr.State != types.StateLive {
		t.Errorf("TransitionError = %+v", trErr)
	}
	h.expectState(t, types.StateLive)

	if err := h.m.SelectQuestion(t.Context(), types.Question{}); err == nil {
		t.Error("expected error for empty question id")
	}
}

func TestMachine_ObserverMayReadSnapshot(t *testing.T) {
	h := newHarness(t)

	var seen []types.State
	h.m.Subscribe(func(tr Transition) {
		seen = append(seen, h.m.Snapshot().State)
	})

	h.toLive(t)
	if len(seen) != 2 {
		t.Fatalf("observer saw %d transitions, want 2", len(seen))
	}
}

func TestMachine_TransitionTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewMachine(Config{
		Gateway:  newFakeGateway(),
		Engine:   &fakeEngine{},
		Uploader: newFakeUploader(),
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}

	var got []Transition
	m.Subscribe(func(tr Transition) { got = append(got, tr) })

	if err := m.SelectQuestion(t.Context(), easyQuestion); err != nil {
		t.Fatalf("SelectQuestion: %v", err)
	}
	for _, tr := range got {
		if !tr.At.Equal(now) || !tr.StartedAt.Equal(now) {
			t.Errorf("transition %s>%s at %v started %v", tr.From, tr.To, tr.At, tr.StartedAt)
		}
		if tr.SessionID == "" {
			t.Error("transition without session id")
		}
	}
}

func TestNewMachine_RequiresCollaborators(t *testing.T) {
	if _, err := NewMachine(Config{}); err == nil {
		t.Error("expected error for missing collaborators")
	}
}
