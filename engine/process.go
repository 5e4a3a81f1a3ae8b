package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/rehearse/device"
	"github.com/justapithecus/rehearse/ipc"
	"github.com/justapithecus/rehearse/log"
	"github.com/justapithecus/rehearse/types"
)

// OutputMode selects how the encoder's stdout is cut into chunks.
type OutputMode string

const (
	// ModeRaw cuts the raw encoded byte stream into chunks as it arrives.
	ModeRaw OutputMode = "raw"
	// ModeFramed reads length-prefixed msgpack chunk frames.
	ModeFramed OutputMode = "framed"
)

// ParseOutputMode parses "raw" or "framed". An empty string is raw.
func ParseOutputMode(s string) (OutputMode, error) {
	switch OutputMode(s) {
	case "", ModeRaw:
		return ModeRaw, nil
	case ModeFramed:
		return ModeFramed, nil
	default:
		return "", fmt.Errorf("invalid output mode %q: must be raw or framed", s)
	}
}

// Process defaults.
const (
	DefaultEncoder    = "ffmpeg"
	DefaultChunkBytes = 256 * 1024
	DefaultStopGrace  = 5 * time.Second
)

// stderrTail bounds the encoder diagnostics kept for error messages.
const stderrTail = 4 * 1024

// DefaultOutputArgs encode VP8/Opus WebM to stdout.
var DefaultOutputArgs = []string{
	"-c:v", "libvpx", "-deadline", "realtime", "-b:v", "1M",
	"-c:a", "libopus",
	"-f", "webm", "pipe:1",
}

// Proc is a running encoder process.
type Proc interface {
	// Stdout carries the encoded stream.
	Stdout() io.Reader
	// Stderr carries diagnostics. May return nil.
	Stderr() io.Reader
	// Interrupt asks the encoder to finish and flush.
	Interrupt() error
	// Kill terminates the encoder immediately.
	Kill() error
	// Wait waits for exit. Called after Stdout is drained.
	Wait() error
}

// Launcher starts an encoder process.
type Launcher func(ctx context.Context, name string, args []string) (Proc, error)

// ProcessConfig configures a Process engine.
type ProcessConfig struct {
	// Encoder is the encoder binary (default ffmpeg).
	Encoder string
	// OutputArgs follow the input args. Raw mode defaults to DefaultOutputArgs.
	OutputArgs []string
	// Mode selects raw or framed stdout handling.
	Mode OutputMode
	// ChunkBytes caps the size of a raw chunk.
	ChunkBytes int
	// StopGrace is how long Stop waits after interrupt before killing.
	StopGrace time.Duration
	// Launch starts the encoder. Defaults to ExecLauncher.
	Launch Launcher
	// Logger receives engine diagnostics.
	Logger *log.Logger
}

// Process is an Engine backed by an external encoder process.
// At most one recording runs at a time.
type Process struct {
	config ProcessConfig
	logger *log.Logger

	mu     sync.Mutex
	nextID uint64
	active *recording
}

type recording struct {
	handle   *Handle
	proc     Proc
	done     chan struct{}
	stopping atomic.Bool
	stderr   *tailBuffer
	err      error
}

// NewProcess creates a process engine, filling unset config with defaults.
func NewProcess(config ProcessConfig) *Process {
	if config.Encoder == "" {
		config.Encoder = DefaultEncoder
	}
	if config.Mode == "" {
		config.Mode = ModeRaw
	}
	if config.OutputArgs == nil && config.Mode == ModeRaw {
		config.OutputArgs = DefaultOutputArgs
	}
	if config.ChunkBytes <= 0 {
		config.ChunkBytes = DefaultChunkBytes
	}
	if config.StopGrace <= 0 {
		config.StopGrace = DefaultStopGrace
	}
	if config.Launch == nil {
		config.Launch = ExecLauncher
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Process{config: config, logger: logger}
}

// BuildArgs returns the encoder arguments for stream: one input per track
// followed by output.
func BuildArgs(stream *device.Stream, output []string) ([]string, error) {
	tracks := stream.Tracks()
	if len(tracks) == 0 {
		return nil, errors.New("stream has no tracks")
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	for _, t := range tracks {
		if t.Format != "" {
			args = append(args, "-f", t.Format)
		}
		args = append(args, "-i", t.Source)
	}
	return append(args, output...), nil
}

// Start launches the encoder for stream. The recording outlives ctx; it ends
// on Stop or when the encoder exits.
func (p *Process) Start(ctx context.Context, stream *device.Stream, sink Sink) (*Handle, error) {
	if sink == nil {
		return nil, misuse("start without sink")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		return nil, misuse("start while recording %d is running", p.active.handle.id)
	}
	if stream == nil || stream.Released() {
		return nil, errors.New("start: stream is not live")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args, err := BuildArgs(stream, p.config.OutputArgs)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	proc, err := p.config.Launch(context.WithoutCancel(ctx), p.config.Encoder, args)
	if err != nil {
		return nil, fmt.Errorf("start encoder: %w", err)
	}

	p.nextID++
	rec := &recording{
		handle: &Handle{id: p.nextID},
		proc:   proc,
		done:   make(chan struct{}),
		stderr: &tailBuffer{max: stderrTail},
	}
	p.active = rec

	p.logger.Debug("encoder started", map[string]any{
		"recording": rec.handle.id,
		"encoder":   p.config.Encoder,
		"mode":      string(p.config.Mode),
	})

	go p.run(rec, sink)
	return rec.handle, nil
}

// Stop interrupts the encoder, waits for its output to drain and returns
// once the final chunk was delivered. The encoder is killed if it has not
// finished within StopGrace.
func (p *Process) Stop(handle *Handle) error {
	p.mu.Lock()
	rec := p.active
	switch {
	case rec == nil && handle == nil:
		p.mu.Unlock()
		return misuse("stop without start")
	case rec == nil || handle != rec.handle:
		p.mu.Unlock()
		return misuse("stop of stale handle %d", handle.ID())
	}
	p.mu.Unlock()

	if !rec.stopping.CompareAndSwap(false, true) {
		return misuse("stop of recording %d already in progress", rec.handle.id)
	}

	if err := rec.proc.Interrupt(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Debug("encoder interrupt failed", map[string]any{"error": err.Error()})
	}

	timer := time.NewTimer(p.config.StopGrace)
	defer timer.Stop()

	select {
	case <-rec.done:
	case <-timer.C:
		p.logger.Warn("encoder did not finish within grace period, killing", map[string]any{
			"recording": rec.handle.id,
			"grace":     p.config.StopGrace.String(),
		})
		_ = rec.proc.Kill()
		<-rec.done
	}

	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()

	return rec.err
}

func (p *Process) run(rec *recording, sink Sink) {
	defer close(rec.done)

	var g errgroup.Group
	g.Go(func() error {
		return p.pump(rec, sink)
	})
	if stderr := rec.proc.Stderr(); stderr != nil {
		g.Go(func() error {
			_, _ = io.Copy(rec.stderr, stderr)
			return nil
		})
	}

	pumpErr := g.Wait()
	waitErr := rec.proc.Wait()

	switch {
	case pumpErr != nil:
		rec.err = fmt.Errorf("read encoder output: %w", pumpErr)
	case waitErr != nil && !rec.stopping.Load():
		rec.err = fmt.Errorf("encoder exited: %w%s", waitErr, rec.stderr.suffix())
	case waitErr != nil:
		p.logger.Debug("encoder exit after stop", map[string]any{"error": waitErr.Error()})
	}
}

// pump reads stdout until EOF. On a read or framing error the encoder is
// killed and the rest of its output discarded.
func (p *Process) pump(rec *recording, sink Sink) error {
	out := rec.proc.Stdout()
	em := &emitter{sink: sink}

	var err error
	if p.config.Mode == ModeFramed {
		err = p.pumpFramed(out, em)
	} else {
		err = p.pumpRaw(out, em)
	}
	if err != nil {
		_ = rec.proc.Kill()
		_, _ = io.Copy(io.Discard, out)
		return err
	}
	em.finish()
	return nil
}

func (p *Process) pumpRaw(r io.Reader, em *emitter) error {
	buf := make([]byte, p.config.ChunkBytes)
	var seq int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			seq++
			em.push(&types.Chunk{Seq: seq, Data: append([]byte(nil), buf[:n]...)})
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// pumpFramed validates the helper's seq order and drops frames without
// data. Emitted chunks are renumbered from 1.
func (p *Process) pumpFramed(r io.Reader, em *emitter) error {
	dec := ipc.NewFrameDecoder(r)
	var last, seq int64
	var final bool
	for {
		chunk, err := dec.ReadChunk()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var frameErr *ipc.FrameError
		if errors.As(err, &frameErr) && frameErr.Kind == ipc.FrameErrorUnknownType {
			p.logger.Debug("skipping non-chunk frame", map[string]any{"error": err.Error()})
			continue
		}
		if err != nil {
			return err
		}
		if final {
			return fmt.Errorf("chunk %d after final chunk %d", chunk.Seq, last)
		}
		if chunk.Seq != last+1 {
			return fmt.Errorf("chunk seq %d, expected %d", chunk.Seq, last+1)
		}
		last = chunk.Seq
		final = chunk.IsLast
		if len(chunk.Data) == 0 {
			continue
		}
		seq++
		chunk.Seq = seq
		chunk.IsLast = false
		em.push(chunk)
	}
}

// emitter holds back one chunk so the final one can be marked IsLast.
type emitter struct {
	sink    Sink
	pending *types.Chunk
}

func (e *emitter) push(chunk *types.Chunk) {
	if e.pending != nil {
		e.sink(e.pending)
	}
	e.pending = chunk
}

// finish delivers the held chunk as the final one. An encoder that produced
// no output emits nothing.
func (e *emitter) finish() {
	if e.pending == nil {
		return
	}
	e.pending.IsLast = true
	e.sink(e.pending)
	e.pending = nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if len(t.buf) > t.max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.max:]...)
	}
	return len(b), nil
}

// suffix formats the tail for an error message, or "" when empty.
func (t *tailBuffer) suffix() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := strings.TrimSpace(string(t.buf))
	if s == "" {
		return ""
	}
	return ": " + s
}

// execProc is a Proc backed by os/exec.
type execProc struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// ExecLauncher starts name as a child process with piped stdout and stderr.
func ExecLauncher(ctx context.Context, name string, args []string) (Proc, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	return &execProc{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (e *execProc) Stdout() io.Reader { return e.stdout }
func (e *execProc) Stderr() io.Reader { return e.stderr }
func (e *execProc) Interrupt() error  { return e.cmd.Process.Signal(os.Interrupt) }
func (e *execProc) Kill() error       { return e.cmd.Process.Kill() }
func (e *execProc) Wait() error       { return e.cmd.Wait() }

// Verify Process implements Engine.
var _ Engine = (*Process)(nil)
