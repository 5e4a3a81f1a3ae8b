package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/rehearse/device"
	"github.com/justapithecus/rehearse/ipc"
	"github.com/justapithecus/rehearse/types"
)

// fakeProc is an in-memory encoder. Test code writes encoder output to w.
type fakeProc struct {
	r *io.PipeReader
	w *io.PipeWriter

	// ignoreInterrupt leaves stdout open on Interrupt, forcing a kill.
	ignoreInterrupt bool
	waitErr         error
	stderr          io.Reader

	interrupted atomic.Bool
	killed      atomic.Bool
}

func newFakeProc() *fakeProc {
	r, w := io.Pipe()
	return &fakeProc{r: r, w: w}
}

func (f *fakeProc) Stdout() io.Reader { return f.r }
func (f *fakeProc) Stderr() io.Reader { return f.stderr }

func (f *fakeProc) Interrupt() error {
	f.interrupted.Store(true)
	if !f.ignoreInterrupt {
		_ = f.w.Close()
	}
	return nil
}

func (f *fakeProc) Kill() error {
	f.killed.Store(true)
	_ = f.w.Close()
	return nil
}

func (f *fakeProc) Wait() error { return f.waitErr }

// collector is a concurrency-safe sink.
type collector struct {
	mu     sync.Mutex
	chunks []*types.Chunk
}

func (c *collector) sink(chunk *types.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
}

func (c *collector) all() []*types.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Chunk(nil), c.chunks...)
}

func testStream(t *testing.T) *device.Stream {
	t.Helper()
	stream, err := (&device.TestPattern{}).Acquire(t.Context())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	return stream
}

func newTestEngine(proc *fakeProc, mode OutputMode, chunkBytes int) (*Process, *[]string) {
	var args []string
	engine := NewProcess(ProcessConfig{
		Mode:       mode,
		ChunkBytes: chunkBytes,
		StopGrace:  50 * time.Millisecond,
		Launch: func(_ context.Context, name string, a []string) (Proc, error) {
			args = append([]string{name}, a...)
			return proc, nil
		},
	})
	return engine, &args
}

func assertOrdered(t *testing.T, chunks []*types.Chunk) {
	t.Helper()
	for i, c := range chunks {
		if c.Seq != int64(i+1) {
			t.Errorf("chunk %d: seq = %d, want %d", i, c.Seq, i+1)
		}
		if c.IsLast != (i == len(chunks)-1) {
			t.Errorf("chunk %d: IsLast = %v", i, c.IsLast)
		}
	}
}

func TestProcess_RawEmitsChunksPerWrite(t *testing.T) {
	proc := newFakeProc()
	engine, args := newTestEngine(proc, ModeRaw, 1024)
	sink := &collector{}

	handle, err := engine.Start(t.Context(), testStream(t), sink.sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	parts := [][]byte{
		bytes.Repeat([]byte{'a'}, 10),
		bytes.Repeat([]byte{'b'}, 20),
		bytes.Repeat([]byte{'c'}, 15),
	}
	for _, p := range parts {
		if _, err := proc.w.Write(p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if err := engine.Stop(handle); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	chunks := sink.all()
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if !bytes.Equal(c.Data, parts[i]) {
			t.Errorf("chunk %d = %q, want %q", i, c.Data, parts[i])
		}
	}
	assertOrdered(t, chunks)

	if !proc.interrupted.Load() {
		t.Error("encoder was not interrupted")
	}
	if proc.killed.Load() {
		t.Error("encoder killed despite finishing within grace")
	}
	if got := (*args)[0]; got != DefaultEncoder {
		t.Errorf("encoder = %q, want %q", got, DefaultEncoder)
	}
}

func TestProcess_RawSplitsAtChunkBytes(t *testing.T) {
	proc := newFakeProc()
	engine, _ := newTestEngine(proc, ModeRaw, 8)
	sink := &collector{}

	handle, err := engine.Start(t.Context(), testStream(t), sink.sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	payload := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	if _, err := proc.w.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := engine.Stop(handle); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	chunks := sink.all()
	var joined []byte
	for _, c := range chunks {
		if len(c.Data) > 8 {
			t.Errorf("chunk %d has %d bytes, max 8", c.Seq, len(c.Data))
		}
		joined = append(joined, c.Data...)
	}
	if !bytes.Equal(joined, payload) {
		t.Errorf("joined = %q, want %q", joined, payload)
	}
	assertOrdered(t, chunks)
}

func TestProcess_NoOutputEmitsNothing(t *testing.T) {
	proc := newFakeProc()
	engine, _ := newTestEngine(proc, ModeRaw, 0)
	sink := &collector{}

	handle, err := engine.Start(t.Context(), testStream(t), sink.sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := engine.Stop(handle); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n := len(sink.all()); n != 0 {
		t.Errorf("got %d chunks, want 0", n)
	}
}

func TestProcess_KillsAfterGrace(t *testing.T) {
	proc := newFakeProc()
	proc.ignoreInterrupt = true
	engine, _ := newTestEngine(proc, ModeRaw, 0)
	sink := &collector{}

	handle, err := engine.Start(t.Context(), testStream(t), sink.sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := proc.w.Write([]byte("tail")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := engine.Stop(handle); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !proc.killed.Load() {
		t.Error("encoder not killed after grace")
	}

	chunks := sink.all()
	if len(chunks) != 1 || !chunks[0].IsLast || string(chunks[0].Data) != "tail" {
		t.Errorf("chunks = %+v, want one final chunk \"tail\"", chunks)
	}
}

func TestProcess_EncoderCrash(t *testing.T) {
	proc := newFakeProc()
	proc.waitErr = errors.New("exit status 1")
	proc.stderr = strings.NewReader("Unknown input format: 'v4l2'\n")
	engine, _ := newTestEngine(proc, ModeRaw, 0)

	handle, err := engine.Start(t.Context(), testStream(t), (&collector{}).sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Encoder exits on its own before Stop.
	_ = proc.w.Close()
	engine.mu.Lock()
	done := engine.active.done
	engine.mu.Unlock()
	<-done

	err = engine.Stop(handle)
	if err == nil {
		t.Fatal("expected error from crashed encoder")
	}
	if errors.Is(err, ErrEngineMisuse) {
		t.Errorf("crash reported as misuse: %v", err)
	}
	if !strings.Contains(err.Error(), "encoder exited") || !strings.Contains(err.Error(), "Unknown input format") {
		t.Errorf("error = %q, want exit status with stderr tail", err)
	}
}

func TestProcess_FramedPreservesSeq(t *testing.T) {
	proc := newFakeProc()
	engine, args := newTestEngine(proc, ModeFramed, 0)
	sink := &collector{}

	handle, err := engine.Start(t.Context(), testStream(t), sink.sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	enc := ipc.NewFrameEncoder(proc.w)
	for i, size := range []int{10, 20, 15} {
		chunk := &types.Chunk{Seq: int64(i + 1), Data: bytes.Repeat([]byte{byte(i)}, size)}
		if err := enc.WriteChunk(chunk); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
	}
	// Frames of other types are skipped.
	status, _ := msgpack.Marshal(map[string]any{"type": "status", "fps": 30})
	writeRawFrame(t, proc.w, status)

	if err := engine.Stop(handle); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	chunks := sink.all()
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	var total int
	for _, c := range chunks {
		total += len(c.Data)
	}
	if total != 45 {
		t.Errorf("total = %d, want 45", total)
	}
	assertOrdered(t, chunks)

	for _, a := range *args {
		if a == "pipe:1" {
			t.Error("framed mode should not get default raw output args")
		}
	}
}

func TestProcess_FramedSeqGap(t *testing.T) {
	proc := newFakeProc()
	engine, _ := newTestEngine(proc, ModeFramed, 0)

	handle, err := engine.Start(t.Context(), testStream(t), (&collector{}).sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	enc := ipc.NewFrameEncoder(proc.w)
	_ = enc.WriteChunk(&types.Chunk{Seq: 1, Data: []byte("a")})
	_ = enc.WriteChunk(&types.Chunk{Seq: 3, Data: []byte("c")})

	err = engine.Stop(handle)
	if err == nil || !strings.Contains(err.Error(), "expected 2") {
		t.Errorf("Stop error = %v, want seq gap", err)
	}
	if !proc.killed.Load() {
		t.Error("encoder not killed after framing error")
	}
}

func TestProcess_FramedDropsEmptyFrames(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
		want  []int
	}{
		{"all empty", []int{0, 0}, nil},
		{"interleaved", []int{0, 4, 0, 6}, []int{4, 6}},
		{"empty final frame", []int{3, 5, 0}, []int{3, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := newFakeProc()
			engine, _ := newTestEngine(proc, ModeFramed, 0)
			sink := &collector{}

			handle, err := engine.Start(t.Context(), testStream(t), sink.sink)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			enc := ipc.NewFrameEncoder(proc.w)
			for i, size := range tt.sizes {
				chunk := &types.Chunk{
					Seq:    int64(i + 1),
					IsLast: i == len(tt.sizes)-1,
					Data:   bytes.Repeat([]byte{'x'}, size),
				}
				if err := enc.WriteChunk(chunk); err != nil {
					t.Fatalf("WriteChunk: %v", err)
				}
			}
			if err := engine.Stop(handle); err != nil {
				t.Fatalf("Stop: %v", err)
			}

			chunks := sink.all()
			if len(chunks) != len(tt.want) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tt.want))
			}
			for i, c := range chunks {
				if len(c.Data) != tt.want[i] {
					t.Errorf("chunk %d: %d bytes, want %d", i, len(c.Data), tt.want[i])
				}
			}
			assertOrdered(t, chunks)
		})
	}
}

func TestProcess_FramedChunkAfterFinal(t *testing.T) {
	proc := newFakeProc()
	engine, _ := newTestEngine(proc, ModeFramed, 0)

	handle, err := engine.Start(t.Context(), testStream(t), (&collector{}).sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	enc := ipc.NewFrameEncoder(proc.w)
	_ = enc.WriteChunk(&types.Chunk{Seq: 1, IsLast: true})
	_ = enc.WriteChunk(&types.Chunk{Seq: 2, Data: []byte("late")})

	err = engine.Stop(handle)
	if err == nil || !strings.Contains(err.Error(), "after final chunk") {
		t.Errorf("Stop error = %v, want chunk after final", err)
	}
}

func writeRawFrame(t *testing.T, w io.Writer, payload []byte) {
	t.Helper()
	buf := make([]byte, ipc.LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[ipc.LengthPrefixSize:], payload)
	if _, err := w.Write(buf); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestProcess_Misuse(t *testing.T) {
	t.Run("stop without start", func(t *testing.T) {
		engine, _ := newTestEngine(newFakeProc(), ModeRaw, 0)
		if err := engine.Stop(nil); !errors.Is(err, ErrEngineMisuse) {
			t.Errorf("Stop(nil) = %v, want ErrEngineMisuse", err)
		}
	})

	t.Run("start twice", func(t *testing.T) {
		proc := newFakeProc()
		engine, _ := newTestEngine(proc, ModeRaw, 0)
		handle, err := engine.Start(t.Context(), testStream(t), (&collector{}).sink)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		t.Cleanup(func() { _ = engine.Stop(handle) })

		if _, err := engine.Start(t.Context(), testStream(t), (&collector{}).sink); !errors.Is(err, ErrEngineMisuse) {
			t.Errorf("second Start = %v, want ErrEngineMisuse", err)
		}
	})

	t.Run("stale handle", func(t *testing.T) {
		proc := newFakeProc()
		engine, _ := newTestEngine(proc, ModeRaw, 0)
		handle, err := engine.Start(t.Context(), testStream(t), (&collector{}).sink)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := engine.Stop(handle); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		if err := engine.Stop(handle); !errors.Is(err, ErrEngineMisuse) {
			t.Errorf("second Stop = %v, want ErrEngineMisuse", err)
		}
	})

	t.Run("nil sink", func(t *testing.T) {
		engine, _ := newTestEngine(newFakeProc(), ModeRaw, 0)
		if _, err := engine.Start(t.Context(), testStream(t), nil); !errors.Is(err, ErrEngineMisuse) {
			t.Errorf("Start(nil sink) = %v, want ErrEngineMisuse", err)
		}
	})
}

func TestProcess_ReleasedStream(t *testing.T) {
	engine, _ := newTestEngine(newFakeProc(), ModeRaw, 0)
	stream := testStream(t)
	_ = device.Release(stream)

	_, err := engine.Start(t.Context(), stream, (&collector{}).sink)
	if err == nil {
		t.Fatal("expected error for released stream")
	}
	if errors.Is(err, ErrEngineMisuse) {
		t.Errorf("released stream reported as misuse: %v", err)
	}
}

func TestProcess_RestartAfterStop(t *testing.T) {
	procs := []*fakeProc{newFakeProc(), newFakeProc()}
	var launched int
	engine := NewProcess(ProcessConfig{
		StopGrace: 50 * time.Millisecond,
		Launch: func(context.Context, string, []string) (Proc, error) {
			p := procs[launched]
			launched++
			return p, nil
		},
	})

	first, err := engine.Start(t.Context(), testStream(t), (&collector{}).sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := engine.Stop(first); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	second, err := engine.Start(t.Context(), testStream(t), (&collector{}).sink)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if second.ID() == first.ID() {
		t.Error("restart reused handle id")
	}
	if err := engine.Stop(first); !errors.Is(err, ErrEngineMisuse) {
		t.Errorf("Stop(first) during second recording = %v, want ErrEngineMisuse", err)
	}
	if err := engine.Stop(second); err != nil {
		t.Errorf("Stop(second): %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	stream := device.NewStream([]device.Track{
		{Kind: device.TrackVideo, Format: "v4l2", Source: "/dev/video0"},
		{Kind: device.TrackAudio, Format: "alsa", Source: "hw:1,0"},
	}, nil, nil)

	args, err := BuildArgs(stream, []string{"-f", "webm", "pipe:1"})
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	got := strings.Join(args, " ")
	want := "-hide_banner -loglevel error -nostdin -f v4l2 -i /dev/video0 -f alsa -i hw:1,0 -f webm pipe:1"
	if got != want {
		t.Errorf("args = %q\nwant   %q", got, want)
	}

	if _, err := BuildArgs(nil, nil); err == nil {
		t.Error("expected error for stream without tracks")
	}
}

func TestParseOutputMode(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputMode
		wantErr bool
	}{
		{"", ModeRaw, false},
		{"raw", ModeRaw, false},
		{"framed", ModeFramed, false},
		{"mp4", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseOutputMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abcdef"))
	_, _ = tb.Write([]byte("gh"))
	if got := tb.suffix(); got != ": efgh" {
		t.Errorf("suffix = %q, want %q", got, ": efgh")
	}
	if got := (&tailBuffer{max: 4}).suffix(); got != "" {
		t.Errorf("empty suffix = %q", got)
	}
}
