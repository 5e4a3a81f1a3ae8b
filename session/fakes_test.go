package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/justapithecus/rehearse/device"
	"github.com/justapithecus/rehearse/engine"
	"github.com/justapithecus/rehearse/types"
	"github.com/justapithecus/rehearse/upload"
)

// fakeGateway hands out streams. When gate is non-nil, Acquire blocks until
// a value is sent on it; a nil error grants, a non-nil one fails.
type fakeGateway struct {
	mu       sync.Mutex
	deny     error
	gate     chan error
	started  chan struct{}
	streams  []*device.Stream
	acquires int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{started: make(chan struct{}, 16)}
}

func (g *fakeGateway) Acquire(ctx context.Context) (*device.Stream, error) {
	g.mu.Lock()
	g.acquires++
	deny, gate := g.deny, g.gate
	g.mu.Unlock()

	g.started <- struct{}{}
	if gate != nil {
		select {
		case err := <-gate:
			deny = err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if deny != nil {
		return nil, deny
	}

	stream := device.NewStream([]device.Track{
		{Kind: device.TrackVideo, Format: "lavfi", Source: "testsrc"},
		{Kind: device.TrackAudio, Format: "lavfi", Source: "sine"},
	}, nil, nil)

	g.mu.Lock()
	g.streams = append(g.streams, stream)
	g.mu.Unlock()
	return stream, nil
}

func (g *fakeGateway) Release(stream *device.Stream) error {
	return device.Release(stream)
}

// allReleased reports whether every stream handed out was released.
func (g *fakeGateway) allReleased() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.streams {
		if !s.Released() {
			return false
		}
	}
	return true
}

// fakeEngine records the sink so tests can emit chunks.
type fakeEngine struct {
	mu      sync.Mutex
	sink    engine.Sink
	active  *engine.Handle
	starts  int
	stops   int
	flush   []*types.Chunk
	seq     int64
	startFn func() error
	stopErr error
}

func (e *fakeEngine) Start(_ context.Context, stream *device.Stream, sink engine.Sink) (*engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	if e.startFn != nil {
		if err := e.startFn(); err != nil {
			return nil, err
		}
	}
	if e.active != nil {
		return nil, engine.ErrEngineMisuse
	}
	if stream == nil || stream.Released() {
		return nil, errors.New("stream not live")
	}
	e.sink = sink
	e.seq = 0
	e.active = &engine.Handle{}
	return e.active, nil
}

func (e *fakeEngine) Stop(handle *engine.Handle) error {
	e.mu.Lock()
	e.stops++
	if e.active == nil || handle != e.active {
		e.mu.Unlock()
		return engine.ErrEngineMisuse
	}
	e.active = nil
	sink, flush, stopErr := e.sink, e.flush, e.stopErr
	e.mu.Unlock()

	for _, c := range flush {
		sink(c)
	}
	return stopErr
}

// emit delivers chunks with the given sizes through the current sink.
// The sink is kept after Stop so tests can emit late chunks.
func (e *fakeEngine) emit(sizes ...int) []*types.Chunk {
	e.mu.Lock()
	sink := e.sink
	chunks := make([]*types.Chunk, len(sizes))
	for i, n := range sizes {
		e.seq++
		data := make([]byte, n)
		for j := range data {
			data[j] = byte(e.seq)
		}
		chunks[i] = &types.Chunk{Seq: e.seq, Data: data}
	}
	e.mu.Unlock()

	for _, c := range chunks {
		sink(c)
	}
	return chunks
}

// fakeUploader returns results in order; once exhausted it succeeds.
// When gate is non-nil, Submit blocks until a value is received from it.
type fakeUploader struct {
	mu       sync.Mutex
	results  []error
	gate     chan struct{}
	started  chan struct{}
	received [][]*types.Chunk
	calls    atomic.Int32
}

func newFakeUploader(results ...error) *fakeUploader {
	return &fakeUploader{results: results, started: make(chan struct{}, 16)}
}

func (u *fakeUploader) Submit(ctx context.Context, questionID string, chunks []*types.Chunk) (*upload.Ack, error) {
	u.calls.Add(1)
	u.mu.Lock()
	u.received = append(u.received, chunks)
	var err error
	if len(u.results) > 0 {
		err = u.results[0]
		u.results = u.results[1:]
	}
	gate := u.gate
	u.mu.Unlock()

	u.started <- struct{}{}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	artifact, aerr := upload.Assemble(chunks, "")
	if aerr != nil {
		return nil, aerr
	}
	return &upload.Ack{ID: "rec-" + questionID, SizeBytes: artifact.SizeBytes(), Chunks: artifact.Chunks}, nil
}
