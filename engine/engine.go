// Package engine turns a live device stream into an ordered sequence of
// encoded media chunks.
//
// Chunks are delivered asynchronously through a Sink in emission order.
// Stop flushes everything the encoder still holds and returns only after the
// final chunk (IsLast) has been delivered.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/rehearse/device"
	"github.com/justapithecus/rehearse/types"
)

// ErrEngineMisuse is returned when Start and Stop are called out of order:
// Stop without Start, Stop of a stale handle, or Start while running.
var ErrEngineMisuse = errors.New("engine misuse")

// Sink receives emitted chunks. It is called from the engine's reader
// goroutine and must not block on the caller of Stop.
type Sink func(chunk *types.Chunk)

// Handle identifies one started recording.
type Handle struct {
	id uint64
}

// ID returns the handle's recording number within its engine.
func (h *Handle) ID() uint64 {
	if h == nil {
		return 0
	}
	return h.id
}

// Engine encodes a stream into chunks.
type Engine interface {
	// Start begins encoding stream and emits chunks through sink.
	Start(ctx context.Context, stream *device.Stream, sink Sink) (*Handle, error)

	// Stop finishes the recording identified by handle. The final chunk is
	// delivered to the sink before Stop returns.
	Stop(handle *Handle) error
}

func misuse(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEngineMisuse, fmt.Sprintf(format, args...))
}
