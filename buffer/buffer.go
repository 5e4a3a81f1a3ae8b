// Package buffer holds the in-memory chunk sequence of an active recording.
package buffer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/justapithecus/rehearse/types"
)

// MaxChunkSize is the maximum size of a single chunk (8 MiB).
const MaxChunkSize = 8 * 1024 * 1024

// MaxArtifactSize is the maximum accumulated recording size (1 GiB).
const MaxArtifactSize = 1 * 1024 * 1024 * 1024

// ErrChunkAfterLast is returned when a chunk arrives after the final chunk.
var ErrChunkAfterLast = errors.New("chunk received after is_last")

// ChunkBuffer is an append-only, ordered sequence of chunks.
// Safe for concurrent use; appends and drains are serialized.
type ChunkBuffer struct {
	mu         sync.Mutex
	chunks     []*types.Chunk
	totalBytes int64
	nextSeq    int64
	complete   bool
}

// New creates an empty chunk buffer.
func New() *ChunkBuffer {
	return &ChunkBuffer{nextSeq: 1}
}

// Append adds a chunk at the end of the sequence.
//
// Returns error if:
//   - chunk is nil
//   - seq is not the expected next sequence
//   - a chunk with is_last was already appended
//   - chunk data exceeds MaxChunkSize
//   - accumulated size exceeds MaxArtifactSize
func (b *ChunkBuffer) Append(chunk *types.Chunk) error {
	if chunk == nil {
		return errors.New("nil chunk")
	}
	if len(chunk.Data) > MaxChunkSize {
		return fmt.Errorf("chunk %d: size %d exceeds max %d", chunk.Seq, len(chunk.Data), MaxChunkSize)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.complete {
		return fmt.Errorf("chunk %d: %w", chunk.Seq, ErrChunkAfterLast)
	}
	if chunk.Seq != b.nextSeq {
		return fmt.Errorf("expected seq %d, got %d", b.nextSeq, chunk.Seq)
	}

	newTotal := b.totalBytes + int64(len(chunk.Data))
	if newTotal > MaxArtifactSize {
		return fmt.Errorf("recording size %d exceeds max %d", newTotal, MaxArtifactSize)
	}

	b.chunks = append(b.chunks, chunk)
	b.totalBytes = newTotal
	b.nextSeq++
	if chunk.IsLast {
		b.complete = true
	}
	return nil
}

// DrainAll removes and returns every chunk in append order and resets the
// buffer to empty. Call only after the producer has stopped.
func (b *ChunkBuffer) DrainAll() []*types.Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.chunks
	b.resetLocked()
	return drained
}

// Clear discards every chunk.
func (b *ChunkBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *ChunkBuffer) resetLocked() {
	b.chunks = nil
	b.totalBytes = 0
	b.nextSeq = 1
	b.complete = false
}

// Stats returns buffer statistics.
func (b *ChunkBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Chunks:   int64(len(b.chunks)),
		Bytes:    b.totalBytes,
		Complete: b.complete,
	}
}

// Stats holds chunk buffer statistics.
type Stats struct {
	Chunks   int64
	Bytes    int64
	Complete bool
}
