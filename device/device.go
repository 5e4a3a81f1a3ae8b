// Package device acquires exclusive access to camera and microphone hardware.
//
// A Gateway hands out a Stream, the single-owner handle to the live tracks.
// Release stops every track; it is idempotent and nil-safe, so callers may
// release on every exit path without tracking whether it already happened.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/justapithecus/rehearse/iox"
)

// ErrDeviceDenied is returned when camera/microphone access cannot be
// obtained, either because permission was refused or because no compatible
// hardware exists. It is terminal for the attempt; the user may retry.
var ErrDeviceDenied = errors.New("device denied")

// ErrDeviceBusy is returned when a device node is already claimed by
// another stream in this process.
var ErrDeviceBusy = errors.New("device busy")

// DeniedError describes why access to a device was denied.
// It matches ErrDeviceDenied via errors.Is.
type DeniedError struct {
	// Kind is the track kind that could not be acquired.
	Kind TrackKind
	// Path is the device node involved, if any.
	Path string
	// Err is the underlying cause.
	Err error
}

func (e *DeniedError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Kind, e.Path, ErrDeviceDenied, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Kind, ErrDeviceDenied, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DeniedError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDeviceDenied.
func (e *DeniedError) Is(target error) bool { return target == ErrDeviceDenied }

// TrackKind is the media kind of a track.
type TrackKind string

// Track kinds.
const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Track is one live capture track of a stream.
type Track struct {
	// Kind is video or audio.
	Kind TrackKind
	// Format is the encoder input format (e.g. "v4l2", "alsa", "lavfi").
	Format string
	// Source is the encoder input (device node, ALSA name, or lavfi filter graph).
	Source string
}

// Stream is a handle to live video and audio tracks.
// It has exactly one owner; the owner must pass it to Gateway.Release.
type Stream struct {
	tracks   []Track
	closers  []*iox.OnceCloser
	once     sync.Once
	mu       sync.Mutex
	released bool
	onStop   func()
}

// NewStream creates a stream over the given tracks. closers are closed when
// the stream is released; onStop, if non-nil, runs once after they close.
func NewStream(tracks []Track, closers []io.Closer, onStop func()) *Stream {
	s := &Stream{
		tracks: append([]Track(nil), tracks...),
		onStop: onStop,
	}
	for _, c := range closers {
		s.closers = append(s.closers, iox.NewOnceCloser(c))
	}
	return s
}

// Tracks returns a copy of the stream's tracks.
func (s *Stream) Tracks() []Track {
	if s == nil {
		return nil
	}
	return append([]Track(nil), s.tracks...)
}

// Track returns the first track of the given kind.
func (s *Stream) Track(kind TrackKind) (Track, bool) {
	if s == nil {
		return Track{}, false
	}
	for _, t := range s.tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return Track{}, false
}

// Released reports whether every track has been stopped.
func (s *Stream) Released() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// stop stops every track exactly once.
func (s *Stream) stop() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		closers := make([]io.Closer, len(s.closers))
		for i, c := range s.closers {
			closers[i] = c
		}
		err = iox.CloseAll(closers...)

		s.mu.Lock()
		s.released = true
		s.mu.Unlock()

		if s.onStop != nil {
			s.onStop()
		}
	})
	return err
}

// Gateway requests exclusive access to capture hardware.
type Gateway interface {
	// Acquire requests simultaneous video and audio capture.
	// Returns an error matching ErrDeviceDenied when access is refused or no
	// compatible hardware exists. There is no implicit retry.
	Acquire(ctx context.Context) (*Stream, error)

	// Release stops every track on the stream. Safe to call more than once
	// and on a nil stream.
	Release(stream *Stream) error
}

// Release stops every track of stream. It is the shared implementation of
// Gateway.Release.
func Release(stream *Stream) error {
	return stream.stop()
}
