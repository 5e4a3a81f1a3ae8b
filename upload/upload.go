// Package upload assembles a recording from its chunks and submits it to
// the recording endpoint.
//
// Submit never retries. A failed submit returns an *Error whose Kind tells
// the caller whether repeating the save can help.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/rehearse/api"
	"github.com/justapithecus/rehearse/types"
)

// ErrNoChunks is returned when assembling an empty recording.
var ErrNoChunks = errors.New("no chunks to assemble")

// ErrorKind classifies upload failures.
type ErrorKind string

const (
	// KindTransient covers network failures and retriable server responses.
	KindTransient ErrorKind = "transient"
	// KindRejected covers requests the service refused or that cannot be sent.
	KindRejected ErrorKind = "rejected"
)

// Error is an upload failure.
type Error struct {
	Kind       ErrorKind
	QuestionID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload %s (%s): %v", e.QuestionID, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether a later save may succeed.
func (e *Error) Retriable() bool { return e.Kind == KindTransient }

// Ack acknowledges a stored recording.
type Ack struct {
	// ID is the stored recording's identifier.
	ID string
	// URL is where the recording can be retrieved, if the service says.
	URL string
	// SizeBytes is the uploaded artifact size.
	SizeBytes int64
	// Chunks is the number of chunks in the artifact.
	Chunks int
}

// Uploader submits a recording for a question.
type Uploader interface {
	Submit(ctx context.Context, questionID string, chunks []*types.Chunk) (*Ack, error)
}

// Assemble concatenates chunks in order into one artifact.
// Chunks must be non-empty and in strictly increasing seq order.
func Assemble(chunks []*types.Chunk, mediaType string) (*types.Artifact, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	if mediaType == "" {
		mediaType = types.DefaultMediaType
	}

	var size int64
	for i, c := range chunks {
		if c == nil {
			return nil, fmt.Errorf("assemble: chunk %d is nil", i)
		}
		if i > 0 && c.Seq <= chunks[i-1].Seq {
			return nil, fmt.Errorf("assemble: chunk seq %d follows %d", c.Seq, chunks[i-1].Seq)
		}
		size += c.Size()
	}

	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c.Data...)
	}
	return &types.Artifact{MediaType: mediaType, Data: data, Chunks: len(chunks)}, nil
}

// Submitter is the part of api.Client used by HTTP.
type Submitter interface {
	SubmitRecording(ctx context.Context, rec api.Recording) (*api.Ack, error)
}

// HTTP uploads through the interview service API.
type HTTP struct {
	client    Submitter
	mediaType string
}

// NewHTTP creates an HTTP uploader. An empty mediaType is video/webm.
func NewHTTP(client Submitter, mediaType string) *HTTP {
	if mediaType == "" {
		mediaType = types.DefaultMediaType
	}
	return &HTTP{client: client, mediaType: mediaType}
}

// Submit assembles chunks and posts the artifact with questionID.
func (h *HTTP) Submit(ctx context.Context, questionID string, chunks []*types.Chunk) (*Ack, error) {
	artifact, err := Assemble(chunks, h.mediaType)
	if err != nil {
		return nil, &Error{Kind: KindRejected, QuestionID: questionID, Err: err}
	}

	ack, err := h.client.SubmitRecording(ctx, api.Recording{
		QuestionID: questionID,
		MediaType:  artifact.MediaType,
		Data:       bytes.NewReader(artifact.Data),
		SizeBytes:  artifact.SizeBytes(),
	})
	if err != nil {
		return nil, &Error{Kind: classify(err), QuestionID: questionID, Err: err}
	}

	return &Ack{
		ID:        ack.ID,
		URL:       ack.VideoURL,
		SizeBytes: artifact.SizeBytes(),
		Chunks:    artifact.Chunks,
	}, nil
}

func classify(err error) ErrorKind {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && !statusErr.Retriable() {
		return KindRejected
	}
	return KindTransient
}

// Verify HTTP implements Uploader.
var _ Uploader = (*HTTP)(nil)
