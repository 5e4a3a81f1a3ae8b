//nolint:revive // types is a common Go package naming convention
package types

// DefaultMediaType is the media type of assembled recordings.
const DefaultMediaType = "video/webm"

// ChunkFrame is the wire form of a media chunk emitted by a framed capture
// helper. Discriminated from other frames by Type == "media_chunk".
type ChunkFrame struct {
	// Type is always "media_chunk" for chunk frames.
	Type string `msgpack:"type"`
	// Seq is the sequence number, starts at 1.
	Seq int64 `msgpack:"seq"`
	// IsLast is true if this is the final chunk of the recording.
	IsLast bool `msgpack:"is_last"`
	// Data is the encoded media bytes.
	Data []byte `msgpack:"data"`
}

// Chunk is an encoded media segment in emission order.
// A chunk is never mutated after it is emitted.
type Chunk struct {
	// Seq is the producer-assigned position, starts at 1.
	Seq int64
	// IsLast marks the chunk flushed by engine stop.
	IsLast bool
	// Data is the raw encoded bytes.
	Data []byte
}

// Size returns the number of data bytes in the chunk.
func (c *Chunk) Size() int64 {
	if c == nil {
		return 0
	}
	return int64(len(c.Data))
}

// Artifact is a fully assembled recording ready for upload.
type Artifact struct {
	// MediaType is the MIME type of Data.
	MediaType string
	// Data is chunk 1 || chunk 2 || ... || chunk N.
	Data []byte
	// Chunks is the number of chunks concatenated into Data.
	Chunks int
}

// SizeBytes returns the artifact size.
func (a *Artifact) SizeBytes() int64 {
	return int64(len(a.Data))
}
