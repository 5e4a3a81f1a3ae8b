package device

import "context"

// Default synthetic sources for TestPattern.
const (
	DefaultTestVideo = "testsrc=size=640x480:rate=30"
	DefaultTestAudio = "sine=frequency=440:sample_rate=48000"
)

// TestPattern grants synthetic video and audio tracks rendered by the
// encoder's lavfi sources. Acquire always succeeds unless ctx is done.
type TestPattern struct {
	Video string
	Audio string
}

// Acquire implements Gateway.
func (p *TestPattern) Acquire(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	video, audio := p.Video, p.Audio
	if video == "" {
		video = DefaultTestVideo
	}
	if audio == "" {
		audio = DefaultTestAudio
	}
	return NewStream([]Track{
		{Kind: TrackVideo, Format: "lavfi", Source: video},
		{Kind: TrackAudio, Format: "lavfi", Source: audio},
	}, nil, nil), nil
}

// Release implements Gateway.
func (p *TestPattern) Release(stream *Stream) error {
	return Release(stream)
}

// Verify TestPattern implements Gateway.
var _ Gateway = (*TestPattern)(nil)
