package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
)

// DefaultRoot is the device directory scanned by the host gateway.
const DefaultRoot = "/dev"

// HostConfig configures the host capture gateway.
type HostConfig struct {
	// Root is the device directory (default /dev).
	Root string
	// VideoDevice is the V4L2 node to use (e.g. /dev/video0).
	// Empty selects the first node found.
	VideoDevice string
	// AudioDevice is the ALSA capture device name (e.g. "default", "hw:1,0").
	// Empty selects the first capture PCM found.
	AudioDevice string
}

// Host acquires V4L2 cameras and ALSA microphones on Linux hosts.
//
// Acquire opens the camera node and the sound card control node read-only.
// Holding the descriptors claims the devices for the stream's lifetime;
// a process-wide registry refuses a second claim of the same node.
type Host struct {
	config HostConfig
}

// NewHost creates a host gateway.
func NewHost(cfg HostConfig) *Host {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	return &Host{config: cfg}
}

// claims tracks device nodes held by live streams in this process.
var claims = struct {
	sync.Mutex
	held map[string]struct{}
}{held: make(map[string]struct{})}

func claim(paths ...string) error {
	claims.Lock()
	defer claims.Unlock()
	for _, p := range paths {
		if _, busy := claims.held[p]; busy {
			return fmt.Errorf("%s: %w", p, ErrDeviceBusy)
		}
	}
	for _, p := range paths {
		claims.held[p] = struct{}{}
	}
	return nil
}

func unclaim(paths ...string) {
	claims.Lock()
	defer claims.Unlock()
	for _, p := range paths {
		delete(claims.held, p)
	}
}

// Acquire implements Gateway.
func (h *Host) Acquire(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	videoPath, err := h.videoNode()
	if err != nil {
		return nil, &DeniedError{Kind: TrackVideo, Err: err}
	}
	audio, err := h.audioNode()
	if err != nil {
		return nil, &DeniedError{Kind: TrackAudio, Err: err}
	}

	if err := claim(videoPath, audio.controlPath); err != nil {
		return nil, &DeniedError{Kind: TrackVideo, Path: videoPath, Err: err}
	}

	videoFile, err := openNode(videoPath)
	if err != nil {
		unclaim(videoPath, audio.controlPath)
		return nil, &DeniedError{Kind: TrackVideo, Path: videoPath, Err: err}
	}
	controlFile, err := openNode(audio.controlPath)
	if err != nil {
		_ = videoFile.Close()
		unclaim(videoPath, audio.controlPath)
		return nil, &DeniedError{Kind: TrackAudio, Path: audio.controlPath, Err: err}
	}

	// Cancelled while opening: hand nothing back.
	if err := ctx.Err(); err != nil {
		_ = videoFile.Close()
		_ = controlFile.Close()
		unclaim(videoPath, audio.controlPath)
		return nil, err
	}

	tracks := []Track{
		{Kind: TrackVideo, Format: "v4l2", Source: videoPath},
		{Kind: TrackAudio, Format: "alsa", Source: audio.name},
	}
	return NewStream(tracks, []io.Closer{videoFile, controlFile}, func() {
		unclaim(videoPath, audio.controlPath)
	}), nil
}

// Release implements Gateway.
func (h *Host) Release(stream *Stream) error {
	return Release(stream)
}

func openNode(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrPermission):
			return nil, fmt.Errorf("permission refused: %w", err)
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("no such device: %w", err)
		default:
			return nil, err
		}
	}
	return f, nil
}

func (h *Host) videoNode() (string, error) {
	if h.config.VideoDevice != "" {
		return h.config.VideoDevice, nil
	}
	infos, err := List(h.config.Root)
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.Kind == TrackVideo {
			return info.Path, nil
		}
	}
	return "", errors.New("no camera found")
}

type audioSelection struct {
	name        string
	controlPath string
}

func (h *Host) audioNode() (audioSelection, error) {
	infos, err := List(h.config.Root)
	if err != nil {
		return audioSelection{}, err
	}
	for _, info := range infos {
		if info.Kind != TrackAudio {
			continue
		}
		if h.config.AudioDevice != "" && h.config.AudioDevice != "default" && h.config.AudioDevice != info.Name {
			continue
		}
		sel := audioSelection{
			name:        info.Name,
			controlPath: filepath.Join(h.config.Root, "snd", fmt.Sprintf("controlC%d", info.card)),
		}
		if h.config.AudioDevice != "" {
			sel.name = h.config.AudioDevice
		}
		return sel, nil
	}
	if h.config.AudioDevice != "" {
		return audioSelection{}, fmt.Errorf("no microphone matching %q", h.config.AudioDevice)
	}
	return audioSelection{}, errors.New("no microphone found")
}

// Info describes a capture device found on the host.
type Info struct {
	// Kind is video or audio.
	Kind TrackKind `json:"kind" yaml:"kind"`
	// Name is the encoder-facing name (node path or ALSA "hw:C,D").
	Name string `json:"name" yaml:"name"`
	// Path is the device node.
	Path string `json:"path" yaml:"path"`

	card int
}

var (
	videoNodePattern  = regexp.MustCompile(`^video(\d+)$`)
	pcmCapturePattern = regexp.MustCompile(`^pcmC(\d+)D(\d+)c$`)
)

// List enumerates camera nodes (video*) and ALSA capture PCMs
// (snd/pcmC*D*c) under root, cameras first, each group in name order.
func List(root string) ([]Info, error) {
	if root == "" {
		root = DefaultRoot
	}

	var infos []Info

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}
	for _, e := range entries {
		if videoNodePattern.MatchString(e.Name()) {
			p := filepath.Join(root, e.Name())
			infos = append(infos, Info{Kind: TrackVideo, Name: p, Path: p})
		}
	}

	sndEntries, err := os.ReadDir(filepath.Join(root, "snd"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", filepath.Join(root, "snd"), err)
	}
	for _, e := range sndEntries {
		m := pcmCapturePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		var card, dev int
		_, _ = fmt.Sscanf(m[1]+" "+m[2], "%d %d", &card, &dev)
		infos = append(infos, Info{
			Kind: TrackAudio,
			Name: fmt.Sprintf("hw:%d,%d", card, dev),
			Path: filepath.Join(root, "snd", e.Name()),
			card: card,
		})
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].Kind != infos[j].Kind {
			return infos[i].Kind == TrackVideo
		}
		return infos[i].Path < infos[j].Path
	})
	return infos, nil
}

// Verify Host implements Gateway.
var _ Gateway = (*Host)(nil)
