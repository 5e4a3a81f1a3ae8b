package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents a rehearse.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	API       APIConfig       `yaml:"api"`
	Recording RecordingConfig `yaml:"recording"`
	Journal   JournalConfig   `yaml:"journal"`
	Adapter   AdapterConfig   `yaml:"adapter"`
}

// APIConfig holds interview service defaults.
type APIConfig struct {
	BaseURL   string   `yaml:"base_url"`
	Token     string   `yaml:"token"`
	TokenFile string   `yaml:"token_file"`
	Timeout   Duration `yaml:"timeout"`
}

// RecordingConfig holds capture and encoder defaults.
type RecordingConfig struct {
	Device      string   `yaml:"device"`
	VideoDevice string   `yaml:"video_device"`
	AudioDevice string   `yaml:"audio_device"`
	Encoder     string   `yaml:"encoder"`
	EncoderArgs []string `yaml:"encoder_args"`
	OutputMode  string   `yaml:"output_mode"`
	ChunkBytes  int      `yaml:"chunk_bytes"`
	MediaType   string   `yaml:"media_type"`
	StopGrace   Duration `yaml:"stop_grace"`
}

// JournalConfig holds session journal defaults.
type JournalConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds saved-notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Device kinds.
const (
	DeviceHost        = "host"
	DeviceTestPattern = "test_pattern"
)

// Journal backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Validate checks enumerated values. Empty values are allowed and take
// command defaults.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		if value == "" {
			return
		}
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: invalid value %q (allowed: %v)", field, value, allowed))
	}

	check("recording.device", c.Recording.Device, DeviceHost, DeviceTestPattern)
	check("recording.output_mode", c.Recording.OutputMode, "raw", "framed")
	check("journal.backend", c.Journal.Backend, BackendFS, BackendS3)
	check("adapter.type", c.Adapter.Type, AdapterWebhook, AdapterRedis)

	if c.Recording.ChunkBytes < 0 {
		errs = append(errs, fmt.Errorf("recording.chunk_bytes: must be >= 0, got %d", c.Recording.ChunkBytes))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries: must be >= 0, got %d", *c.Adapter.Retries))
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		errs = append(errs, errors.New("adapter.url: required when adapter.type is set"))
	}
	return errors.Join(errs...)
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
