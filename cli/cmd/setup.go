package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/rehearse/adapter"
	"github.com/justapithecus/rehearse/adapter/redis"
	"github.com/justapithecus/rehearse/adapter/webhook"
	"github.com/justapithecus/rehearse/api"
	"github.com/justapithecus/rehearse/cli/config"
	"github.com/justapithecus/rehearse/device"
	"github.com/justapithecus/rehearse/engine"
	"github.com/justapithecus/rehearse/journal"
	"github.com/justapithecus/rehearse/log"
)

// loadConfig loads the env file, then the config file. Without --config,
// rehearse.yaml in the working directory is used if present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadEnvFile(c.String("env-file")); err != nil {
		return nil, err
	}

	path := c.String("config")
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigFile); err != nil {
			return &config.Config{}, nil
		}
		path = config.DefaultConfigFile
	}
	return config.Load(path)
}

// newLogger builds the process logger writing to w.
func newLogger(c *cli.Context, cfg *config.Config, w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(flagOr(c, "log-level", cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return log.NewLoggerWithWriter(w, level), nil
}

// newAPIClient builds the interview service client. Token precedence:
// --token, --token-file, api.token, api.token_file.
func newAPIClient(c *cli.Context, cfg config.APIConfig) (*api.Client, error) {
	baseURL := flagOr(c, "api-url", cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("interview service URL is required (--api-url or api.base_url)")
	}

	var tokens api.TokenSource
	switch {
	case c.IsSet("token"):
		tokens = api.StaticToken(c.String("token"))
	case c.IsSet("token-file"):
		tokens = api.FileToken{Path: c.String("token-file")}
	case cfg.Token != "":
		tokens = api.StaticToken(cfg.Token)
	case cfg.TokenFile != "":
		tokens = api.FileToken{Path: cfg.TokenFile}
	}

	return api.NewClient(api.Config{
		BaseURL: baseURL,
		Timeout: cfg.Timeout.Duration,
		Tokens:  tokens,
	})
}

// newGateway returns the capture gateway and its name for metrics.
func newGateway(c *cli.Context, cfg config.RecordingConfig) (device.Gateway, string, error) {
	switch kind := flagOr(c, "device", cfg.Device); kind {
	case config.DeviceHost:
		return device.NewHost(device.HostConfig{
			VideoDevice: flagOr(c, "video-device", cfg.VideoDevice),
			AudioDevice: flagOr(c, "audio-device", cfg.AudioDevice),
		}), kind, nil
	case config.DeviceTestPattern:
		return &device.TestPattern{}, kind, nil
	default:
		return nil, "", fmt.Errorf("invalid device: %s (must be host or test_pattern)", kind)
	}
}

// newEngine builds the process engine. encoder_args from the config
// replace the default output arguments.
func newEngine(c *cli.Context, cfg config.RecordingConfig, logger *log.Logger) (*engine.Process, error) {
	mode, err := engine.ParseOutputMode(flagOr(c, "output-mode", cfg.OutputMode))
	if err != nil {
		return nil, err
	}
	return engine.NewProcess(engine.ProcessConfig{
		Encoder:    flagOr(c, "encoder", cfg.Encoder),
		OutputArgs: cfg.EncoderArgs,
		Mode:       mode,
		ChunkBytes: intFlagOr(c, "chunk-bytes", cfg.ChunkBytes),
		StopGrace:  durationOr(c, "stop-grace", cfg.StopGrace.Duration),
		Logger:     logger,
	}), nil
}

// journalBackend returns the configured backend name.
func journalBackend(c *cli.Context, cfg config.JournalConfig) string {
	return flagOr(c, "journal-backend", cfg.Backend)
}

// openJournal opens the session journal. It returns nil without error when
// no journal path is configured.
func openJournal(ctx context.Context, c *cli.Context, cfg config.JournalConfig, opts ...journal.Option) (*journal.Journal, error) {
	path := flagOr(c, "journal-path", cfg.Path)
	if path == "" {
		return nil, nil
	}
	dataset := cfg.Dataset
	if dataset == "" {
		dataset = journal.DefaultDataset
	}

	switch backend := journalBackend(c, cfg); backend {
	case config.BackendFS, "":
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
		return journal.Open(dataset, path, opts...)
	case config.BackendS3:
		bucket, prefix := journal.ParseS3Path(path)
		return journal.OpenS3(ctx, dataset, journal.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       flagOr(c, "journal-s3-region", cfg.Region),
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		}, opts...)
	default:
		return nil, fmt.Errorf("unknown journal backend: %s (must be fs or s3)", backend)
	}
}

// requireJournal opens the journal for read commands, which need one.
func requireJournal(ctx context.Context, c *cli.Context, cfg config.JournalConfig) (*journal.Journal, error) {
	if path := flagOr(c, "journal-path", cfg.Path); path != "" && journalBackend(c, cfg) != config.BackendS3 {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("journal not found: %w", err)
		}
	}
	j, err := openJournal(ctx, c, cfg)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, errors.New("journal path is required (--journal-path or journal.path)")
	}
	return j, nil
}

// newAdapter builds the saved-recording notifier. It returns nil without
// error when no adapter is configured.
func newAdapter(c *cli.Context, cfg config.AdapterConfig) (adapter.Adapter, error) {
	kind := flagOr(c, "adapter", cfg.Type)
	url := flagOr(c, "adapter-url", cfg.URL)
	retries := webhook.DefaultRetries
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	switch kind {
	case "":
		return nil, nil
	case config.AdapterWebhook:
		a, err := webhook.New(webhook.Config{
			URL:     url,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case config.AdapterRedis:
		a, err := redis.New(redis.Config{
			URL:     url,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter: %s (must be webhook or redis)", kind)
	}
}
