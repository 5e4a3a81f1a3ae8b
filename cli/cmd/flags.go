// Package cmd provides CLI commands for the rehearse binary.
package cmd

import (
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/rehearse/cli/config"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for rehearse and stats.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (rehearse, stats only)",
	}
)

// Global flags, read by every command through the context lineage.
var (
	// ConfigFlag names the rehearse.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to config file (default rehearse.yaml if present)",
		EnvVars: []string{"REHEARSE_CONFIG"},
	}

	// EnvFileFlag names a .env file loaded before the config is parsed.
	EnvFileFlag = &cli.StringFlag{
		Name:  "env-file",
		Usage: "Path to .env file (default .env if present)",
	}

	// LogLevelFlag overrides log_level from the config file.
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error",
		EnvVars: []string{"REHEARSE_LOG_LEVEL"},
	}
)

// GlobalFlags returns the application-level flags.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		EnvFileFlag,
		LogLevelFlag,
	}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// apiFlags configure the interview service client.
func apiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api-url",
			Usage:   "Interview service base URL (overrides api.base_url)",
			EnvVars: []string{"REHEARSE_API_URL"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Bearer token for the interview service (overrides api.token)",
			EnvVars: []string{"REHEARSE_TOKEN"},
		},
		&cli.StringFlag{
			Name:  "token-file",
			Usage: "File holding the bearer token, re-read per request",
		},
	}
}

// recordingFlags configure the device gateway and the encoder.
func recordingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "device",
			Usage: "Capture source: host or test_pattern",
			Value: config.DeviceHost,
		},
		&cli.StringFlag{
			Name:  "video-device",
			Usage: "Camera node, e.g. /dev/video0 (default: first found)",
		},
		&cli.StringFlag{
			Name:  "audio-device",
			Usage: "ALSA capture device, e.g. hw:1,0 (default: first found)",
		},
		&cli.StringFlag{
			Name:  "encoder",
			Usage: "Encoder binary",
			Value: "ffmpeg",
		},
		&cli.StringFlag{
			Name:  "output-mode",
			Usage: "Encoder output handling: raw or framed",
			Value: "raw",
		},
		&cli.IntFlag{
			Name:  "chunk-bytes",
			Usage: "Maximum raw chunk size in bytes (0 = default)",
		},
		&cli.DurationFlag{
			Name:  "stop-grace",
			Usage: "How long the encoder may flush after stop before it is killed",
			Value: 5 * time.Second,
		},
		&cli.StringFlag{
			Name:  "media-type",
			Usage: "Media type of the uploaded recording",
		},
	}
}

// journalFlags configure the session journal.
func journalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "journal-backend",
			Usage: "Journal storage backend: fs or s3",
			Value: config.BackendFS,
		},
		&cli.StringFlag{
			Name:    "journal-path",
			Usage:   "Journal storage path (fs: directory, s3: bucket/prefix); empty disables the journal",
			EnvVars: []string{"REHEARSE_JOURNAL_PATH"},
		},
		&cli.StringFlag{
			Name:  "journal-s3-region",
			Usage: "AWS region for the S3 backend (optional, uses default chain)",
		},
	}
}

// adapterFlags configure saved-recording notifications.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Notification adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook endpoint or Redis URL",
		},
	}
}

// flagOr returns the named flag when it was set on the command line or in
// the environment, then fallback when non-empty, then the flag default.
func flagOr(c *cli.Context, name, fallback string) string {
	if c.IsSet(name) || fallback == "" {
		return c.String(name)
	}
	return fallback
}

// intFlagOr is flagOr for int flags. A zero fallback counts as unset.
func intFlagOr(c *cli.Context, name string, fallback int) int {
	if c.IsSet(name) || fallback == 0 {
		return c.Int(name)
	}
	return fallback
}

// durationOr returns the named duration flag when set, else fallback.
func durationOr(c *cli.Context, name string, fallback time.Duration) time.Duration {
	if c.IsSet(name) || fallback == 0 {
		return c.Duration(name)
	}
	return fallback
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
