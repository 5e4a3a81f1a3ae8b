package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/rehearse/adapter"
	"github.com/justapithecus/rehearse/api"
	"github.com/justapithecus/rehearse/cli/config"
	"github.com/justapithecus/rehearse/cli/render"
	"github.com/justapithecus/rehearse/cli/tui"
	"github.com/justapithecus/rehearse/iox"
	"github.com/justapithecus/rehearse/journal"
	"github.com/justapithecus/rehearse/log"
	"github.com/justapithecus/rehearse/metrics"
	"github.com/justapithecus/rehearse/session"
	"github.com/justapithecus/rehearse/types"
	"github.com/justapithecus/rehearse/upload"
)

// Exit codes for rehearse.
const (
	exitSuccess       = 0
	exitUsage         = 1
	exitDeviceDenied  = 2
	exitUploadFailed  = 3
	exitEngineFailure = 4
)

// closeTimeout bounds the final metrics write and sink shutdown.
const closeTimeout = 10 * time.Second

// RehearseCommand returns the rehearse command.
// This is the only command that records.
func RehearseCommand() *cli.Command {
	flags := []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
		&cli.StringFlag{
			Name:    "question",
			Aliases: []string{"q"},
			Usage:   "Question ID to answer (headless mode)",
		},
		&cli.StringFlag{
			Name:    "difficulty",
			Aliases: []string{"d"},
			Usage:   "Question difficulty: easy, medium, hard (headless default: search all)",
			Value:   string(types.DifficultyEasy),
		},
		&cli.DurationFlag{
			Name:  "duration",
			Usage: "Recording length in headless mode (0 = until interrupted)",
			Value: 30 * time.Second,
		},
		&cli.IntFlag{
			Name:  "save-retries",
			Usage: "Automatic retries of a transient save failure in headless mode",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Append logs to this file (TUI mode discards logs otherwise)",
		},
	}
	flags = append(flags, apiFlags()...)
	flags = append(flags, recordingFlags()...)
	flags = append(flags, journalFlags()...)
	flags = append(flags, adapterFlags()...)

	return &cli.Command{
		Name:   "rehearse",
		Usage:  "Record an answer to an interview question",
		Flags:  flags,
		Action: rehearseAction,
	}
}

func rehearseAction(c *cli.Context) error {
	interactive := c.Bool("tui")
	questionID := c.String("question")
	switch {
	case interactive && questionID != "":
		return cli.Exit("--question and --tui are mutually exclusive", exitUsage)
	case !interactive && questionID == "":
		return cli.Exit("either --question (headless) or --tui is required", exitUsage)
	}
	if c.Int("save-retries") < 0 {
		return cli.Exit("--save-retries must be >= 0", exitUsage)
	}

	var difficulty types.Difficulty
	if interactive || c.IsSet("difficulty") {
		d, err := types.ParseDifficulty(c.String("difficulty"))
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		difficulty = d
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logOut, closeLog, err := logWriter(c.String("log-file"), interactive)
	if err != nil {
		return err
	}
	defer closeLog()
	logger, err := newLogger(c, cfg, logOut)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer func() { _ = logger.Sync() }()

	stop, ctx, release := watchInterrupts(c.Context)
	defer release()

	reh, err := newRehearsal(ctx, c, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := reh.close(closeCtx); err != nil {
			logger.Warn("rehearsal shutdown failed", map[string]any{"error": err.Error()})
		}
	}()

	if interactive {
		questions, err := reh.client.Questions(ctx, difficulty)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		uiCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-stop:
				cancel()
			case <-uiCtx.Done():
			}
		}()
		return tui.RunRehearsal(uiCtx, reh.machine, questions)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	q, err := findQuestion(ctx, reh.client, questionID, difficulty)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	h := &headlessRun{
		ctrl:        reh.machine,
		question:    q,
		duration:    c.Duration("duration"),
		saveRetries: c.Int("save-retries"),
		stop:        stop,
		logger:      logger.Sugar(),
	}
	if isStderrTTY() {
		h.prompt = os.Stderr
	}
	ack, runErr := h.run(ctx)

	if err := r.Render(resultOf(reh.machine.Snapshot(), q, ack, runErr)); err != nil {
		return err
	}
	if runErr != nil {
		return cli.Exit(runErr.Error(), exitCodeFor(runErr, reh.machine.Snapshot()))
	}
	return nil
}

// logWriter opens the log destination. Interactive runs discard logs
// unless a log file is named, since stderr shares the terminal with the UI.
func logWriter(path string, interactive bool) (io.Writer, func(), error) {
	switch {
	case path != "":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, func() { iox.DiscardClose(f) }, nil
	case interactive:
		return io.Discard, func() {}, nil
	default:
		return os.Stderr, func() {}, nil
	}
}

// watchInterrupts closes the returned channel on the first SIGINT or
// SIGTERM and cancels the returned context on the second.
func watchInterrupts(parent context.Context) (<-chan struct{}, context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	stop := make(chan struct{})

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			close(stop)
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return stop, ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// rehearsal bundles a session machine with its journal and notifier.
type rehearsal struct {
	machine  *session.Machine
	client   *api.Client
	metrics  *metrics.Collector
	journal  *journal.Journal
	notifier *adapter.Dispatcher
}

// newRehearsal wires the session machine from flags and config. The
// journal and notifier are optional.
func newRehearsal(ctx context.Context, c *cli.Context, cfg *config.Config, logger *log.Logger) (*rehearsal, error) {
	client, err := newAPIClient(c, cfg.API)
	if err != nil {
		return nil, err
	}
	gateway, deviceName, err := newGateway(c, cfg.Recording)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitUsage)
	}
	eng, err := newEngine(c, cfg.Recording, logger)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitUsage)
	}

	backend := "none"
	if flagOr(c, "journal-path", cfg.Journal.Path) != "" {
		backend = journalBackend(c, cfg.Journal)
	}
	collector := metrics.NewCollector(deviceName, flagOr(c, "encoder", cfg.Recording.Encoder), backend)

	// Sinks outlive a cancelled run so the final records still land.
	sinkCtx := context.WithoutCancel(ctx)

	j, err := openJournal(sinkCtx, c, cfg.Journal, journal.WithMetrics(collector), journal.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	a, err := newAdapter(c, cfg.Adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}

	machine, err := session.NewMachine(session.Config{
		Gateway:  gateway,
		Engine:   eng,
		Uploader: upload.NewHTTP(client, flagOr(c, "media-type", cfg.Recording.MediaType)),
		Logger:   logger,
		Metrics:  collector,
	})
	if err != nil {
		return nil, err
	}
	if j != nil {
		machine.Subscribe(j.Observer(sinkCtx))
	}
	var notifier *adapter.Dispatcher
	if a != nil {
		notifier = adapter.NewDispatcher(sinkCtx, a, logger)
		machine.Subscribe(notifier.Observe)
	}

	return &rehearsal{
		machine:  machine,
		client:   client,
		metrics:  collector,
		journal:  j,
		notifier: notifier,
	}, nil
}

// close abandons any open session, writes the final metrics snapshot and
// releases the sinks. Pending notifications are delivered first.
func (r *rehearsal) close(ctx context.Context) error {
	r.machine.Cancel()

	var closers []io.Closer
	var errs []error
	if r.journal != nil {
		if err := r.journal.WriteMetrics(ctx, r.metrics.Snapshot(), time.Now()); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
		closers = append(closers, r.journal)
	}
	if r.notifier != nil {
		closers = append(closers, r.notifier)
	}
	errs = append(errs, iox.CloseAll(closers...))
	return errors.Join(errs...)
}
