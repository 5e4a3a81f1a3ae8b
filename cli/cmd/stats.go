package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/rehearse/cli/render"
	"github.com/justapithecus/rehearse/cli/tui"
	"github.com/justapithecus/rehearse/journal"
)

// StatsCommand returns the stats command.
// Stats shows the most recent metrics snapshot written to the journal.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show the latest session metrics from the journal",
		Flags:  append(ReadOnlyFlags(), journalFlags()...),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, queryTimeout)
	defer cancel()

	j, err := requireJournal(ctx, c, cfg.Journal)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	record, err := journal.QueryLatestMetrics(ctx, j.Dataset())
	if errors.Is(err, journal.ErrNoMetricsFound) {
		return cli.Exit("no metrics recorded yet; run a rehearsal with a journal first", exitUsage)
	}
	if err != nil {
		return fmt.Errorf("failed to read metrics: %w", err)
	}

	if c.Bool("tui") {
		return tui.RunStats(record.Snapshot, record.Ts)
	}
	return r.Render(record)
}
