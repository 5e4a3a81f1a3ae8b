package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/rehearse/cli/render"
	"github.com/justapithecus/rehearse/journal"
	"github.com/justapithecus/rehearse/types"
)

// queryTimeout bounds journal reads.
const queryTimeout = 30 * time.Second

// historyWarningThreshold is the number of records above which we warn about using --limit.
const historyWarningThreshold = 100

// HistoryRow is the table view of a journaled session.
type HistoryRow struct {
	EndedAt      string              `json:"ended_at"`
	SessionID    string              `json:"session_id"`
	QuestionID   string              `json:"question_id"`
	Difficulty   types.Difficulty    `json:"difficulty"`
	Outcome      types.Outcome       `json:"outcome"`
	Reason       types.FailureReason `json:"reason"`
	Chunks       int                 `json:"chunks"`
	Bytes        int64               `json:"bytes"`
	SaveAttempts int                 `json:"save_attempts"`
	Duration     time.Duration       `json:"duration"`
}

func historyRows(records []journal.SessionRecord) []HistoryRow {
	rows := make([]HistoryRow, len(records))
	for i, rec := range records {
		rows[i] = HistoryRow{
			EndedAt:      rec.EndedAt,
			SessionID:    rec.SessionID,
			QuestionID:   rec.QuestionID,
			Difficulty:   rec.Difficulty,
			Outcome:      rec.Outcome,
			Reason:       rec.Reason,
			Chunks:       rec.Chunks,
			Bytes:        rec.Bytes,
			SaveAttempts: rec.SaveAttempts,
			Duration:     (time.Duration(rec.DurationMS) * time.Millisecond).Round(time.Millisecond),
		}
	}
	return rows
}

// HistoryCommand returns the history command.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List journaled sessions, newest first",
		Flags: append(append(ReadOnlyFlags(), journalFlags()...),
			&cli.StringFlag{
				Name:  "outcome",
				Usage: "Filter by outcome: saved, failed, cancelled",
			},
			&cli.StringFlag{
				Name:  "question",
				Usage: "Filter by question ID",
			},
			&cli.StringFlag{
				Name:  "day",
				Usage: "Filter by day (YYYY-MM-DD, UTC)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of sessions to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for history command", exitUsage)
	}

	filter, err := historyFilter(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
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

	records, err := journal.QuerySessions(ctx, j.Dataset(), filter)
	if err != nil {
		return fmt.Errorf("failed to read sessions: %w", err)
	}

	if filter.Limit == 0 && len(records) > historyWarningThreshold && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: %d sessions returned. Use --limit to reduce output.\n", len(records))
	}

	if r.Format() == render.FormatTable {
		return r.Render(historyRows(records))
	}
	if records == nil {
		records = []journal.SessionRecord{}
	}
	return r.Render(records)
}

func historyFilter(c *cli.Context) (journal.SessionFilter, error) {
	filter := journal.SessionFilter{
		QuestionID: c.String("question"),
		Day:        c.String("day"),
		Limit:      c.Int("limit"),
	}
	if filter.Limit < 0 {
		return filter, fmt.Errorf("invalid limit: %d (must be >= 0)", filter.Limit)
	}
	if filter.Day != "" {
		if _, err := time.Parse(time.DateOnly, filter.Day); err != nil {
			return filter, fmt.Errorf("invalid day: %q (must be YYYY-MM-DD)", filter.Day)
		}
	}
	switch outcome := types.Outcome(c.String("outcome")); outcome {
	case "", types.OutcomeSaved, types.OutcomeFailed, types.OutcomeCancelled:
		filter.Outcome = outcome
	default:
		return filter, fmt.Errorf("invalid outcome: %q (must be saved, failed, or cancelled)", outcome)
	}
	return filter, nil
}
