// Package journal persists ended sessions and metrics snapshots to a Lode
// dataset.
//
// Records are JSONL, Hive-partitioned by day and record_kind. The journal
// never stores media; only session outcomes and counters.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/rehearse/log"
	"github.com/justapithecus/rehearse/metrics"
	"github.com/justapithecus/rehearse/session"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "rehearse"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "record_kind"}

// Journal writes session and metrics records.
type Journal struct {
	dataset lode.Dataset
	path    string
	metrics *metrics.Collector
	logger  *log.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithMetrics counts journal writes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(j *Journal) { j.metrics = c }
}

// WithLogger sets the logger used by Observer.
func WithLogger(l *log.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// Open creates a journal with filesystem storage under root.
func Open(dataset, root string, opts ...Option) (*Journal, error) {
	return OpenWithFactory(dataset, lode.NewFSFactory(root), opts...)
}

// OpenWithFactory creates a journal with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func OpenWithFactory(dataset string, factory lode.StoreFactory, opts ...Option) (*Journal, error) {
	ds, err := NewReadDataset(dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	j := &Journal{dataset: ds, path: string(ds.ID()), logger: log.Nop()}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Dataset returns the underlying dataset for queries.
func (j *Journal) Dataset() lode.Dataset {
	return j.dataset
}

// WriteSession stores one session record.
func (j *Journal) WriteSession(ctx context.Context, rec SessionRecord) error {
	if rec.SessionID == "" {
		return errors.New("journal: session record without session id")
	}
	return j.write(ctx, rec)
}

// WriteMetrics stores a metrics snapshot taken at at.
func (j *Journal) WriteMetrics(ctx context.Context, snap metrics.Snapshot, at time.Time) error {
	return j.write(ctx, newMetricsRecord(snap, at))
}

func (j *Journal) write(ctx context.Context, rec any) error {
	m, err := toRecordMap(rec)
	if err != nil {
		return err
	}
	if _, err := j.dataset.Write(ctx, []any{m}, lode.Metadata{}); err != nil {
		j.metrics.IncJournalWriteFailure()
		return WrapWriteError(err, j.path)
	}
	j.metrics.IncJournalWriteSuccess()
	return nil
}

// Observer returns a session observer that journals every ended session.
// Write failures are logged and never affect the session.
func (j *Journal) Observer(ctx context.Context) session.Observer {
	return func(tr session.Transition) {
		rec, ok := SessionRecordFrom(tr)
		if !ok {
			return
		}
		if err := j.WriteSession(ctx, rec); err != nil {
			j.logger.With(tr.Meta()).Error("journal write failed", map[string]any{
				"outcome": string(rec.Outcome),
				"error":   err.Error(),
			})
		}
	}
}

// Close releases journal resources.
func (j *Journal) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}
