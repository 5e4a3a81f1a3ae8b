package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/rehearse/types"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// SessionFilter narrows QuerySessions. Zero fields match everything.
type SessionFilter struct {
	Outcome    types.Outcome
	QuestionID string
	Day        string
	// Limit caps the number of records returned (0 means no limit).
	Limit int
}

func (f SessionFilter) matches(rec SessionRecord) bool {
	if f.Outcome != "" && rec.Outcome != f.Outcome {
		return false
	}
	if f.QuestionID != "" && rec.QuestionID != f.QuestionID {
		return false
	}
	if f.Day != "" && rec.Day != f.Day {
		return false
	}
	return true
}

// QuerySessions returns session records, newest first.
func QuerySessions(ctx context.Context, ds lode.Dataset, filter SessionFilter) ([]SessionRecord, error) {
	var out []SessionRecord
	err := eachRecord(ctx, ds, RecordKindSession, filter.Day, func(m map[string]any) (bool, error) {
		var rec SessionRecord
		if err := fromRecordMap(m, &rec); err != nil {
			return false, err
		}
		if !filter.matches(rec) {
			return true, nil
		}
		out = append(out, rec)
		return filter.Limit == 0 || len(out) < filter.Limit, nil
	})
	return out, err
}

// QueryLatestMetrics returns the most recent metrics record, or
// ErrNoMetricsFound if none exist.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset) (*MetricsRecord, error) {
	var found *MetricsRecord
	err := eachRecord(ctx, ds, RecordKindMetrics, "", func(m map[string]any) (bool, error) {
		var rec MetricsRecord
		if err := fromRecordMap(m, &rec); err != nil {
			return false, err
		}
		found = &rec
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNoMetricsFound
	}
	return found, nil
}

// eachRecord visits records of kind from the newest snapshot to the
// oldest. Within a snapshot, records are visited last to first. fn returns
// false to stop.
func eachRecord(ctx context.Context, ds lode.Dataset, kind, day string, fn func(map[string]any) (bool, error)) error {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return WrapReadError(err, "snapshots")
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotHasKind(snap, kind) {
			continue
		}
		if day != "" && !snapshotHasPartition(snap, "day", day) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are
		// authoritative.
		for j := len(data) - 1; j >= 0; j-- {
			m, ok := data[j].(map[string]any)
			if !ok || m["record_kind"] != kind {
				continue
			}
			more, err := fn(m)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	}
	return nil
}

func snapshotHasPartition(snap *lode.Snapshot, key, value string) bool {
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}
