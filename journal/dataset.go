package journal

import (
	"strings"

	"github.com/justapithecus/lode/lode"
)

// NewReadDataset creates a Lode Dataset with the journal's codec and layout.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewReadDatasetFS creates a read Dataset with filesystem storage.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(rootPath))
}

// snapshotHasKind checks whether any file of snap lies in the
// record_kind=kind partition.
func snapshotHasKind(snap *lode.Snapshot, kind string) bool {
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, "record_kind", kind) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so day=2026-01-1 never matches day=2026-01-10.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
