package dirstate

import "sort"

// FileStatus classifies one path when comparing two snapshots.
type FileStatus string

const (
	// StatusAdded means the path exists only in the newer snapshot.
	StatusAdded FileStatus = "added"

	// StatusRemoved means the path exists only in the older snapshot.
	StatusRemoved FileStatus = "removed"

	// StatusModified means the path exists in both snapshots with
	// differing fingerprints.
	StatusModified FileStatus = "modified"

	// StatusUnchanged means the path exists in both snapshots with
	// equal fingerprints.
	StatusUnchanged FileStatus = "unchanged"
)

// FileDiff is the classification of a single path in a snapshot
// comparison.
type FileDiff struct {
	// Path is the slash-separated path relative to the snapshot root.
	Path string `json:"path"`

	// Status is the classification of this path.
	Status FileStatus `json:"status"`
}

// Diff compares two snapshots and classifies every path in the union
// of their file sets. Each path appears exactly once; output is
// sorted by path for reproducibility.
func Diff(old, new DirectoryState) []FileDiff {
	paths := make(map[string]struct{}, len(old.Files)+len(new.Files))
	for p := range old.Files {
		paths[p] = struct{}{}
	}
	for p := range new.Files {
		paths[p] = struct{}{}
	}

	diffs := make([]FileDiff, 0, len(paths))
	for p := range paths {
		oldFp, inOld := old.Files[p]
		newFp, inNew := new.Files[p]

		var status FileStatus
		switch {
		case !inOld:
			status = StatusAdded
		case !inNew:
			status = StatusRemoved
		case !oldFp.Equal(newFp):
			status = StatusModified
		default:
			status = StatusUnchanged
		}
		diffs = append(diffs, FileDiff{Path: p, Status: status})
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })
	return diffs
}
