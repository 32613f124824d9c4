// Package dirstate captures point-in-time snapshots of a directory
// subtree and computes itemized diffs between two snapshots. The
// workspace uses it to detect when a cached file has gone stale
// relative to the live filesystem.
package dirstate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Fingerprint identifies one file's content signature: its size plus
// its modification time in unix nanoseconds. Two fingerprints that
// differ in either field mean the file changed.
type Fingerprint struct {
	Size    int64 `json:"size"`
	ModTime int64 `json:"mod_time"`
}

// Equal reports whether two fingerprints match.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Size == other.Size && f.ModTime == other.ModTime
}

// DirectoryState is an immutable snapshot of one directory subtree:
// a mapping from relative file path to fingerprint, taken at one
// instant.
type DirectoryState struct {
	// Root is the absolute path the snapshot was taken from.
	Root string `json:"root"`

	// Files maps slash-separated relative paths to fingerprints.
	Files map[string]Fingerprint `json:"files"`
}

// Snapshot walks root recursively and records a fingerprint for every
// regular file. A missing root yields an empty snapshot: a directory
// that has not been created yet is not an error. Any other I/O
// failure during the walk is.
func Snapshot(root string) (DirectoryState, error) {
	state := DirectoryState{
		Root:  root,
		Files: make(map[string]Fingerprint),
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		state.Files[filepath.ToSlash(rel)] = Fingerprint{
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
		}
		return nil
	})
	if err != nil {
		return DirectoryState{}, fmt.Errorf("snapshot %s: %w", root, err)
	}
	return state, nil
}

// SnapshotFile fingerprints a single file. The boolean result is
// false when the file does not exist.
func SnapshotFile(path string) (Fingerprint, bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Fingerprint{}, false, nil
	}
	if err != nil {
		return Fingerprint{}, false, fmt.Errorf("stat %s: %w", path, err)
	}
	return Fingerprint{Size: info.Size(), ModTime: info.ModTime().UnixNano()}, true, nil
}
