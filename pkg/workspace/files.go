package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nodeforge/nodeforge/pkg/dirstate"
	"github.com/nodeforge/nodeforge/pkg/kv"
)

// Validity classifies a file-reference entry against the live
// filesystem.
type Validity string

const (
	// Valid means the live file's fingerprint matches the entry.
	Valid Validity = "valid"

	// Stale means the file exists but its fingerprint differs from
	// the one captured at registration.
	Stale Validity = "stale"

	// Missing means the referenced file no longer exists.
	Missing Validity = "missing"
)

// ResolvePath maps a key's file-bearing form to its real path inside
// the managed file area. The mapping is deterministic: two runs or
// two procedures sharing a key share the same file, and unrelated
// keys never collide (key validation forbids traversal components).
func (w *Workspace) ResolvePath(key kv.Key) string {
	return filepath.Join(w.filesDir, filepath.FromSlash(key.String()))
}

// CreateCachedFile creates a writable file at ResolvePath(key) and
// returns the handle plus its real path. With a registered entry the
// file is truncated for rewriting. When a file already exists on disk
// without a registered entry, the operator chooses between overwriting
// it and keeping it; keeping it is reported through the reused result,
// and the file's content is left intact for the caller to adopt as-is.
// The entry itself is registered by RegisterFile once writing (or
// adoption) completes.
func (w *Workspace) CreateCachedFile(ctx context.Context, key kv.Key) (f *os.File, path string, reused bool, err error) {
	path = w.ResolvePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", false, fmt.Errorf("create cache file parent: %w", err)
	}

	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if _, registered := w.GetFile(key); !registered {
		if _, statErr := os.Stat(path); statErr == nil {
			w.log.Warn().Str("key", key.String()).Str("path", path).
				Msg("cached file exists on disk without an entry")
			overwrite, err := w.prompter.Confirm(ctx,
				fmt.Sprintf("A file already exists for %s. Overwrite it?", key))
			if err != nil {
				return nil, "", false, fmt.Errorf("resolve file conflict for %s: %w", key, err)
			}
			if !overwrite {
				flags &^= os.O_TRUNC
				reused = true
			}
		}
	}

	f, err = os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, "", false, fmt.Errorf("create cached file %s: %w", key, err)
	}
	return f, path, reused, nil
}

// RegisterFile fingerprints the file at ResolvePath(key) and records
// the file-reference entry. The file must exist.
func (w *Workspace) RegisterFile(key kv.Key) error {
	path := w.ResolvePath(key)
	fp, exists, err := dirstate.SnapshotFile(path)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("register file %s: %s does not exist", key, path)
	}
	w.store.PutFile(key, path, fp)
	return w.persistUnlessBatching()
}

// ValidateFile re-checks a file-reference entry's fingerprint against
// the live file.
func (w *Workspace) ValidateFile(key kv.Key) (Validity, error) {
	ref, ok := w.GetFile(key)
	if !ok {
		return "", fmt.Errorf("key %s has no file entry", key)
	}
	fp, exists, err := dirstate.SnapshotFile(ref.Path)
	if err != nil {
		return "", err
	}
	if !exists {
		return Missing, nil
	}
	if !fp.Equal(ref.Fingerprint) {
		w.metrics.RecordCacheStale(key.String())
		return Stale, nil
	}
	return Valid, nil
}

// SnapshotFiles captures the current state of the managed file area.
func (w *Workspace) SnapshotFiles() (dirstate.DirectoryState, error) {
	return dirstate.Snapshot(w.filesDir)
}
