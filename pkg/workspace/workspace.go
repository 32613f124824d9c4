// Package workspace implements the façade procedures use for all
// persistent interaction: the durable key/value store, the managed
// file area, path resolution, cached-file validation and the
// cache-fill retry loop. One Workspace owns one provisioning
// workspace root exclusively for the lifetime of one process run.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nodeforge/nodeforge/pkg/cache"
	"github.com/nodeforge/nodeforge/pkg/kv"
	"github.com/nodeforge/nodeforge/pkg/prompt"
	"github.com/nodeforge/nodeforge/pkg/telemetry"
)

const (
	// FilesDirName is the managed file area inside the workspace root.
	FilesDirName = "files"

	// TempDirName holds scoped temporary paths; it is wiped and
	// recreated on every open.
	TempDirName = "tmp"

	lockFileName = ".lock"
)

// ErrCommitFailed marks a batch whose staged writes could not be
// persisted. The staged writes are rolled back before the error is
// returned; the workspace on disk and in memory still reflects the
// last committed state. The condition is not retryable within the
// run: the store file location itself failed a write.
var ErrCommitFailed = errors.New("commit staged writes")

// Options configures a Workspace. Zero-value fields get usable
// defaults.
type Options struct {
	// Logger receives workspace log events.
	Logger *telemetry.Logger

	// Metrics receives cache and persistence metrics.
	Metrics *telemetry.Metrics

	// Prompter answers retry and overwrite questions. Defaults to a
	// terminal prompter that aborts when stdin is not a TTY.
	Prompter prompt.Prompter
}

// Workspace combines the cache store and the managed file area for
// one workspace root. It assumes single-writer access for the
// duration of one process run, enforced by an advisory lock taken on
// Open.
type Workspace struct {
	root     string
	filesDir string
	tempDir  string

	store    *cache.Store
	lock     *flockGuard
	log      *telemetry.Logger
	metrics  *telemetry.Metrics
	prompter prompt.Prompter

	// batching suspends write-through persistence; see Batch.
	batching bool

	// persist writes the store to disk; tests substitute a failing
	// implementation to exercise commit-failure rollback.
	persist func() error
}

// Open loads (or initializes) the workspace at root. It creates the
// managed file area, recreates the temp dir, acquires the advisory
// lock and loads the store file. A present-but-corrupt store file is
// a fatal error.
func Open(root string, opts Options) (*Workspace, error) {
	if opts.Logger == nil {
		l, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "info", Output: "stderr"})
		if err != nil {
			return nil, err
		}
		opts.Logger = l
	}
	if opts.Metrics == nil {
		m, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: false})
		if err != nil {
			return nil, err
		}
		opts.Metrics = m
	}
	if opts.Prompter == nil {
		opts.Prompter = prompt.NewTerminal(false)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	lock, err := acquireLock(filepath.Join(root, lockFileName))
	if err != nil {
		return nil, err
	}

	filesDir := filepath.Join(root, FilesDirName)
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		lock.release()
		return nil, fmt.Errorf("create managed file area: %w", err)
	}

	// Leftover temp paths from a killed run are garbage; start clean.
	tempDir := filepath.Join(root, TempDirName)
	if err := os.RemoveAll(tempDir); err != nil {
		lock.release()
		return nil, fmt.Errorf("clear temp dir: %w", err)
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		lock.release()
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	store := cache.NewStore(root)
	if err := store.Load(); err != nil {
		lock.release()
		return nil, err
	}

	ws := &Workspace{
		root:     root,
		filesDir: filesDir,
		tempDir:  tempDir,
		store:    store,
		lock:     lock,
		log:      opts.Logger.NewComponentLogger("workspace"),
		metrics:  opts.Metrics,
		prompter: opts.Prompter,
	}
	ws.persist = store.Persist
	ws.log.Debug().Str("root", root).Int("entries", store.Len()).Msg("workspace opened")
	return ws, nil
}

// Close releases the advisory lock and removes the temp dir. The
// store is not persisted here: every mutation path persists
// explicitly, so Close never hides a missed write.
func (w *Workspace) Close() error {
	if err := os.RemoveAll(w.tempDir); err != nil {
		w.lock.release()
		return fmt.Errorf("remove temp dir: %w", err)
	}
	return w.lock.release()
}

// Root returns the workspace root path.
func (w *Workspace) Root() string { return w.root }

// Keys returns all cache keys in sorted order.
func (w *Workspace) Keys() []kv.Key { return w.store.Keys() }

// GetValue returns the inline value stored at key. The boolean is
// false when the key is absent. A key holding a file reference is an
// error: callers wanting the file go through ResolvePath or
// ValidateFile.
func (w *Workspace) GetValue(key kv.Key) (kv.Value, bool, error) {
	entry, ok := w.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	if entry.File != nil {
		return nil, false, fmt.Errorf("key %s holds a file reference, not a value", key)
	}
	return entry.Value, true, nil
}

// GetFile returns the file reference stored at key, if any.
func (w *Workspace) GetFile(key kv.Key) (*cache.FileRef, bool) {
	entry, ok := w.store.Get(key)
	if !ok || entry.File == nil {
		return nil, false
	}
	return entry.File, true
}

// PutValue inserts or overwrites an inline value. Last write wins.
// Outside a batch the store is persisted immediately (write-through);
// inside a batch persistence is deferred to the batch commit.
func (w *Workspace) PutValue(key kv.Key, value kv.Value) error {
	w.store.Put(key, value)
	return w.persistUnlessBatching()
}

// RemoveValue deletes a key.
func (w *Workspace) RemoveValue(key kv.Key) error {
	w.store.Remove(key)
	return w.persistUnlessBatching()
}

// Batch suspends write-through persistence for the duration of fn and
// issues exactly one Persist when fn succeeds, so all of fn's writes
// become visible atomically. When fn fails, or the commit Persist
// itself fails, the in-memory store is reloaded from disk: a failed
// step leaves no trace, not a partial one. A commit failure is
// reported as ErrCommitFailed so callers can tell it apart from a
// failure inside fn.
func (w *Workspace) Batch(fn func() error) error {
	if w.batching {
		return fmt.Errorf("nested workspace batch")
	}
	w.batching = true
	err := fn()
	w.batching = false

	if err != nil {
		if loadErr := w.store.Load(); loadErr != nil {
			return fmt.Errorf("roll back staged writes: %w", loadErr)
		}
		return err
	}
	if err := w.persistNow(); err != nil {
		if loadErr := w.store.Load(); loadErr != nil {
			return fmt.Errorf("%w: %v (roll back staged writes: %v)", ErrCommitFailed, err, loadErr)
		}
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	return nil
}

func (w *Workspace) persistUnlessBatching() error {
	if w.batching {
		return nil
	}
	return w.persistNow()
}

func (w *Workspace) persistNow() error {
	if err := w.persist(); err != nil {
		return err
	}
	w.metrics.RecordStorePersist()
	return nil
}
