package workspace

import (
	"fmt"
	"os"
)

// ReleaseFunc deletes a scoped temporary path. Callers defer it so
// the path is removed on every exit path, including error unwind.
type ReleaseFunc func()

// TempFile creates a temporary file inside the workspace's temp dir.
// The returned release func closes and deletes it.
func (w *Workspace) TempFile(pattern string) (*os.File, ReleaseFunc, error) {
	f, err := os.CreateTemp(w.tempDir, pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	release := func() {
		f.Close()
		os.Remove(f.Name())
	}
	return f, release, nil
}

// TempDir creates a temporary directory inside the workspace's temp
// dir. The returned release func deletes it recursively.
func (w *Workspace) TempDir(pattern string) (string, ReleaseFunc, error) {
	dir, err := os.MkdirTemp(w.tempDir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	release := func() {
		os.RemoveAll(dir)
	}
	return dir, release, nil
}
