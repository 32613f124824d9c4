package workspace

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// flockGuard holds the workspace's advisory lock file. The flock is
// released when the descriptor closes, so an abnormally terminated
// process never leaves the workspace locked.
type flockGuard struct {
	file *os.File
}

// acquireLock takes a non-blocking exclusive flock on path. A second
// concurrent run against the same workspace fails here with a clear
// error instead of corrupting the store.
func acquireLock(path string) (*flockGuard, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("workspace is locked by another nodeforge process")
		}
		return nil, fmt.Errorf("lock workspace: %w", err)
	}
	return &flockGuard{file: file}, nil
}

func (g *flockGuard) release() error {
	if g.file == nil {
		return nil
	}
	err := g.file.Close()
	g.file = nil
	return err
}
