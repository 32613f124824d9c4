package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nodeforge/nodeforge/pkg/kv"
	"github.com/nodeforge/nodeforge/pkg/prompt"
)

// FillFunc populates one cached file. It receives the open file
// handle positioned at the start, the file's real path, and a retry
// flag that is false on the first attempt and true on every
// operator-approved retry.
type FillFunc func(ctx context.Context, f *os.File, path string, retry bool) error

// FillFile ensures the cached file at key is present and valid,
// (re)populating it with fill when it is not. A valid existing entry
// is a cache hit and fill never runs. On a fill failure the operator
// chooses between retrying and aborting: retry truncates the file to
// zero and invokes fill again with the retry flag set; abort
// propagates the fill error. Without an operator (non-interactive
// session) the first failure aborts. The loop is operator-gated, not
// count-bounded.
func (w *Workspace) FillFile(ctx context.Context, key kv.Key, fill FillFunc) error {
	if ref, ok := w.GetFile(key); ok {
		validity, err := w.ValidateFile(key)
		if err != nil {
			return err
		}
		if validity == Valid {
			w.metrics.RecordCacheHit(key.String())
			w.log.Debug().Str("key", key.String()).Str("path", ref.Path).Msg("cached file is valid")
			return nil
		}
		w.log.Warn().Str("key", key.String()).Str("validity", string(validity)).
			Msg("cached file needs refill")
	} else {
		w.metrics.RecordCacheMiss(key.String())
	}

	f, path, reused, err := w.CreateCachedFile(ctx, key)
	if err != nil {
		return err
	}
	defer f.Close()

	// The operator chose to adopt a pre-existing file: register it
	// as-is instead of filling.
	if reused {
		w.log.Info().Str("key", key.String()).Str("path", path).Msg("adopting existing file")
		return w.RegisterFile(key)
	}

	retry := false
	for {
		fillErr := fill(ctx, f, path, retry)
		if fillErr == nil {
			break
		}

		w.log.Error().Err(fillErr).Str("key", key.String()).Msg("cache fill failed")
		again, promptErr := w.prompter.Confirm(ctx,
			fmt.Sprintf("Filling the cache for %s failed. Retry?", key))
		if promptErr != nil {
			if errors.Is(promptErr, prompt.ErrNonInteractive) {
				return fillErr
			}
			return fmt.Errorf("retry prompt: %w", promptErr)
		}
		if !again {
			return fillErr
		}

		if err := truncateToStart(f); err != nil {
			return err
		}
		retry = true
		w.metrics.RecordFillRetry(key.String())
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync cached file %s: %w", key, err)
	}
	return w.RegisterFile(key)
}

func truncateToStart(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate cached file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind cached file: %w", err)
	}
	return nil
}
