package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nodeforge/nodeforge/pkg/kv"
	"github.com/nodeforge/nodeforge/pkg/prompt"
)

// countingFill fails the first failures attempts, then writes content
type countingFill struct {
	failures int
	content  string
	calls    int
	retries  []bool
}

func (c *countingFill) fill(_ context.Context, f *os.File, _ string, retry bool) error {
	c.calls++
	c.retries = append(c.retries, retry)

	// Leave debris behind so a retry that skips truncation is visible.
	if _, err := f.WriteString("partial-"); err != nil {
		return err
	}
	if c.calls <= c.failures {
		return fmt.Errorf("transient failure %d", c.calls)
	}
	if err := truncateToStart(f); err != nil {
		return err
	}
	_, err := f.WriteString(c.content)
	return err
}

func readCachedFile(t *testing.T, ws *Workspace, key kv.Key) string {
	t.Helper()

	data, err := os.ReadFile(ws.ResolvePath(key))
	if err != nil {
		t.Fatalf("read cached file %s: %v", key, err)
	}
	return string(data)
}

// TestFillFileSuccess tests the straight-line fill path: one call,
// entry registered, file valid
func TestFillFileSuccess(t *testing.T) {
	ws := openTestWorkspace(t, &scriptedPrompter{})
	key := kv.Key("image/disk.img")
	fill := &countingFill{content: "image-bytes"}

	if err := ws.FillFile(context.Background(), key, fill.fill); err != nil {
		t.Fatalf("fill: %v", err)
	}

	if fill.calls != 1 {
		t.Errorf("fill ran %d times, want 1", fill.calls)
	}
	if got := readCachedFile(t, ws, key); got != "image-bytes" {
		t.Errorf("file content = %q", got)
	}
	validity, err := ws.ValidateFile(key)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validity != Valid {
		t.Errorf("validity = %s, want valid", validity)
	}
}

// TestFillFileCacheHit tests that a valid entry short-circuits the
// fill entirely
func TestFillFileCacheHit(t *testing.T) {
	ws := openTestWorkspace(t, &scriptedPrompter{})
	key := kv.Key("image/disk.img")

	first := &countingFill{content: "image-bytes"}
	if err := ws.FillFile(context.Background(), key, first.fill); err != nil {
		t.Fatalf("first fill: %v", err)
	}

	second := &countingFill{content: "should never be written"}
	if err := ws.FillFile(context.Background(), key, second.fill); err != nil {
		t.Fatalf("second fill: %v", err)
	}

	if second.calls != 0 {
		t.Errorf("fill ran %d times on a cache hit, want 0", second.calls)
	}
	if got := readCachedFile(t, ws, key); got != "image-bytes" {
		t.Errorf("cached content clobbered: %q", got)
	}
}

// TestFillFileRetryLoop tests the operator-gated retry loop: two
// failures with retry approved each time, then success with a clean
// file
func TestFillFileRetryLoop(t *testing.T) {
	prompter := &scriptedPrompter{answers: []bool{true, true}}
	ws := openTestWorkspace(t, prompter)
	key := kv.Key("image/archive")
	fill := &countingFill{failures: 2, content: "finally"}

	if err := ws.FillFile(context.Background(), key, fill.fill); err != nil {
		t.Fatalf("fill: %v", err)
	}

	if fill.calls != 3 {
		t.Fatalf("fill ran %d times, want 3", fill.calls)
	}
	wantRetries := []bool{false, true, true}
	for i, r := range fill.retries {
		if r != wantRetries[i] {
			t.Errorf("attempt %d retry flag = %v, want %v", i, r, wantRetries[i])
		}
	}
	if len(prompter.asked) != 2 {
		t.Errorf("operator asked %d times, want 2", len(prompter.asked))
	}

	// Debris from failed attempts must not survive the truncation
	// between attempts.
	if got := readCachedFile(t, ws, key); got != "finally" {
		t.Errorf("file content = %q, want %q", got, "finally")
	}
}

// TestFillFileRetryDeclined tests that declining the retry propagates
// the fill error and registers nothing
func TestFillFileRetryDeclined(t *testing.T) {
	ws := openTestWorkspace(t, &scriptedPrompter{answers: []bool{false}})
	key := kv.Key("image/archive")
	fill := &countingFill{failures: 10, content: "unreachable"}

	err := ws.FillFile(context.Background(), key, fill.fill)
	if err == nil || err.Error() != "transient failure 1" {
		t.Fatalf("fill error = %v, want the fill failure", err)
	}
	if fill.calls != 1 {
		t.Errorf("fill ran %d times, want 1", fill.calls)
	}
	if _, ok := ws.GetFile(key); ok {
		t.Error("failed fill registered an entry")
	}
}

// TestFillFileNonInteractive tests that without an operator the first
// failure aborts with the fill error, not the prompt error
func TestFillFileNonInteractive(t *testing.T) {
	ws := openTestWorkspace(t, &scriptedPrompter{err: prompt.ErrNonInteractive})
	key := kv.Key("image/archive")
	fill := &countingFill{failures: 10}

	err := ws.FillFile(context.Background(), key, fill.fill)
	if err == nil || errors.Is(err, prompt.ErrNonInteractive) {
		t.Fatalf("fill error = %v, want the underlying fill failure", err)
	}
	if fill.calls != 1 {
		t.Errorf("fill ran %d times, want 1", fill.calls)
	}
}

// TestFillFileStaleRefill tests that a fingerprint mismatch forces a
// refill
func TestFillFileStaleRefill(t *testing.T) {
	ws := openTestWorkspace(t, &scriptedPrompter{})
	key := kv.Key("image/disk.img")

	first := &countingFill{content: "v1"}
	if err := ws.FillFile(context.Background(), key, first.fill); err != nil {
		t.Fatalf("first fill: %v", err)
	}

	// Age the file so its fingerprint no longer matches the entry.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(ws.ResolvePath(key), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if validity, _ := ws.ValidateFile(key); validity != Stale {
		t.Fatalf("validity = %s, want stale", validity)
	}

	second := &countingFill{content: "v2"}
	if err := ws.FillFile(context.Background(), key, second.fill); err != nil {
		t.Fatalf("refill: %v", err)
	}
	if second.calls != 1 {
		t.Errorf("refill ran %d times, want 1", second.calls)
	}
	if got := readCachedFile(t, ws, key); got != "v2" {
		t.Errorf("content = %q, want v2", got)
	}
	if validity, _ := ws.ValidateFile(key); validity != Valid {
		t.Errorf("validity after refill = %s, want valid", validity)
	}
}

// TestFillFileAdoptsExisting tests the conflict path: a file on disk
// without an entry is kept when the operator declines the overwrite,
// and the fill never runs
func TestFillFileAdoptsExisting(t *testing.T) {
	prompter := &scriptedPrompter{answers: []bool{false}}
	ws := openTestWorkspace(t, prompter)
	key := kv.Key("image/disk.img")

	path := ws.ResolvePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("hand-placed"), 0o644); err != nil {
		t.Fatalf("plant file: %v", err)
	}

	fill := &countingFill{content: "unwanted"}
	if err := ws.FillFile(context.Background(), key, fill.fill); err != nil {
		t.Fatalf("fill: %v", err)
	}

	if fill.calls != 0 {
		t.Errorf("fill ran %d times on an adopted file, want 0", fill.calls)
	}
	if got := readCachedFile(t, ws, key); got != "hand-placed" {
		t.Errorf("adopted content = %q", got)
	}
	if validity, _ := ws.ValidateFile(key); validity != Valid {
		t.Errorf("validity = %s, want valid", validity)
	}
	if len(prompter.asked) != 1 {
		t.Errorf("operator asked %d times, want 1", len(prompter.asked))
	}
}

// TestFillFileOverwritesExisting tests the conflict path where the
// operator approves the overwrite
func TestFillFileOverwritesExisting(t *testing.T) {
	ws := openTestWorkspace(t, &scriptedPrompter{answers: []bool{true}})
	key := kv.Key("image/disk.img")

	path := ws.ResolvePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("hand-placed"), 0o644); err != nil {
		t.Fatalf("plant file: %v", err)
	}

	fill := &countingFill{content: "fresh"}
	if err := ws.FillFile(context.Background(), key, fill.fill); err != nil {
		t.Fatalf("fill: %v", err)
	}

	if fill.calls != 1 {
		t.Errorf("fill ran %d times, want 1", fill.calls)
	}
	if got := readCachedFile(t, ws, key); got != "fresh" {
		t.Errorf("content = %q, want fresh", got)
	}
}

// TestValidateFileMissing tests that a deleted cached file reports
// missing
func TestValidateFileMissing(t *testing.T) {
	ws := openTestWorkspace(t, &scriptedPrompter{})
	key := kv.Key("ssh/key.pub")

	fill := &countingFill{content: "ssh-ed25519 AAAA"}
	if err := ws.FillFile(context.Background(), key, fill.fill); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := os.Remove(ws.ResolvePath(key)); err != nil {
		t.Fatalf("remove: %v", err)
	}

	validity, err := ws.ValidateFile(key)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validity != Missing {
		t.Errorf("validity = %s, want missing", validity)
	}
}
