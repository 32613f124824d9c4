package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nodeforge/nodeforge/pkg/dirstate"
	"github.com/nodeforge/nodeforge/pkg/kv"
)

// TestStoreRoundTrip tests that persisted entries survive a reload
func TestStoreRoundTrip(t *testing.T) {
	root := t.TempDir()

	store := NewStore(root)
	store.Put("cluster/name", kv.Scalar("lab"))
	store.Put("cluster/nodes", kv.List{kv.Scalar("node1"), kv.Scalar("node2")})
	store.PutFile("image/disk.img", "files/image/disk.img", dirstate.Fingerprint{Size: 512, ModTime: 42})

	if err := store.Persist(); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	reloaded := NewStore(root)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if reloaded.Len() != 3 {
		t.Fatalf("got %d entries, want 3", reloaded.Len())
	}

	e, ok := reloaded.Get("cluster/name")
	if !ok {
		t.Fatal("cluster/name missing after reload")
	}
	if !e.Value.Equal(kv.Scalar("lab")) {
		t.Errorf("cluster/name = %v", e.Value)
	}

	e, ok = reloaded.Get("image/disk.img")
	if !ok || e.File == nil {
		t.Fatal("image/disk.img missing or not a file reference")
	}
	if e.File.Path != "files/image/disk.img" {
		t.Errorf("file path = %q", e.File.Path)
	}
	if !e.File.Fingerprint.Equal(dirstate.Fingerprint{Size: 512, ModTime: 42}) {
		t.Errorf("fingerprint = %+v", e.File.Fingerprint)
	}
}

// TestStoreLoadAbsent tests that a missing store file initializes an
// empty store
func TestStoreLoadAbsent(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Load(); err != nil {
		t.Fatalf("load of absent store failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("got %d entries, want 0", store.Len())
	}
}

// TestStoreLoadCorrupt tests that an undecodable store file is fatal
func TestStoreLoadCorrupt(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, StoreFileName), []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("write corrupt store: %v", err)
	}

	store := NewStore(root)
	err := store.Load()
	if !errors.Is(err, ErrCorruptStore) {
		t.Fatalf("load = %v, want ErrCorruptStore", err)
	}
}

// TestStoreOverwrite tests last-write-wins for a reused key,
// including replacing a value with a file reference
func TestStoreOverwrite(t *testing.T) {
	store := NewStore(t.TempDir())

	store.Put("k", kv.Scalar("first"))
	store.Put("k", kv.Scalar("second"))
	e, _ := store.Get("k")
	if !e.Value.Equal(kv.Scalar("second")) {
		t.Errorf("value = %v, want second", e.Value)
	}

	store.PutFile("k", "files/k", dirstate.Fingerprint{Size: 1})
	e, _ = store.Get("k")
	if e.Value != nil || e.File == nil {
		t.Errorf("entry = %+v, want file reference only", e)
	}
	if store.Len() != 1 {
		t.Errorf("len = %d, want 1", store.Len())
	}
}

// TestStoreRemove tests deletion, including the absent-key no-op
func TestStoreRemove(t *testing.T) {
	store := NewStore(t.TempDir())
	store.Put("a", kv.Scalar("1"))

	store.Remove("a")
	if _, ok := store.Get("a"); ok {
		t.Error("entry survived removal")
	}
	store.Remove("a") // no-op
	store.Remove("never-existed")
}

// TestStoreKeysSorted tests deterministic key ordering
func TestStoreKeysSorted(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, k := range []kv.Key{"c", "a", "b/x", "b"} {
		store.Put(k, kv.Scalar("v"))
	}

	keys := store.Keys()
	want := []kv.Key{"a", "b", "b/x", "c"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

// TestStorePersistLeavesNoTempFiles tests that the atomic rename
// cleans up after itself
func TestStorePersistLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	store.Put("k", kv.Scalar("v"))

	if err := store.Persist(); err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	if err := store.Persist(); err != nil {
		t.Fatalf("second persist failed: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("got %d files in root, want just %s", len(entries), StoreFileName)
	}
}
