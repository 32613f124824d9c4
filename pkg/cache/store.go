package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nodeforge/nodeforge/pkg/dirstate"
	"github.com/nodeforge/nodeforge/pkg/kv"
)

// ErrCorruptStore marks a store file that exists but cannot be
// decoded. It is always fatal: silently discarding a corrupt store
// would silently discard all cached provisioning progress.
var ErrCorruptStore = errors.New("cache store is corrupt")

// StoreFileName is the name of the store file inside a workspace
// root.
const StoreFileName = "store.json"

// Store is the in-memory image of one workspace's key→entry mapping.
// Mutations are in-memory only until Persist is called; Persist
// writes the whole store atomically, so a group of writes followed by
// one Persist is visible after a crash either completely or not at
// all.
type Store struct {
	path    string
	entries map[kv.Key]Entry
}

// NewStore creates an empty store persisted at the given workspace
// root.
func NewStore(root string) *Store {
	return &Store{
		path:    filepath.Join(root, StoreFileName),
		entries: make(map[kv.Key]Entry),
	}
}

// Load reads the persisted store. An absent store file initializes an
// empty store; a present-but-undecodable one fails with
// ErrCorruptStore.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.entries = make(map[kv.Key]Entry)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store %s: %w", s.path, err)
	}

	var raw []storedEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptStore, s.path, err)
	}
	entries := make(map[kv.Key]Entry, len(raw))
	for _, se := range raw {
		entries[se.Key] = se.Entry
	}
	s.entries = entries
	return nil
}

// Persist atomically writes the entire store to disk: the serialized
// form goes to a temporary file in the same directory, which is then
// renamed over the store file. A half-written store file is never
// observable.
func (s *Store) Persist() error {
	data, err := json.MarshalIndent(s.sorted(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), StoreFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename store into place: %w", err)
	}
	return nil
}

// sorted returns the entries as an ordered slice of key/entry pairs
// so the persisted form is deterministic.
func (s *Store) sorted() []storedEntry {
	keys := make([]kv.Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]storedEntry, len(keys))
	for i, k := range keys {
		out[i] = storedEntry{Key: k, Entry: s.entries[k]}
	}
	return out
}

type storedEntry struct {
	Key   kv.Key `json:"key"`
	Entry Entry  `json:"entry"`
}

// Get returns the entry for a key, if present. No side effects.
func (s *Store) Get(key kv.Key) (Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

// Put inserts or overwrites an inline value. Last write wins.
func (s *Store) Put(key kv.Key, value kv.Value) {
	s.entries[key] = Entry{Value: value}
}

// PutFile registers a file reference. The referenced file must
// already exist under the workspace's managed file area.
func (s *Store) PutFile(key kv.Key, path string, fp dirstate.Fingerprint) {
	s.entries[key] = Entry{File: &FileRef{Path: path, Fingerprint: fp}}
}

// Remove deletes a key. Removing an absent key is a no-op.
func (s *Store) Remove(key kv.Key) {
	delete(s.entries, key)
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() []kv.Key {
	keys := make([]kv.Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.entries) }
