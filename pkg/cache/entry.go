// Package cache implements the durable key→entry store backing one
// provisioning workspace: a mapping from hierarchical keys to inline
// values or managed-file references, persisted atomically as a single
// store file.
package cache

import (
	"encoding/json"
	"fmt"

	"github.com/nodeforge/nodeforge/pkg/dirstate"
	"github.com/nodeforge/nodeforge/pkg/kv"
)

// FileRef points at a file inside the workspace's managed file area,
// together with the fingerprint captured when the file was last
// registered or validated. A mismatch between this fingerprint and
// the live file means the entry is stale.
type FileRef struct {
	// Path locates the referenced file on disk.
	Path string `json:"path"`

	// Fingerprint is the file's signature at registration time.
	Fingerprint dirstate.Fingerprint `json:"fingerprint"`
}

// Entry is one stored cache item: either an inline value or a file
// reference. Exactly one of the two is set.
type Entry struct {
	Value kv.Value
	File  *FileRef
}

// entryJSON is the self-describing persisted form of an Entry.
type entryJSON struct {
	Value json.RawMessage `json:"value,omitempty"`
	File  *FileRef        `json:"file,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.File != nil {
		return json.Marshal(entryJSON{File: e.File})
	}
	raw, err := kv.MarshalValue(e.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entryJSON{Value: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var j entryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	switch {
	case j.File != nil:
		e.File = j.File
	case j.Value != nil:
		v, err := kv.UnmarshalValue(j.Value)
		if err != nil {
			return err
		}
		e.Value = v
	default:
		return fmt.Errorf("entry holds neither a value nor a file reference")
	}
	return nil
}
