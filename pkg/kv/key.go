// Package kv defines the key and value model used by the nodeforge
// artifact cache: hierarchical slash-delimited keys, and a small
// recursive value type holding either a scalar string or an ordered
// list of values.
package kv

import (
	"fmt"
	"strings"
)

// Key is a `/`-delimited hierarchical identifier for one cache entry,
// e.g. "network/start_address" or "admin/ssh/pub". Keys carry no
// hierarchy beyond string prefix semantics: they scope entries for
// human readability and map to paths inside the managed file area.
type Key string

// ParseKey validates and normalizes a raw key string. A trailing
// separator is trimmed; no other normalization is performed.
func ParseKey(raw string) (Key, error) {
	raw = strings.TrimSuffix(raw, "/")
	if raw == "" {
		return "", fmt.Errorf("key is empty")
	}
	if strings.HasPrefix(raw, "/") {
		return "", fmt.Errorf("key %q: unexpected leading '/'", raw)
	}
	for _, comp := range strings.Split(raw, "/") {
		switch comp {
		case "":
			return "", fmt.Errorf("key %q: empty component", raw)
		case ".":
			return "", fmt.Errorf("key %q: unexpected '.' component", raw)
		case "..":
			return "", fmt.Errorf("key %q: unexpected '..' component", raw)
		}
	}
	return Key(raw), nil
}

// Join appends path components to the key, separated by '/'.
func (k Key) Join(comps ...string) Key {
	parts := append([]string{string(k)}, comps...)
	return Key(strings.Join(parts, "/"))
}

// HasPrefix reports whether the key is equal to prefix or nested
// beneath it. "network" is a prefix of "network/start_address" but
// not of "networking".
func (k Key) HasPrefix(prefix Key) bool {
	if k == prefix {
		return true
	}
	return strings.HasPrefix(string(k), string(prefix)+"/")
}

// Components returns the key's path components in order.
func (k Key) Components() []string {
	return strings.Split(string(k), "/")
}

func (k Key) String() string { return string(k) }
