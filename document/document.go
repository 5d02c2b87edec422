// Package document defines the configuration document value type shared by
// the store, the registry, and the commit engine.
//
// A Document is a mapping from module name to an arbitrarily structured
// sub-document, plus the reserved "version" key holding the schema version
// of the stored format. The commit engine is the only component that
// mutates a live Document; everything else works on copies.
package document

import (
	"encoding/json"
	"reflect"
	"sort"
)

// CurrentVersion is the schema version written by this build. Documents at
// older versions are migrated on read; newer versions are rejected.
const CurrentVersion = 3

// VersionKey is the reserved top-level key holding the schema version.
// It is never treated as a module name.
const VersionKey = "version"

// Document is a configuration document: module name -> sub-document, plus
// the reserved version key.
type Document map[string]any

// New returns an empty document at the current schema version.
func New() Document {
	return Document{VersionKey: CurrentVersion}
}

// Version returns the document's schema version. JSON decoding yields
// float64 numbers, so all common numeric representations are accepted.
// The second return is false when the key is absent or non-numeric.
func (d Document) Version() (int, bool) {
	v, ok := d[VersionKey]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// SetVersion sets the document's schema version.
func (d Document) SetVersion(v int) {
	d[VersionKey] = v
}

// Get returns the sub-document for the named module.
func (d Document) Get(name string) (any, bool) {
	v, ok := d[name]
	return v, ok
}

// Set replaces the sub-document for the named module.
func (d Document) Set(name string, value any) {
	d[name] = value
}

// ModuleNames returns every top-level key except the version key, sorted.
// The order is the iteration order of a global commit.
func (d Document) ModuleNames() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		if name == VersionKey {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the document. The copy shares no structure
// with the original, so it can serve as a rollback snapshot while the
// original is mutated.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	clone := make(Document, len(d))
	for k, v := range d {
		clone[k] = copyValue(v)
	}
	return clone
}

// copyValue deep-copies a decoded JSON value. Scalars are immutable and
// returned as-is; maps and slices are copied recursively. Numeric types are
// preserved exactly, which keeps the version key stable across
// snapshot/restore cycles.
func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = copyValue(e)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, e := range val {
			s[i] = copyValue(e)
		}
		return s
	default:
		return val
	}
}

// Merge merges delta into target recursively. For keys present in both
// where both values are maps, the merge recurses; an explicit nil in delta
// deletes the key; any other delta value overwrites the existing one. Keys
// absent from delta are left untouched.
func Merge(target, delta map[string]any) {
	for key, newVal := range delta {
		if newVal == nil {
			delete(target, key)
			continue
		}
		if oldMap, ok := target[key].(map[string]any); ok {
			if newMap, ok := newVal.(map[string]any); ok {
				Merge(oldMap, newMap)
				continue
			}
		}
		target[key] = copyValue(newVal)
	}
}

// Equal reports whether two documents are structurally equal. Numeric
// values are compared by value regardless of decoded type, so a document
// that has been through a JSON round trip still compares equal to its
// in-memory origin.
func Equal(a, b Document) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize rewrites all numeric values as float64 via a JSON round trip.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
