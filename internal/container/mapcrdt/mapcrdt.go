// Package mapcrdt implements the Map container of spec.md §4.3:
// last-writer-wins per key, ties broken by (lamport, peer), with
// deletion represented as a tombstone entry so a late-arriving older
// Set cannot resurrect a key that a concurrent Delete removed.
package mapcrdt

import (
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/value"
)

// entry is one key's current winning write, or a tombstone.
type entry struct {
	id      id.IdLp
	val     value.Value
	deleted bool
}

// Map is the LWW register map.
type Map struct {
	entries map[string]entry
}

func New() *Map {
	return &Map{entries: make(map[string]entry)}
}

// Apply applies a remote or local Set at the given stamp, keeping
// whichever of the existing and incoming write is greater under (lamport,
// peer) order (spec.md §4.3's "Set/Set conflict" rule). Returns true if
// the map's materialized value for key actually changed, so the caller
// can decide whether to emit a diff entry.
func (m *Map) Apply(key string, v value.Value, stamp id.IdLp) bool {
	cur, ok := m.entries[key]
	if ok && !cur.id.Less(stamp) {
		return false
	}
	m.entries[key] = entry{id: stamp, val: v}
	return !ok || cur.deleted || !value.Equal(cur.val, v)
}

// ApplyDelete applies a remote or local Delete at the given stamp, same
// LWW tie-break as Apply.
func (m *Map) ApplyDelete(key string, stamp id.IdLp) bool {
	cur, ok := m.entries[key]
	if ok && !cur.id.Less(stamp) {
		return false
	}
	m.entries[key] = entry{id: stamp, deleted: true}
	return ok && !cur.deleted
}

// Get returns the current live value for key, if any.
func (m *Map) Get(key string) (value.Value, bool) {
	e, ok := m.entries[key]
	if !ok || e.deleted {
		return value.Value{}, false
	}
	return e.val, true
}

// Keys returns the live keys, unordered.
func (m *Map) Keys() []string {
	out := make([]string, 0, len(m.entries))
	for k, e := range m.entries {
		if !e.deleted {
			out = append(out, k)
		}
	}
	return out
}

// Len returns the number of live entries.
func (m *Map) Len() int {
	n := 0
	for _, e := range m.entries {
		if !e.deleted {
			n++
		}
	}
	return n
}

// Snapshot materializes the map's live key/value pairs.
func (m *Map) Snapshot() map[string]value.Value {
	out := make(map[string]value.Value, len(m.entries))
	for k, e := range m.entries {
		if !e.deleted {
			out[k] = e.val
		}
	}
	return out
}
