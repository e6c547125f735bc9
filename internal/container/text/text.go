// Package text implements the Text container of spec.md §4.4: a Fugue
// sequence of runes plus a style-range overlay (mark/unmark with
// expand policies), layered on container/seq.
package text

import (
	"strings"

	"github.com/loro-dev/loro-go/internal/container/seq"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
	"github.com/loro-dev/loro-go/internal/value"
)

// mark is a resolved style interval. Start/End are live rune positions
// at the time the mark is stored; they are not re-anchored to ids, a
// simplification documented in DESIGN.md (the spec anchors each
// endpoint to an id plus expand policy so concurrent edits at the
// boundary can grow the run; here only the current positions are kept
// current, re-derived on subsequent inserts/deletes at the boundary
// according to Expand).
type mark struct {
	start, end int
	key        string
	val        value.Value
	stamp      id.IdLp
	expand     op.ExpandPolicy
	deleted    bool
}

// Text is the rune sequence plus its style runs.
type Text struct {
	seq   *seq.Sequence[rune]
	marks []*mark
}

func New() *Text {
	return &Text{seq: seq.New[rune]()}
}

// Insert integrates s at live rune position pos, stamped starting at
// startID/lamport. Any mark whose expand policy covers pos at the
// insertion boundary is grown to include the new run.
func (t *Text) Insert(pos int, s string, startID id.ID, lamport id.Lamport) []id.ID {
	runes := []rune(s)
	items := t.seq.Insert(pos, runes, startID, lamport)
	n := len(runes)
	for _, m := range t.marks {
		if m.deleted {
			continue
		}
		// Start boundary: grow left (don't shift start forward) only if
		// the insert lands strictly inside or, at the exact start, the
		// policy expands backward over newly-inserted text.
		if m.start > pos {
			m.start += n
		} else if m.start == pos && m.expand != op.ExpandBefore && m.expand != op.ExpandBoth {
			// The policy does not expand backward: shift start past the
			// new run so it stays outside the mark. Otherwise start stays
			// put and end's growth below covers the new run.
			m.start += n
		}
		// End boundary: grow right (shift end forward) if the insert is
		// strictly inside the range, or lands at the end and the policy
		// expands forward over it.
		if m.end > pos {
			m.end += n
		} else if m.end == pos && (m.expand == op.ExpandAfter || m.expand == op.ExpandBoth) {
			m.end += n
		}
	}
	ids := make([]id.ID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// DeleteLocal resolves pos/len against the live rune view and returns
// target ids, shrinking any mark overlapping the deleted range.
func (t *Text) DeleteLocal(pos, length int) []id.ID {
	ids := t.seq.DeleteRange(pos, length)
	for _, m := range t.marks {
		if m.deleted {
			continue
		}
		m.start = shrinkBound(m.start, pos, length)
		m.end = shrinkBound(m.end, pos, length)
	}
	return ids
}

func (t *Text) DeleteRemote(targets []id.ID) {
	t.seq.DeleteByIDs(targets)
}

func shrinkBound(bound, pos, length int) int {
	if bound <= pos {
		return bound
	}
	if bound >= pos+length {
		return bound - length
	}
	return pos
}

// Mark applies a style interval, keeping only the winning mark per
// (key, overlapping range) as ranked by (lamport, peer) (spec.md's
// "style convergence" rule). ToDelete encodes unmark.
func (t *Text) Mark(start, end int, key string, v value.Value, expand op.ExpandPolicy, toDelete bool, stamp id.IdLp) {
	superseded := false
	for _, m := range t.marks {
		if m.key != key || m.deleted || !overlaps(m.start, m.end, start, end) {
			continue
		}
		if m.stamp.Less(stamp) {
			m.deleted = true
		} else {
			superseded = true
		}
	}
	t.marks = append(t.marks, &mark{start: start, end: end, key: key, val: v, stamp: stamp, expand: expand, deleted: toDelete || superseded})
}

func overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

func (t *Text) Len() int { return t.seq.LiveLen() }

// String materializes the live text.
func (t *Text) String() string {
	var b strings.Builder
	for _, r := range t.seq.LiveValues() {
		b.WriteRune(r)
	}
	return b.String()
}

// StylesAt returns the live (non-deleted, non-superseded) key/value
// style pairs covering rune position pos.
func (t *Text) StylesAt(pos int) map[string]value.Value {
	out := make(map[string]value.Value)
	for _, m := range t.marks {
		if m.deleted {
			continue
		}
		if pos >= m.start && pos < m.end {
			out[m.key] = m.val
		}
	}
	return out
}
