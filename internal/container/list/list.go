// Package list implements the List container of spec.md §4.2: an
// insert/delete-only Fugue sequence of LoroValue, built directly on
// container/seq.
package list

import (
	"github.com/loro-dev/loro-go/internal/container/seq"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/value"
)

type List struct {
	seq *seq.Sequence[value.Value]
}

func New() *List {
	return &List{seq: seq.New[value.Value]()}
}

// Insert integrates vals at live position pos, stamped starting at
// startID/lamport, and returns the per-atom ids created (used by the
// caller to build TargetIDs for any Delete that later targets them
// within the same local transaction).
func (l *List) Insert(pos int, vals []value.Value, startID id.ID, lamport id.Lamport) []id.ID {
	items := l.seq.Insert(pos, vals, startID, lamport)
	ids := make([]id.ID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// DeleteLocal resolves pos/len against the current live view and
// returns the target ids, for local authoring (spec.md §3.4).
func (l *List) DeleteLocal(pos, length int) []id.ID {
	return l.seq.DeleteRange(pos, length)
}

// DeleteRemote applies a delete whose targets were already resolved by
// its author.
func (l *List) DeleteRemote(targets []id.ID) {
	l.seq.DeleteByIDs(targets)
}

func (l *List) Len() int { return l.seq.LiveLen() }

func (l *List) Values() []value.Value { return l.seq.LiveValues() }

func (l *List) Get(pos int) (value.Value, bool) {
	vals := l.seq.LiveValues()
	if pos < 0 || pos >= len(vals) {
		return value.Value{}, false
	}
	return vals[pos], true
}
