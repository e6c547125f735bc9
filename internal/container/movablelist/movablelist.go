// Package movablelist implements the MovableList container of spec.md
// §4.2's movable-list extension: a position layer (a Fugue sequence of
// element references, exactly like container/list) plus two LWW
// overlays keyed by element id — one for the element's current slot
// (so Move is itself conflict-resolved, not just appended-and-forgotten)
// and one for its current value (Set).
package movablelist

import (
	"github.com/loro-dev/loro-go/internal/container/seq"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/value"
)

type moveRecord struct {
	stamp id.IdLp
	pos   id.ID // position-slot id this element currently occupies
}

type setRecord struct {
	stamp id.IdLp
	val   value.Value
}

// MovableList is the position sequence of element ids plus the two LWW
// overlays.
type MovableList struct {
	positions *seq.Sequence[id.ID] // slot item Val = element id it currently hosts
	lastMove  map[id.ID]moveRecord // elemID -> winning move
	lastSet   map[id.ID]setRecord  // elemID -> winning value
}

func New() *MovableList {
	return &MovableList{
		positions: seq.New[id.ID](),
		lastMove:  make(map[id.ID]moveRecord),
		lastSet:   make(map[id.ID]setRecord),
	}
}

// InsertCreate inserts brand-new elements at live position pos. Each new
// element's id (from startID/lamport) is both its slot id and its
// element id, and its initial value is recorded as the winning Set so
// far.
func (ml *MovableList) InsertCreate(pos int, vals []value.Value, startID id.ID, lamport id.Lamport) []id.ID {
	slotVals := make([]id.ID, len(vals))
	elemIDs := make([]id.ID, len(vals))
	for i := range vals {
		elemID := id.ID{Peer: startID.Peer, Counter: startID.Counter + id.Counter(i)}
		slotVals[i] = elemID
		elemIDs[i] = elemID
	}
	items := ml.positions.Insert(pos, slotVals, startID, lamport)
	for i, it := range items {
		elemID := elemIDs[i]
		stamp := id.IdLp{Peer: it.ID.Peer, Lamport: it.Lamport}
		ml.lastMove[elemID] = moveRecord{stamp: stamp, pos: it.ID}
		ml.lastSet[elemID] = setRecord{stamp: stamp, val: vals[i]}
	}
	return elemIDs
}

// DeleteLocal resolves pos/len against the live slot sequence and
// returns the target slot ids (which double as element ids for
// already-created elements only when the slot id equals the element's
// creation id — callers needing the element id separately should look
// it up via ElementAt before deleting).
func (ml *MovableList) DeleteLocal(pos, length int) []id.ID {
	return ml.positions.DeleteRange(pos, length)
}

func (ml *MovableList) DeleteRemote(targets []id.ID) {
	ml.positions.DeleteByIDs(targets)
}

// Move relocates elemID to live position to, applying only if stamp wins
// the LWW race against any previously applied move of the same element
// (spec.md's movable-list Move/Move conflict rule). The old slot is
// tombstoned and a fresh slot is inserted at the destination, following
// the "delete + reinsert" encoding of a move used throughout the Fugue
// family so the position layer never needs true relocation.
func (ml *MovableList) Move(elemID id.ID, to int, newSlotID id.ID, lamport id.Lamport) bool {
	stamp := id.IdLp{Peer: newSlotID.Peer, Lamport: lamport}
	cur, ok := ml.lastMove[elemID]
	if ok && !cur.stamp.Less(stamp) {
		return false
	}
	if ok {
		ml.positions.DeleteByIDs([]id.ID{cur.pos})
	}
	items := ml.positions.Insert(to, []id.ID{elemID}, newSlotID, lamport)
	ml.lastMove[elemID] = moveRecord{stamp: stamp, pos: items[0].ID}
	return true
}

// Set assigns elemID's value, applying only if stamp wins the LWW race.
func (ml *MovableList) Set(elemID id.ID, v value.Value, stamp id.IdLp) bool {
	cur, ok := ml.lastSet[elemID]
	if ok && !cur.stamp.Less(stamp) {
		return false
	}
	ml.lastSet[elemID] = setRecord{stamp: stamp, val: v}
	return true
}

func (ml *MovableList) Len() int { return ml.positions.LiveLen() }

// Values materializes the list by walking live slots and resolving each
// to its current Set value.
func (ml *MovableList) Values() []value.Value {
	slots := ml.positions.LiveValues()
	out := make([]value.Value, len(slots))
	for i, elemID := range slots {
		if rec, ok := ml.lastSet[elemID]; ok {
			out[i] = rec.val
		}
	}
	return out
}

// ElementAt returns the element id occupying live position pos.
func (ml *MovableList) ElementAt(pos int) (id.ID, bool) {
	slots := ml.positions.LiveValues()
	if pos < 0 || pos >= len(slots) {
		return id.ID{}, false
	}
	return slots[pos], true
}

// PosOf returns the current live position of elemID, or -1 if it has
// been deleted or is unknown.
func (ml *MovableList) PosOf(elemID id.ID) int {
	rec, ok := ml.lastMove[elemID]
	if !ok {
		return -1
	}
	return ml.positions.UserPosOf(rec.pos)
}
