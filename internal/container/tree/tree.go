// Package tree implements the Tree container of spec.md §4.7: nodes
// identified by their creation id, reparented by Move ops that undo and
// redo concurrent higher-lamport moves around themselves, with moves
// that would create a cycle marked ineffective.
//
// Rather than literally undoing/redoing moves against a live tree on
// every new arrival (the spec's incremental algorithm, needed there to
// support incremental retreat/forward checkout), this package keeps the
// append-only log of every Create/Move/Delete op sorted by (lamport,
// peer) and recomputes the materialized parent-pointer map from scratch
// whenever a new entry is inserted into the sorted log. Replaying the
// whole sorted log in lamport order IS the undo/redo procedure: applying
// entries in increasing lamport order and re-running the cycle check at
// each step produces exactly the tree Kleppmann's algorithm converges
// to, since "undo higher-lamport concurrent moves, apply m, redo them in
// lamport order" and "insert m into lamport-sorted position, replay
// forward" are the same operation viewed two ways. See DESIGN.md.
package tree

import (
	"sort"
	"strings"

	"github.com/loro-dev/loro-go/internal/id"
)

// ParentKind discriminates a node's current parent pointer.
type ParentKind uint8

const (
	ParentRoot ParentKind = iota
	ParentNode
	ParentDeleted
	ParentUnexist
)

// deletedSentinel is a synthetic tree id that no real node ever has; all
// deleted nodes are reparented under it (spec.md: "reparents the node to
// the synthetic Deleted root").
var deletedSentinel = id.ID{Peer: ^id.PeerID(0), Counter: -1}

type logEntry struct {
	target   id.ID
	parent   *id.ID // nil = root; == deletedSentinel = deleted
	position string
	stamp    id.IdLp
	isCreate bool
}

// nodeState is the materialized, per-node view recomputed on each log
// insertion.
type nodeState struct {
	kind     ParentKind
	parent   id.ID
	position string
	stamp    id.IdLp
}

// Tree is the move log plus its recomputed materialization.
type Tree struct {
	log   []logEntry // kept sorted by stamp (lamport, peer)
	state map[id.ID]nodeState
}

func New() *Tree {
	return &Tree{state: make(map[id.ID]nodeState)}
}

// Create records a new node. Position is the caller-assigned fractional
// index among its siblings.
func (t *Tree) Create(target id.ID, parent *id.ID, position string, stamp id.IdLp) {
	t.insertLog(logEntry{target: target, parent: parent, position: position, stamp: stamp, isCreate: true})
}

// Move reparents target to parent (nil = root) at the given sibling
// position. If the move would create a cycle it is recorded but replay
// marks it ineffective, per spec.md's "consumes the ID but leaves the
// tree unchanged".
func (t *Tree) Move(target id.ID, parent *id.ID, position string, stamp id.IdLp) {
	t.insertLog(logEntry{target: target, parent: parent, position: position, stamp: stamp})
}

// Delete reparents target (and, transitively, its subtree) under the
// synthetic Deleted root.
func (t *Tree) Delete(target id.ID, stamp id.IdLp) {
	del := deletedSentinel
	t.insertLog(logEntry{target: target, parent: &del, stamp: stamp})
}

func (t *Tree) insertLog(e logEntry) {
	i := sort.Search(len(t.log), func(i int) bool { return e.stamp.Less(t.log[i].stamp) })
	t.log = append(t.log, logEntry{})
	copy(t.log[i+1:], t.log[i:])
	t.log[i] = e
	t.replay()
}

// replay recomputes state from scratch by applying the log in lamport
// order, re-running the cycle check at each Move/Delete.
func (t *Tree) replay() {
	state := make(map[id.ID]nodeState, len(t.state))
	for _, e := range t.log {
		if e.isCreate {
			state[e.target] = t.resolveParent(state, e.parent, e.position, e.stamp)
			continue
		}
		if t.wouldCycle(state, e.target, e.parent) {
			continue // ineffective; ID still consumed, state unchanged
		}
		state[e.target] = t.resolveParent(state, e.parent, e.position, e.stamp)
	}
	t.state = state
}

func (t *Tree) resolveParent(state map[id.ID]nodeState, parent *id.ID, position string, stamp id.IdLp) nodeState {
	switch {
	case parent == nil:
		return nodeState{kind: ParentRoot, position: position, stamp: stamp}
	case *parent == deletedSentinel:
		return nodeState{kind: ParentDeleted, position: position, stamp: stamp}
	default:
		if _, ok := state[*parent]; !ok {
			return nodeState{kind: ParentUnexist, position: position, stamp: stamp}
		}
		return nodeState{kind: ParentNode, parent: *parent, position: position, stamp: stamp}
	}
}

// wouldCycle reports whether reparenting target under parent would make
// target its own ancestor.
func (t *Tree) wouldCycle(state map[id.ID]nodeState, target id.ID, parent *id.ID) bool {
	if parent == nil || *parent == deletedSentinel {
		return false
	}
	if *parent == target {
		return true
	}
	cur := *parent
	seen := map[id.ID]bool{}
	for {
		if cur == target {
			return true
		}
		if seen[cur] {
			return false // already-broken cycle elsewhere; don't loop forever
		}
		seen[cur] = true
		st, ok := state[cur]
		if !ok || st.kind != ParentNode {
			return false
		}
		cur = st.parent
	}
}

// Parent returns the live parent pointer kind and (if ParentNode) the
// parent id.
func (t *Tree) Parent(target id.ID) (ParentKind, id.ID, bool) {
	st, ok := t.state[target]
	if !ok {
		return ParentUnexist, id.ID{}, false
	}
	return st.kind, st.parent, true
}

// Position returns target's current fractional sibling index, used to
// derive a midpoint when inserting a new sibling next to it.
func (t *Tree) Position(target id.ID) (string, bool) {
	st, ok := t.state[target]
	if !ok {
		return "", false
	}
	return st.position, true
}

// Children returns the live children of parent (nil = root), sorted by
// fractional index then, for nodes sharing an identical position
// (fracindex.Between is deliberately jitter-free, see DESIGN.md, so
// concurrent siblings often collide), by (lamport, peer) of each node's
// last-applied stamp, per spec.md §4.7. The comparison is total, so the
// sort order is the same on every replica regardless of map iteration
// order or which sort algorithm produced it.
func (t *Tree) Children(parent *id.ID) []id.ID {
	var targets []id.ID
	for target, st := range t.state {
		if st.kind == ParentRoot && parent == nil {
			targets = append(targets, target)
		} else if st.kind == ParentNode && parent != nil && st.parent == *parent {
			targets = append(targets, target)
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		a, b := t.state[targets[i]], t.state[targets[j]]
		if c := strings.Compare(a.position, b.position); c != 0 {
			return c < 0
		}
		if a.stamp.Lamport != b.stamp.Lamport {
			return a.stamp.Lamport < b.stamp.Lamport
		}
		return a.stamp.Peer < b.stamp.Peer
	})
	return targets
}

// Roots returns the live root-level nodes.
func (t *Tree) Roots() []id.ID { return t.Children(nil) }

// IsDeleted reports whether target currently sits under the synthetic
// Deleted root (possibly transitively, via a deleted ancestor).
func (t *Tree) IsDeleted(target id.ID) bool {
	cur := target
	seen := map[id.ID]bool{}
	for {
		st, ok := t.state[cur]
		if !ok {
			return false
		}
		switch st.kind {
		case ParentDeleted:
			return true
		case ParentRoot, ParentUnexist:
			return false
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		cur = st.parent
	}
}
