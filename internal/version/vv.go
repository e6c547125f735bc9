// Package version implements the version vector algebra of spec.md §3.2:
// a VersionVector maps each peer to its next-unused counter, forming a
// join-semilattice under component-wise max, with the usual partial
// order (Le) and its derived relations (concurrent/dominates).
package version

import (
	"sort"

	"github.com/loro-dev/loro-go/internal/id"
)

// VersionVector maps PeerID -> next-unused Counter. A peer absent from
// the map is equivalent to being present with counter 0.
type VersionVector map[id.PeerID]id.Counter

// New returns an empty version vector.
func New() VersionVector { return VersionVector{} }

// Get returns the next-unused counter for peer (0 if unknown).
func (v VersionVector) Get(peer id.PeerID) id.Counter {
	return v[peer]
}

// Clone returns an independent deep copy.
func (v VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(v))
	for p, c := range v {
		out[p] = c
	}
	return out
}

// Extend raises vv[peer] to max(vv[peer], end) in place; end is the
// exclusive upper bound (i.e. c+len of a change starting at c with
// length len), matching §3.2's update rule.
func (v VersionVector) Extend(peer id.PeerID, end id.Counter) {
	if cur, ok := v[peer]; !ok || end > cur {
		v[peer] = end
	}
}

// SetMin lowers vv[peer] to min(vv[peer], c); used by checkout/retreat.
func (v VersionVector) SetMin(peer id.PeerID, c id.Counter) {
	if cur, ok := v[peer]; !ok || c < cur {
		v[peer] = c
	}
}

// Includes reports whether the op identified by target has already been
// recorded in v, i.e. target.Counter < v[target.Peer].
func (v VersionVector) Includes(target id.ID) bool {
	return target.Counter < v[target.Peer]
}

// Le reports whether v <= other in the VV partial order: for every peer,
// v[p] <= other[p].
func (v VersionVector) Le(other VersionVector) bool {
	for p, c := range v {
		if c > other[p] {
			return false
		}
	}
	return true
}

// Equal reports exact equality of effective counters (absent == 0).
func (v VersionVector) Equal(other VersionVector) bool {
	return v.Le(other) && other.Le(v)
}

// Concurrent reports whether neither v <= other nor other <= v.
func (v VersionVector) Concurrent(other VersionVector) bool {
	return !v.Le(other) && !other.Le(v)
}

// Merge returns the component-wise maximum of v and other (the VV join).
func (v VersionVector) Merge(other VersionVector) VersionVector {
	out := v.Clone()
	for p, c := range other {
		if c > out[p] {
			out[p] = c
		}
	}
	return out
}

// Peers returns the sorted set of peers with a non-zero entry.
func (v VersionVector) Peers() []id.PeerID {
	peers := make([]id.PeerID, 0, len(v))
	for p := range v {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// ToFrontiers is the well-defined VV -> Frontiers direction noted in
// spec.md §3.2: one ID per peer, namely the last recorded op. Building a
// Frontiers that is a true antichain from a VV in general requires DAG
// traversal (dag.VVToFrontiers); this helper only produces the "latest
// per peer" candidate set used as a starting point by that traversal.
func (v VersionVector) ToFrontiers() id.Frontiers {
	out := make(id.Frontiers, 0, len(v))
	for p, c := range v {
		if c == 0 {
			continue
		}
		out = append(out, id.ID{Peer: p, Counter: c - 1})
	}
	return id.New(out...)
}

// Diff computes the forward (in other, not in v) and retreat (in v, not
// in other) spans per peer, as used by checkout. Each returned map gives
// the exclusive [from,to) counter span that must be applied/undone.
type Span struct {
	From, To id.Counter
}

type Diff struct {
	Forward map[id.PeerID]Span
	Retreat map[id.PeerID]Span
}

func (v VersionVector) DiffFrom(other VersionVector) Diff {
	d := Diff{Forward: map[id.PeerID]Span{}, Retreat: map[id.PeerID]Span{}}
	peers := map[id.PeerID]struct{}{}
	for p := range v {
		peers[p] = struct{}{}
	}
	for p := range other {
		peers[p] = struct{}{}
	}
	for p := range peers {
		from, to := other[p], v[p]
		if to > from {
			d.Forward[p] = Span{From: from, To: to}
		} else if from > to {
			d.Retreat[p] = Span{From: to, To: from}
		}
	}
	return d
}
