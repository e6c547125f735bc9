// Package id defines the identifier algebra the whole engine is built on:
// peer ids, per-peer counters, the (peer,counter) op identity, the lamport
// clock, container identities, and frontiers (antichains of IDs).
package id

import (
	"fmt"
	"sort"
)

// PeerID uniquely identifies a replica instance. Generated once per
// replica and may be persisted across restarts.
type PeerID uint64

// Counter is a per-peer monotonically increasing op sequence number. Ops
// authored by one peer occupy a contiguous prefix of the non-negative
// int32 range.
type Counter int32

// Lamport is a logical clock: lamport = 1 + max(lamports of deps).
type Lamport uint32

// ID identifies a single atomic operation.
type ID struct {
	Peer    PeerID
	Counter Counter
}

func NewID(peer PeerID, counter Counter) ID { return ID{Peer: peer, Counter: counter} }

func (a ID) String() string { return fmt.Sprintf("%d@%d", a.Counter, a.Peer) }

// Inc returns the ID offset by delta counters (delta may be negative).
func (a ID) Inc(delta int) ID { return ID{Peer: a.Peer, Counter: a.Counter + Counter(delta)} }

// IdLp is the (peer, lamport) stamp of a write; Less orders stamps by
// lamport first, then peer.
type IdLp struct {
	Peer    PeerID
	Lamport Lamport
}

// Less implements the (lamport, peer) total order used throughout the
// spec for LWW tie-breaking: higher lamport wins, ties broken by higher
// peer id.
func (a IdLp) Less(b IdLp) bool {
	if a.Lamport != b.Lamport {
		return a.Lamport < b.Lamport
	}
	return a.Peer < b.Peer
}

// ContainerType enumerates the six collaborative container kinds.
type ContainerType uint8

const (
	TypeText ContainerType = iota
	TypeList
	TypeMovableList
	TypeMap
	TypeTree
	TypeCounter
)

func (t ContainerType) String() string {
	switch t {
	case TypeText:
		return "Text"
	case TypeList:
		return "List"
	case TypeMovableList:
		return "MovableList"
	case TypeMap:
		return "Map"
	case TypeTree:
		return "Tree"
	case TypeCounter:
		return "Counter"
	default:
		return "Unknown"
	}
}

// ContainerID is either a Root container, named at document-design time,
// or a Normal container, identified by the ID of the op that created it.
type ContainerID struct {
	IsRoot bool
	// Root fields.
	Name string
	// Normal fields.
	Peer    PeerID
	Counter Counter
	Type    ContainerType
}

func RootContainerID(name string, t ContainerType) ContainerID {
	return ContainerID{IsRoot: true, Name: name, Type: t}
}

func NormalContainerID(creator ID, t ContainerType) ContainerID {
	return ContainerID{IsRoot: false, Peer: creator.Peer, Counter: creator.Counter, Type: t}
}

func (c ContainerID) String() string {
	if c.IsRoot {
		return fmt.Sprintf("cid:root-%s:%s", c.Name, c.Type)
	}
	return fmt.Sprintf("cid:%d@%d:%s", c.Counter, c.Peer, c.Type)
}

// Frontiers is an antichain of IDs: a set of op identities such that no
// element causally dominates another. It represents a document version.
type Frontiers []ID

// New builds a Frontiers value from a variadic list of IDs, sorting for
// canonical comparison/hashing.
func New(ids ...ID) Frontiers {
	f := append(Frontiers{}, ids...)
	f.sort()
	return f
}

func (f Frontiers) sort() {
	sort.Slice(f, func(i, j int) bool {
		if f[i].Peer != f[j].Peer {
			return f[i].Peer < f[j].Peer
		}
		return f[i].Counter < f[j].Counter
	})
}

// Clone returns an independent copy.
func (f Frontiers) Clone() Frontiers {
	out := make(Frontiers, len(f))
	copy(out, f)
	return out
}

// Equal reports whether two frontiers contain the same set of IDs.
func (f Frontiers) Equal(g Frontiers) bool {
	if len(f) != len(g) {
		return false
	}
	af, ag := f.Clone(), g.Clone()
	af.sort()
	ag.sort()
	for i := range af {
		if af[i] != ag[i] {
			return false
		}
	}
	return true
}

// Contains reports whether id is one of the frontier elements.
func (f Frontiers) Contains(target ID) bool {
	for _, i := range f {
		if i == target {
			return true
		}
	}
	return false
}

// AsSingle returns the lone element when len(f) == 1; the common-case
// fast path the spec calls out explicitly (§3.1).
func (f Frontiers) AsSingle() (ID, bool) {
	if len(f) == 1 {
		return f[0], true
	}
	return ID{}, false
}
