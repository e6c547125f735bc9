package tree

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/id"
)

func TestCreateAndChildren(t *testing.T) {
	tr := New()
	root1 := id.ID{Peer: 1, Counter: 0}
	root2 := id.ID{Peer: 1, Counter: 1}
	tr.Create(root1, nil, "a", id.IdLp{Peer: 1, Lamport: 0})
	tr.Create(root2, nil, "b", id.IdLp{Peer: 1, Lamport: 1})

	roots := tr.Roots()
	if len(roots) != 2 {
		t.Fatalf("Roots() = %v, want 2 entries", roots)
	}
	kind, _, ok := tr.Parent(root1)
	if !ok || kind != ParentRoot {
		t.Fatalf("Parent(root1) = %v, %v, want ParentRoot", kind, ok)
	}
}

func TestMoveReparents(t *testing.T) {
	tr := New()
	parent := id.ID{Peer: 1, Counter: 0}
	child := id.ID{Peer: 1, Counter: 1}
	tr.Create(parent, nil, "a", id.IdLp{Peer: 1, Lamport: 0})
	tr.Create(child, nil, "b", id.IdLp{Peer: 1, Lamport: 1})

	tr.Move(child, &parent, "a", id.IdLp{Peer: 1, Lamport: 2})
	kind, p, ok := tr.Parent(child)
	if !ok || kind != ParentNode || p != parent {
		t.Fatalf("Parent(child) = %v, %v, %v, want ParentNode under parent", kind, p, ok)
	}
	children := tr.Children(&parent)
	if len(children) != 1 || children[0] != child {
		t.Fatalf("Children(parent) = %v, want [child]", children)
	}
}

func TestMoveThatWouldCreateCycleIsIneffective(t *testing.T) {
	tr := New()
	a := id.ID{Peer: 1, Counter: 0}
	b := id.ID{Peer: 1, Counter: 1}
	tr.Create(a, nil, "a", id.IdLp{Peer: 1, Lamport: 0})
	tr.Create(b, &a, "a", id.IdLp{Peer: 1, Lamport: 1}) // b is a's child

	// Moving a under its own descendant b would create a cycle; this
	// move must be recorded (consuming the id) but leave the tree
	// structurally unchanged.
	tr.Move(a, &b, "a", id.IdLp{Peer: 1, Lamport: 2})

	kind, _, ok := tr.Parent(a)
	if !ok || kind != ParentRoot {
		t.Fatalf("Parent(a) after cyclic move = %v, %v, want still ParentRoot", kind, ok)
	}
}

func TestDeleteReparentsUnderSyntheticRoot(t *testing.T) {
	tr := New()
	a := id.ID{Peer: 1, Counter: 0}
	tr.Create(a, nil, "a", id.IdLp{Peer: 1, Lamport: 0})
	tr.Delete(a, id.IdLp{Peer: 1, Lamport: 1})

	if !tr.IsDeleted(a) {
		t.Fatal("expected a to be deleted")
	}
	kind, _, ok := tr.Parent(a)
	if !ok || kind != ParentDeleted {
		t.Fatalf("Parent(a) = %v, %v, want ParentDeleted", kind, ok)
	}
	if len(tr.Roots()) != 0 {
		t.Fatalf("Roots() = %v, want empty after delete", tr.Roots())
	}
}

func TestDeleteIsTransitiveOverDescendants(t *testing.T) {
	tr := New()
	a := id.ID{Peer: 1, Counter: 0}
	b := id.ID{Peer: 1, Counter: 1}
	tr.Create(a, nil, "a", id.IdLp{Peer: 1, Lamport: 0})
	tr.Create(b, &a, "a", id.IdLp{Peer: 1, Lamport: 1})

	tr.Delete(a, id.IdLp{Peer: 1, Lamport: 2})
	if !tr.IsDeleted(b) {
		t.Fatal("expected b to be transitively deleted along with its ancestor a")
	}
}

func TestPosition(t *testing.T) {
	tr := New()
	a := id.ID{Peer: 1, Counter: 0}
	tr.Create(a, nil, "m", id.IdLp{Peer: 1, Lamport: 0})
	pos, ok := tr.Position(a)
	if !ok || pos != "m" {
		t.Fatalf("Position(a) = %q, %v, want \"m\", true", pos, ok)
	}
	if _, ok := tr.Position(id.ID{Peer: 9, Counter: 9}); ok {
		t.Fatal("Position of unknown node should report not found")
	}
}

// TestChildrenBreaksPositionTiesByLamportThenPeer covers the case
// fracindex.Between() never jitters: two concurrent siblings created
// under the same parent with the literal same position string must
// still order deterministically, by (lamport, peer) of their create
// stamp, regardless of map iteration order.
func TestChildrenBreaksPositionTiesByLamportThenPeer(t *testing.T) {
	tr := New()
	parent := id.ID{Peer: 1, Counter: 0}
	tr.Create(parent, nil, "m", id.IdLp{Peer: 1, Lamport: 0})

	low := id.ID{Peer: 2, Counter: 0}
	high := id.ID{Peer: 1, Counter: 1}
	tr.Create(low, &parent, "x", id.IdLp{Peer: 2, Lamport: 1})
	tr.Create(high, &parent, "x", id.IdLp{Peer: 1, Lamport: 2})

	for i := 0; i < 5; i++ {
		children := tr.Children(&parent)
		if len(children) != 2 || children[0] != low || children[1] != high {
			t.Fatalf("Children(parent) = %v, want [low(lamport=1), high(lamport=2)] in lamport order", children)
		}
	}

	samePeer := New()
	samePeer.Create(parent, nil, "m", id.IdLp{Peer: 1, Lamport: 0})
	peerLow := id.ID{Peer: 1, Counter: 1}
	peerHigh := id.ID{Peer: 2, Counter: 1}
	samePeer.Create(peerLow, &parent, "x", id.IdLp{Peer: 1, Lamport: 1})
	samePeer.Create(peerHigh, &parent, "x", id.IdLp{Peer: 2, Lamport: 1})
	children := samePeer.Children(&parent)
	if len(children) != 2 || children[0] != peerLow || children[1] != peerHigh {
		t.Fatalf("Children(parent) = %v, want peer 1 before peer 2 when lamport ties", children)
	}
}

func TestReplayIsOrderIndependent(t *testing.T) {
	// Two replicas apply a Create and a Move in opposite arrival order;
	// since the log is kept sorted by (lamport, peer) and fully replayed
	// on each insertion, the materialized result must be identical.
	a := id.ID{Peer: 1, Counter: 0}
	b := id.ID{Peer: 1, Counter: 1}

	fwd := New()
	fwd.Create(a, nil, "a", id.IdLp{Peer: 1, Lamport: 0})
	fwd.Create(b, nil, "b", id.IdLp{Peer: 1, Lamport: 1})
	fwd.Move(b, &a, "a", id.IdLp{Peer: 1, Lamport: 2})

	rev := New()
	rev.Create(b, nil, "b", id.IdLp{Peer: 1, Lamport: 1})
	rev.Move(b, &a, "a", id.IdLp{Peer: 1, Lamport: 2})
	rev.Create(a, nil, "a", id.IdLp{Peer: 1, Lamport: 0})

	fk, fp, fok := fwd.Parent(b)
	rk, rp, rok := rev.Parent(b)
	if fk != rk || fp != rp || fok != rok {
		t.Fatalf("arrival order changed the converged parent of b: (%v,%v,%v) vs (%v,%v,%v)", fk, fp, fok, rk, rp, rok)
	}
}
