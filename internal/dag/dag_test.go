package dag

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/id"
)

func TestPushExtendsContiguousBlock(t *testing.T) {
	d := New()
	if _, err := d.Push(id.ID{Peer: 1, Counter: 0}, 0, nil, 3); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if _, err := d.Push(id.ID{Peer: 1, Counter: 3}, 3, id.Frontiers{{Peer: 1, Counter: 2}}, 2); err != nil {
		t.Fatalf("second push: %v", err)
	}
	if len(d.blocks[1]) != 1 {
		t.Fatalf("expected the contiguous push to extend the same block, got %d blocks", len(d.blocks[1]))
	}
	if !d.Contains(id.ID{Peer: 1, Counter: 4}) {
		t.Fatal("expected counter 4 to be recorded after the extension")
	}
}

func TestPushNewBlockOnGap(t *testing.T) {
	d := New()
	if _, err := d.Push(id.ID{Peer: 1, Counter: 0}, 0, nil, 2); err != nil {
		t.Fatalf("push: %v", err)
	}
	// A non-contiguous start forces a new block even for the same peer.
	if _, err := d.Push(id.ID{Peer: 1, Counter: 5}, 10, id.Frontiers{{Peer: 1, Counter: 1}}, 1); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(d.blocks[1]) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(d.blocks[1]))
	}
}

func TestFrontiersToVVRoundTrip(t *testing.T) {
	d := New()
	d.Push(id.ID{Peer: 1, Counter: 0}, 0, nil, 3)
	d.Push(id.ID{Peer: 2, Counter: 0}, 0, nil, 2)
	d.SetFrontiers(id.New(id.ID{Peer: 1, Counter: 2}, id.ID{Peer: 2, Counter: 1}))

	vv, err := d.FrontiersToVV(d.Frontiers())
	if err != nil {
		t.Fatalf("FrontiersToVV: %v", err)
	}
	if vv.Get(1) != 3 || vv.Get(2) != 2 {
		t.Fatalf("vv = %+v, want {1:3, 2:2}", vv)
	}

	back := d.VVToFrontiers(vv)
	if !back.Equal(d.Frontiers()) {
		t.Fatalf("VVToFrontiers(FrontiersToVV(f)) = %v, want %v", back, d.Frontiers())
	}
}

func TestFindCommonAncestorOfConcurrentBranches(t *testing.T) {
	d := New()
	// peer1 and peer2 both branch from nothing (concurrent root changes).
	d.Push(id.ID{Peer: 1, Counter: 0}, 0, nil, 1)
	d.Push(id.ID{Peer: 2, Counter: 0}, 0, nil, 1)

	a := id.New(id.ID{Peer: 1, Counter: 0})
	b := id.New(id.ID{Peer: 2, Counter: 0})

	lca, mode, err := d.FindCommonAncestor(a, b)
	if err != nil {
		t.Fatalf("FindCommonAncestor: %v", err)
	}
	if len(lca) != 0 {
		t.Fatalf("lca = %v, want empty (no shared ancestor)", lca)
	}
	if mode != Import {
		t.Fatalf("mode = %v, want Import for two concurrent branches", mode)
	}
}

func TestFindCommonAncestorLinearChain(t *testing.T) {
	d := New()
	d.Push(id.ID{Peer: 1, Counter: 0}, 0, nil, 1)
	d.Push(id.ID{Peer: 1, Counter: 1}, 1, id.Frontiers{{Peer: 1, Counter: 0}}, 1)

	from := id.New(id.ID{Peer: 1, Counter: 0})
	to := id.New(id.ID{Peer: 1, Counter: 1})
	lca, mode, err := d.FindCommonAncestor(from, to)
	if err != nil {
		t.Fatalf("FindCommonAncestor: %v", err)
	}
	if !lca.Equal(from) {
		t.Fatalf("lca = %v, want %v", lca, from)
	}
	if mode != Linear {
		t.Fatalf("mode = %v, want Linear", mode)
	}
}
