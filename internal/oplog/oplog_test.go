package oplog

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
	"github.com/loro-dev/loro-go/internal/value"
	"github.com/loro-dev/loro-go/internal/version"
)

func mapChange(peer id.PeerID, counter id.Counter, lamport id.Lamport, deps id.Frontiers, key string) *Change {
	return &Change{
		ID:      id.ID{Peer: peer, Counter: counter},
		Lamport: lamport,
		Deps:    deps,
		Ops: []op.Op{
			{Container: id.RootContainerID("m", id.TypeMap), Content: op.MapSet{Key: key, Value: value.I64(int64(counter))}},
		},
	}
}

func TestImportLocalChangeRejectsMissingDep(t *testing.T) {
	l := New(nil)
	c := mapChange(1, 0, 0, id.Frontiers{{Peer: 9, Counter: 0}}, "a")
	if err := l.ImportLocalChange(c); err == nil {
		t.Fatal("expected an error importing a local change with an unrecorded dep")
	}
}

func TestImportLocalChangeRejectsReusedID(t *testing.T) {
	l := New(nil)
	c := mapChange(1, 0, 0, nil, "a")
	if err := l.ImportLocalChange(c); err != nil {
		t.Fatalf("first import: %v", err)
	}
	dup := mapChange(1, 0, 0, nil, "b")
	if err := l.ImportLocalChange(dup); err == nil {
		t.Fatal("expected an error re-using an already-recorded id")
	}
}

// TestImportRemoteChangesPromotesPendingInAnyArrivalOrder is the
// fixed-point promotion scenario: a batch arrives with a change whose
// dependency is also in the same batch but listed afterward; both must
// still end up applied, regardless of which order they appear in within
// the batch.
func TestImportRemoteChangesPromotesPendingInAnyArrivalOrder(t *testing.T) {
	base := mapChange(1, 0, 0, nil, "a")
	dependent := mapChange(1, 1, 1, id.Frontiers{{Peer: 1, Counter: 0}}, "b")

	forward := New(nil)
	res, err := forward.ImportRemoteChanges([]*Change{base, dependent})
	if err != nil {
		t.Fatalf("ImportRemoteChanges: %v", err)
	}
	if len(res.Applied) != 2 || res.Pending != 0 {
		t.Fatalf("forward result = %+v, want both applied, none pending", res)
	}

	reverse := New(nil)
	res, err = reverse.ImportRemoteChanges([]*Change{
		mapChange(1, 1, 1, id.Frontiers{{Peer: 1, Counter: 0}}, "b"),
		mapChange(1, 0, 0, nil, "a"),
	})
	if err != nil {
		t.Fatalf("ImportRemoteChanges (reverse order): %v", err)
	}
	if len(res.Applied) != 2 || res.Pending != 0 {
		t.Fatalf("reverse result = %+v, want both applied, none pending", res)
	}
	if !forward.VV().Equal(reverse.VV()) {
		t.Fatalf("arrival order changed the converged version vector: %+v vs %+v", forward.VV(), reverse.VV())
	}
}

func TestImportRemoteChangesBuffersUnmetDeps(t *testing.T) {
	l := New(nil)
	dependent := mapChange(1, 1, 1, id.Frontiers{{Peer: 1, Counter: 0}}, "b")

	res, err := l.ImportRemoteChanges([]*Change{dependent})
	if err != nil {
		t.Fatalf("ImportRemoteChanges: %v", err)
	}
	if len(res.Applied) != 0 || res.Pending != 1 {
		t.Fatalf("result = %+v, want 0 applied, 1 pending", res)
	}
	if l.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", l.PendingCount())
	}

	base := mapChange(1, 0, 0, nil, "a")
	res, err = l.ImportRemoteChanges([]*Change{base})
	if err != nil {
		t.Fatalf("ImportRemoteChanges (base): %v", err)
	}
	if len(res.Applied) != 2 {
		t.Fatalf("result = %+v, want the base plus its newly-unblocked dependent both applied", res)
	}
	if l.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d, want 0 after the dependency arrives", l.PendingCount())
	}
}

func TestImportRemoteChangesIsIdempotent(t *testing.T) {
	l := New(nil)
	c := mapChange(1, 0, 0, nil, "a")
	if _, err := l.ImportRemoteChanges([]*Change{c}); err != nil {
		t.Fatalf("first import: %v", err)
	}
	res, err := l.ImportRemoteChanges([]*Change{mapChange(1, 0, 0, nil, "a")})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if len(res.Applied) != 0 {
		t.Fatalf("re-importing an already-known change should apply nothing, got %+v", res.Applied)
	}
}

func TestExportFromSlicesPartiallyCoveredChange(t *testing.T) {
	l := New(nil)
	c := &Change{
		ID: id.ID{Peer: 1, Counter: 0},
		Ops: []op.Op{
			{Container: id.RootContainerID("m", id.TypeMap), Content: op.MapSet{Key: "a", Value: value.I64(1)}},
			{Container: id.RootContainerID("m", id.TypeMap), Content: op.MapSet{Key: "b", Value: value.I64(2)}},
			{Container: id.RootContainerID("m", id.TypeMap), Content: op.MapSet{Key: "c", Value: value.I64(3)}},
		},
	}
	if err := l.ImportLocalChange(c); err != nil {
		t.Fatalf("ImportLocalChange: %v", err)
	}

	vv := version.New()
	vv.Extend(1, 1) // ask for everything from counter 1 onward
	out := l.ExportFrom(vv)
	if len(out) != 1 {
		t.Fatalf("ExportFrom = %v, want 1 sliced change", out)
	}
	if out[0].ID.Counter != 1 || len(out[0].Ops) != 2 {
		t.Fatalf("sliced change = %+v, want starting at counter 1 with 2 ops", out[0])
	}
}

func TestExportFromOmitsFullyCoveredChange(t *testing.T) {
	l := New(nil)
	c := mapChange(1, 0, 0, nil, "a")
	if err := l.ImportLocalChange(c); err != nil {
		t.Fatalf("ImportLocalChange: %v", err)
	}
	vv := version.New()
	vv.Extend(1, 1)
	if out := l.ExportFrom(vv); len(out) != 0 {
		t.Fatalf("ExportFrom = %v, want nothing new", out)
	}
}
