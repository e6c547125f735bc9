package diffcalc

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
	"github.com/loro-dev/loro-go/internal/oplog"
	"github.com/loro-dev/loro-go/internal/state"
	"github.com/loro-dev/loro-go/internal/value"
)

func newState() *state.DocState {
	return state.NewDocState(arena.New())
}

func mapCID(name string) id.ContainerID { return id.RootContainerID(name, id.TypeMap) }
func textCID(name string) id.ContainerID { return id.RootContainerID(name, id.TypeText) }

func TestApplyChangeProducesMapDiff(t *testing.T) {
	ds := newState()
	c := &oplog.Change{
		ID:      id.ID{Peer: 1, Counter: 0},
		Lamport: 0,
		Ops: []op.Op{
			{Container: mapCID("m"), Content: op.MapSet{Key: "k", Value: value.I64(1)}},
		},
	}
	diffs, err := ApplyChange(ds, c)
	if err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	if len(diffs) != 1 {
		t.Fatalf("len(diffs) = %d, want 1", len(diffs))
	}
	d := diffs[0]
	if d.Container != mapCID("m") || len(d.MapEntries) != 1 || d.MapEntries[0].Key != "k" {
		t.Fatalf("diff = %+v, want one MapEntries[0].Key=k", d)
	}
	if got, ok := ds.Map(mapCID("m")).Get("k"); !ok || got.I64 != 1 {
		t.Fatalf("state not mutated: Get(k) = %v, %v", got, ok)
	}
}

func TestApplyChangePreservesFirstTouchOrder(t *testing.T) {
	ds := newState()
	c := &oplog.Change{
		ID:      id.ID{Peer: 1, Counter: 0},
		Lamport: 0,
		Ops: []op.Op{
			{Container: mapCID("second"), Content: op.MapSet{Key: "a", Value: value.I64(1)}},
			{Container: mapCID("first"), Content: op.MapSet{Key: "b", Value: value.I64(2)}},
			{Container: mapCID("second"), Content: op.MapSet{Key: "c", Value: value.I64(3)}},
		},
	}
	diffs, err := ApplyChange(ds, c)
	if err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	if len(diffs) != 2 {
		t.Fatalf("len(diffs) = %d, want 2 distinct containers", len(diffs))
	}
	if diffs[0].Container != mapCID("second") || diffs[1].Container != mapCID("first") {
		t.Fatalf("diffs in wrong first-touch order: %v, %v", diffs[0].Container, diffs[1].Container)
	}
	if len(diffs[0].MapEntries) != 2 {
		t.Fatalf("second container should have accumulated both of its touches, got %d", len(diffs[0].MapEntries))
	}
}

func TestApplyOpLosingLWWWriteProducesNilDiff(t *testing.T) {
	ds := newState()
	cid := mapCID("m")
	// Apply a higher-stamped write directly against state first.
	ds.Map(cid).Apply("k", value.String("new"), id.IdLp{Peer: 9, Lamport: 10})

	d, err := ApplyOp(ds, op.Op{Container: cid, Content: op.MapSet{Key: "k", Value: value.String("stale")}}, id.ID{Peer: 1, Counter: 0}, 0)
	if err != nil {
		t.Fatalf("ApplyOp: %v", err)
	}
	if d != nil {
		t.Fatalf("ApplyOp for a losing LWW write = %+v, want nil diff", d)
	}
	if got, _ := ds.Map(cid).Get("k"); got.Str != "new" {
		t.Fatalf("state regressed to the losing write: %v", got)
	}
}

func TestApplyOpTextInsertProducesSeqDelta(t *testing.T) {
	ds := newState()
	cid := textCID("t")
	d, err := ApplyOp(ds, op.Op{Container: cid, Content: op.TextInsert{Pos: 0, Text: "hi", UnicodeLen: 2}}, id.ID{Peer: 1, Counter: 0}, 0)
	if err != nil {
		t.Fatalf("ApplyOp: %v", err)
	}
	if d == nil || len(d.SeqDelta) != 2 {
		t.Fatalf("diff = %+v, want a 2-entry seq delta (retain+insert)", d)
	}
	if ds.Text(cid).String() != "hi" {
		t.Fatalf("state not mutated by ApplyOp")
	}
}

func TestTouchedContainersMatchesAppliedDiffs(t *testing.T) {
	ds := newState()
	c := &oplog.Change{
		ID: id.ID{Peer: 1, Counter: 0},
		Ops: []op.Op{
			{Container: mapCID("a"), Content: op.MapSet{Key: "k", Value: value.I64(1)}},
			{Container: mapCID("b"), Content: op.MapSet{Key: "k", Value: value.I64(2)}},
		},
	}
	diffs, err := ApplyChange(ds, c)
	if err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	bm := TouchedContainers(ds, diffs)
	if bm.GetCardinality() != 2 {
		t.Fatalf("TouchedContainers cardinality = %d, want 2", bm.GetCardinality())
	}
}
