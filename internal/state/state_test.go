package state

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
	"github.com/loro-dev/loro-go/internal/oplog"
	"github.com/loro-dev/loro-go/internal/value"
)

func newDS() *DocState { return NewDocState(arena.New()) }

func TestApplyChangeAcrossContainerTypes(t *testing.T) {
	ds := newDS()
	mapCID := id.RootContainerID("m", id.TypeMap)
	textCID := id.RootContainerID("t", id.TypeText)
	listCID := id.RootContainerID("l", id.TypeList)
	counterCID := id.RootContainerID("c", id.TypeCounter)

	c := &oplog.Change{
		ID: id.ID{Peer: 1, Counter: 0},
		Ops: []op.Op{
			{Container: mapCID, Content: op.MapSet{Key: "k", Value: value.Bool(true)}},
			{Container: textCID, Content: op.TextInsert{Pos: 0, Text: "ab", UnicodeLen: 2}},
			{Container: listCID, Content: op.ListInsert{Pos: 0, Values: []value.Value{value.I64(1), value.I64(2)}}},
			{Container: counterCID, Content: op.CounterAdd{Delta: 4}},
		},
	}
	if err := ds.ApplyChange(c); err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}

	if v, ok := ds.Map(mapCID).Get("k"); !ok || !v.Bool {
		t.Fatalf("Map.Get(k) = %v, %v, want true", v, ok)
	}
	if got := ds.Text(textCID).String(); got != "ab" {
		t.Fatalf("Text.String() = %q, want %q", got, "ab")
	}
	if got := ds.List(listCID).Values(); len(got) != 2 || got[0].I64 != 1 || got[1].I64 != 2 {
		t.Fatalf("List.Values() = %v, want [1 2]", got)
	}
	if got := ds.Counter(counterCID).Value(); got != 4 {
		t.Fatalf("Counter.Value() = %v, want 4", got)
	}
}

func TestApplyChangeRejectsTypeMismatch(t *testing.T) {
	ds := newDS()
	textCID := id.RootContainerID("x", id.TypeText)
	// First touch establishes x as a Text container.
	ds.ApplyChange(&oplog.Change{
		ID:  id.ID{Peer: 1, Counter: 0},
		Ops: []op.Op{{Container: textCID, Content: op.TextInsert{Pos: 0, Text: "a", UnicodeLen: 1}}},
	})
	err := ds.ApplyChange(&oplog.Change{
		ID:  id.ID{Peer: 1, Counter: 1},
		Ops: []op.Op{{Container: textCID, Content: op.MapSet{Key: "k", Value: value.I64(1)}}},
	})
	if err == nil {
		t.Fatal("expected an error applying a Map op against a Text container")
	}
}

func TestContainerValueReflectsMaterializedState(t *testing.T) {
	ds := newDS()
	mapCID := id.RootContainerID("m", id.TypeMap)
	ds.ApplyChange(&oplog.Change{
		ID:  id.ID{Peer: 1, Counter: 0},
		Ops: []op.Op{{Container: mapCID, Content: op.MapSet{Key: "k", Value: value.String("v")}}},
	})
	got := ds.ContainerValue(mapCID)
	if got.Kind != value.KindMap || got.Map["k"].Str != "v" {
		t.Fatalf("ContainerValue = %+v, want map{k:v}", got)
	}
}

func TestRegisterParentIsFirstWriteWins(t *testing.T) {
	ds := newDS()
	parent := id.RootContainerID("p", id.TypeMap)
	child := id.NormalContainerID(id.ID{Peer: 1, Counter: 0}, id.TypeMap)

	ds.RegisterParent(child, parent, "first")
	ds.RegisterParent(child, parent, "second") // must be ignored

	p, seg, ok := ds.ParentOf(child)
	if !ok || p != parent || seg != "first" {
		t.Fatalf("ParentOf(child) = %v, %q, %v, want %v, \"first\", true", p, seg, ok, parent)
	}
}

func TestRegisterContainerParentsFromMapSet(t *testing.T) {
	ds := newDS()
	parent := id.RootContainerID("p", id.TypeMap)
	child := id.NormalContainerID(id.ID{Peer: 1, Counter: 5}, id.TypeText)

	o := op.Op{Container: parent, Content: op.MapSet{Key: "embedded", Value: value.ContainerRef(child)}}
	RegisterContainerParents(ds, o)

	p, seg, ok := ds.ParentOf(child)
	if !ok || p != parent || seg != "embedded" {
		t.Fatalf("ParentOf(child) = %v, %q, %v", p, seg, ok)
	}
}
