// Package op defines InnerContent, the op-content taxonomy of spec.md
// §3.4, mapped to the container type that holds it.
package op

import (
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/value"
)

// ExpandPolicy governs whether a style mark's interval grows to cover
// text inserted at its boundary (spec.md §4.4).
type ExpandPolicy uint8

const (
	ExpandNone ExpandPolicy = iota
	ExpandBefore
	ExpandAfter
	ExpandBoth
)

// Content is the closed set of InnerContent variants. The framework
// branches on Kind() rather than using a virtual dispatch table, per the
// re-architecture note in spec.md §9 ("replace virtual method tables
// with a closed tagged variant").
type Content interface {
	Kind() string
	// AtomLen is the number of atomic ops this content represents (e.g.
	// the length of an inserted run); used to derive per-atom lamports.
	AtomLen() int
}

// ---- Map ----

type MapSet struct {
	Key   string
	Value value.Value
}

func (MapSet) Kind() string { return "Map.Set" }
func (MapSet) AtomLen() int { return 1 }

type MapDelete struct {
	Key string
}

func (MapDelete) Kind() string { return "Map.Delete" }
func (MapDelete) AtomLen() int { return 1 }

// ---- List (and shared by MovableList) ----

type ListInsert struct {
	// Pos is the index in the materialized list at the op's causal
	// moment (the coordinate space the op's author observed).
	Pos    int
	Values []value.Value
}

func (o ListInsert) Kind() string { return "List.Insert" }
func (o ListInsert) AtomLen() int { return len(o.Values) }

type ListDelete struct {
	Pos, Len int
	// TargetIDs is resolved from Pos/Len against the author's local view
	// at authorship time (spec.md §3.4: "pos is always in the coordinate
	// space the op's original author observed"). Remote appliers use
	// TargetIDs directly rather than re-resolving Pos against their own,
	// possibly-diverged, current view.
	TargetIDs []id.ID
}

func (ListDelete) Kind() string    { return "List.Delete" }
func (o ListDelete) AtomLen() int  { return o.Len }

// ---- Text ----

type TextInsert struct {
	Pos        int
	Text       string
	UnicodeLen int
}

func (TextInsert) Kind() string    { return "Text.Insert" }
func (o TextInsert) AtomLen() int  { return o.UnicodeLen }

type TextDelete struct {
	Pos, Len int
	// TargetIDs, see ListDelete.TargetIDs.
	TargetIDs []id.ID
}

func (TextDelete) Kind() string   { return "Text.Delete" }
func (o TextDelete) AtomLen() int { return o.Len }

type StyleStart struct {
	Start, End int
	Key        string
	Value      value.Value
	Expand     ExpandPolicy
	ToDelete   bool // unmark is encoded as a mark with sentinel empty value + ToDelete
}

func (StyleStart) Kind() string { return "Text.StyleStart" }
func (StyleStart) AtomLen() int { return 1 }

type StyleEnd struct{}

func (StyleEnd) Kind() string { return "Text.StyleEnd" }
func (StyleEnd) AtomLen() int { return 1 }

// ---- MovableList ----

type MovableListMove struct {
	ElemID   id.ID
	From, To int
}

func (MovableListMove) Kind() string { return "MovableList.Move" }
func (MovableListMove) AtomLen() int { return 1 }

type MovableListSet struct {
	ElemID id.ID
	Value  value.Value
}

func (MovableListSet) Kind() string { return "MovableList.Set" }
func (MovableListSet) AtomLen() int { return 1 }

// ---- Tree ----

type TreeCreate struct {
	Target   id.ID
	Parent   *id.ID // nil = root
	Position string // fractional index
}

func (TreeCreate) Kind() string { return "Tree.Create" }
func (TreeCreate) AtomLen() int { return 1 }

type TreeMove struct {
	Target   id.ID
	Parent   *id.ID
	Position string
}

func (TreeMove) Kind() string { return "Tree.Move" }
func (TreeMove) AtomLen() int { return 1 }

type TreeDelete struct {
	Target id.ID
}

func (TreeDelete) Kind() string { return "Tree.Delete" }
func (TreeDelete) AtomLen() int { return 1 }

// ---- Counter ----

type CounterAdd struct {
	Delta float64
}

func (CounterAdd) Kind() string { return "Counter.Add" }
func (CounterAdd) AtomLen() int { return 1 }

// Op is one InnerContent applied against a specific container, stamped
// with its own ID/lamport (the per-atom values are derived from the
// owning Change's start id/lamport plus the op's offset within it).
type Op struct {
	Container id.ContainerID
	Content   Content
}
