// Package state implements DocState, the materialized view of spec.md
// §4.1/§4.9: one container instance per interned ContainerIdx, built by
// applying ops in causal order, plus a HistoryCache used to support
// arbitrary-version Checkout.
package state

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/container/counter"
	"github.com/loro-dev/loro-go/internal/container/list"
	"github.com/loro-dev/loro-go/internal/container/mapcrdt"
	"github.com/loro-dev/loro-go/internal/container/movablelist"
	"github.com/loro-dev/loro-go/internal/container/text"
	"github.com/loro-dev/loro-go/internal/container/tree"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
	"github.com/loro-dev/loro-go/internal/oplog"
	"github.com/loro-dev/loro-go/internal/value"
)

// containerState is any of the six per-type container implementations,
// opaque to DocState except through applyOp.
type containerState struct {
	typ id.ContainerType

	list  *list.List
	ml    *movablelist.MovableList
	mp    *mapcrdt.Map
	txt   *text.Text
	tr    *tree.Tree
	count *counter.Counter
}

func newContainerState(typ id.ContainerType) *containerState {
	cs := &containerState{typ: typ}
	switch typ {
	case id.TypeList:
		cs.list = list.New()
	case id.TypeMovableList:
		cs.ml = movablelist.New()
	case id.TypeMap:
		cs.mp = mapcrdt.New()
	case id.TypeText:
		cs.txt = text.New()
	case id.TypeTree:
		cs.tr = tree.New()
	case id.TypeCounter:
		cs.count = counter.New()
	}
	return cs
}

// parentLink records that a container was first discovered embedded as
// a value inside another container, at the given path segment (a map
// key or a list index rendered as a string).
type parentLink struct {
	parent id.ContainerID
	seg    string
}

// DocState is the arena of materialized container states plus the
// arena.Arena used to intern their ids.
type DocState struct {
	Arena      *arena.Arena
	containers map[arena.ContainerIdx]*containerState
	parents    map[id.ContainerID]parentLink
}

func NewDocState(a *arena.Arena) *DocState {
	return &DocState{Arena: a, containers: make(map[arena.ContainerIdx]*containerState)}
}

// RegisterParent records, the first time it's seen, that child is
// embedded inside parent at path segment seg. Later registrations for
// the same child are ignored: a container's embedding point does not
// move once the reference that created it is applied.
func (d *DocState) RegisterParent(child, parent id.ContainerID, seg string) {
	if _, ok := d.parents[child]; ok {
		return
	}
	if d.parents == nil {
		d.parents = make(map[id.ContainerID]parentLink)
	}
	d.parents[child] = parentLink{parent: parent, seg: seg}
}

// ParentOf returns the container child is embedded in, if any, used by
// the observer registry to walk deep-subscription ancestry (spec.md
// §4.10) and to build event diff paths (spec.md §6.4).
func (d *DocState) ParentOf(child id.ContainerID) (id.ContainerID, string, bool) {
	l, ok := d.parents[child]
	return l.parent, l.seg, ok
}

// RegisterContainerParents scans an op's payload for LoroValues that
// reference another container and records the parent link for each one
// found (spec.md §3.5 containers may hold sub-containers as ordinary
// values). Called from both the plain replay path (applyOp, below) and
// diffcalc's eager-apply path so the parent map stays consistent
// regardless of which path last touched a given container.
func RegisterContainerParents(d *DocState, o op.Op) {
	switch content := o.Content.(type) {
	case op.MapSet:
		if content.Value.Kind == value.KindContainer {
			d.RegisterParent(content.Value.Container, o.Container, content.Key)
		}
	case op.ListInsert:
		for i, v := range content.Values {
			if v.Kind == value.KindContainer {
				d.RegisterParent(v.Container, o.Container, fmt.Sprintf("%d", content.Pos+i))
			}
		}
	case op.MovableListSet:
		if content.Value.Kind == value.KindContainer {
			d.RegisterParent(content.Value.Container, o.Container, content.ElemID.String())
		}
	}
}

func (d *DocState) containerFor(cid id.ContainerID) *containerState {
	idx, created := d.Arena.InternContainer(cid)
	if created {
		d.containers[idx] = newContainerState(cid.Type)
	}
	return d.containers[idx]
}

// ApplyChange applies every op in c in order, stamping each op's id and
// lamport from the change's start values plus its running atom offset.
func (d *DocState) ApplyChange(c *oplog.Change) error {
	offset := 0
	for _, o := range c.Ops {
		opID := id.ID{Peer: c.ID.Peer, Counter: c.ID.Counter + id.Counter(offset)}
		lamport := c.Lamport + id.Lamport(offset)
		if err := d.applyOp(o, opID, lamport); err != nil {
			return errors.Wrapf(err, "state: apply op %s on %s", o.Content.Kind(), o.Container)
		}
		offset += o.Content.AtomLen()
	}
	return nil
}

func (d *DocState) applyOp(o op.Op, opID id.ID, lamport id.Lamport) error {
	cs := d.containerFor(o.Container)
	RegisterContainerParents(d, o)
	stamp := id.IdLp{Peer: opID.Peer, Lamport: lamport}
	switch content := o.Content.(type) {
	case op.MapSet:
		if cs.typ != id.TypeMap {
			return fmt.Errorf("%w: Map.Set on %s container", errs.ErrDecode, cs.typ)
		}
		cs.mp.Apply(content.Key, content.Value, stamp)
	case op.MapDelete:
		if cs.typ != id.TypeMap {
			return fmt.Errorf("%w: Map.Delete on %s container", errs.ErrDecode, cs.typ)
		}
		cs.mp.ApplyDelete(content.Key, stamp)
	case op.ListInsert:
		if cs.typ != id.TypeList {
			return fmt.Errorf("%w: List.Insert on %s container", errs.ErrDecode, cs.typ)
		}
		cs.list.Insert(content.Pos, content.Values, opID, lamport)
	case op.ListDelete:
		if cs.typ != id.TypeList {
			return fmt.Errorf("%w: List.Delete on %s container", errs.ErrDecode, cs.typ)
		}
		cs.list.DeleteRemote(content.TargetIDs)
	case op.TextInsert:
		if cs.typ != id.TypeText {
			return fmt.Errorf("%w: Text.Insert on %s container", errs.ErrDecode, cs.typ)
		}
		cs.txt.Insert(content.Pos, content.Text, opID, lamport)
	case op.TextDelete:
		if cs.typ != id.TypeText {
			return fmt.Errorf("%w: Text.Delete on %s container", errs.ErrDecode, cs.typ)
		}
		cs.txt.DeleteRemote(content.TargetIDs)
	case op.StyleStart:
		if cs.typ != id.TypeText {
			return fmt.Errorf("%w: Text.StyleStart on %s container", errs.ErrDecode, cs.typ)
		}
		cs.txt.Mark(content.Start, content.End, content.Key, content.Value, content.Expand, content.ToDelete, stamp)
	case op.StyleEnd:
		// StyleEnd is a structural marker only in the op stream (spec.md
		// §3.4); StyleStart already carries the full [start,end) interval,
		// so there is nothing further to apply here.
	case op.MovableListMove:
		if cs.typ != id.TypeMovableList {
			return fmt.Errorf("%w: MovableList.Move on %s container", errs.ErrDecode, cs.typ)
		}
		cs.ml.Move(content.ElemID, content.To, opID, lamport)
	case op.MovableListSet:
		if cs.typ != id.TypeMovableList {
			return fmt.Errorf("%w: MovableList.Set on %s container", errs.ErrDecode, cs.typ)
		}
		cs.ml.Set(content.ElemID, content.Value, stamp)
	case op.TreeCreate:
		if cs.typ != id.TypeTree {
			return fmt.Errorf("%w: Tree.Create on %s container", errs.ErrDecode, cs.typ)
		}
		cs.tr.Create(content.Target, content.Parent, content.Position, stamp)
	case op.TreeMove:
		if cs.typ != id.TypeTree {
			return fmt.Errorf("%w: Tree.Move on %s container", errs.ErrDecode, cs.typ)
		}
		cs.tr.Move(content.Target, content.Parent, content.Position, stamp)
	case op.TreeDelete:
		if cs.typ != id.TypeTree {
			return fmt.Errorf("%w: Tree.Delete on %s container", errs.ErrDecode, cs.typ)
		}
		cs.tr.Delete(content.Target, stamp)
	case op.CounterAdd:
		if cs.typ != id.TypeCounter {
			return fmt.Errorf("%w: Counter.Add on %s container", errs.ErrDecode, cs.typ)
		}
		cs.count.Add(content.Delta, stamp)
	default:
		return fmt.Errorf("%w: unknown op content %T", errs.ErrDecode, content)
	}
	return nil
}

// List/Map/Text/Tree/MovableList/Counter return the live container of
// the given kind, creating it (empty) if this is its first reference —
// mirroring get_text/get_list/... returning a handle to a possibly-empty
// container (spec.md §6.1).
func (d *DocState) List(cid id.ContainerID) *list.List                     { return d.containerFor(cid).list }
func (d *DocState) MovableList(cid id.ContainerID) *movablelist.MovableList { return d.containerFor(cid).ml }
func (d *DocState) Map(cid id.ContainerID) *mapcrdt.Map                    { return d.containerFor(cid).mp }
func (d *DocState) Text(cid id.ContainerID) *text.Text                    { return d.containerFor(cid).txt }
func (d *DocState) Tree(cid id.ContainerID) *tree.Tree                    { return d.containerFor(cid).tr }
func (d *DocState) Counter(cid id.ContainerID) *counter.Counter           { return d.containerFor(cid).count }

// ContainerValue materializes a container's current value as a generic
// value.Value (used by export_json_updates / debug inspection).
func (d *DocState) ContainerValue(cid id.ContainerID) value.Value {
	cs := d.containerFor(cid)
	switch cs.typ {
	case id.TypeList:
		return value.List(cs.list.Values())
	case id.TypeMovableList:
		return value.List(cs.ml.Values())
	case id.TypeMap:
		m := make(map[string]value.Value)
		for k, v := range cs.mp.Snapshot() {
			m[k] = v
		}
		return value.Map(m)
	case id.TypeText:
		return value.String(cs.txt.String())
	case id.TypeCounter:
		return value.Double(cs.count.Value())
	case id.TypeTree:
		return value.Null() // tree has no scalar value; inspect via Tree()
	}
	return value.Null()
}
