package loro

import (
	"github.com/loro-dev/loro-go/internal/container/tree"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
	"github.com/loro-dev/loro-go/internal/value"
)

// Container handles are thin (doc, id) pairs: every verb resolves the
// live container off doc.state at call time rather than caching
// anything, so a handle stays valid across Checkout/Attach and across
// transactions (spec.md §6.1).

// GetText returns a handle to the root Text container named name,
// creating it empty on first reference.
func (d *Document) GetText(name string) *TextHandle {
	return &TextHandle{doc: d, cid: id.RootContainerID(name, id.TypeText)}
}

// GetList returns a handle to the root List container named name.
func (d *Document) GetList(name string) *ListHandle {
	return &ListHandle{doc: d, cid: id.RootContainerID(name, id.TypeList)}
}

// GetMovableList returns a handle to the root MovableList container
// named name.
func (d *Document) GetMovableList(name string) *MovableListHandle {
	return &MovableListHandle{doc: d, cid: id.RootContainerID(name, id.TypeMovableList)}
}

// GetMap returns a handle to the root Map container named name.
func (d *Document) GetMap(name string) *MapHandle {
	return &MapHandle{doc: d, cid: id.RootContainerID(name, id.TypeMap)}
}

// GetTree returns a handle to the root Tree container named name.
func (d *Document) GetTree(name string) *TreeHandle {
	return &TreeHandle{doc: d, cid: id.RootContainerID(name, id.TypeTree)}
}

// GetCounter returns a handle to the root Counter container named name.
func (d *Document) GetCounter(name string) *CounterHandle {
	return &CounterHandle{doc: d, cid: id.RootContainerID(name, id.TypeCounter)}
}

// handleFor resolves a handle for a container reached through an
// embedded value.KindContainer reference (spec.md §3.5), e.g. a Map
// entry or List element whose value is itself a sub-container.
func (d *Document) handleFor(cid id.ContainerID) any {
	switch cid.Type {
	case id.TypeText:
		return &TextHandle{doc: d, cid: cid}
	case id.TypeList:
		return &ListHandle{doc: d, cid: cid}
	case id.TypeMovableList:
		return &MovableListHandle{doc: d, cid: cid}
	case id.TypeMap:
		return &MapHandle{doc: d, cid: cid}
	case id.TypeTree:
		return &TreeHandle{doc: d, cid: cid}
	case id.TypeCounter:
		return &CounterHandle{doc: d, cid: cid}
	default:
		return nil
	}
}

// ---- Text ----

type TextHandle struct {
	doc *Document
	cid id.ContainerID
}

func (h *TextHandle) ContainerID() id.ContainerID { return h.cid }

// Insert integrates s at live rune position pos.
func (h *TextHandle) Insert(pos int, s string) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		if pos < 0 || pos > h.doc.state.Text(h.cid).Len() {
			return errs.ErrOutOfBound
		}
		_, err := t.textInsert(h.cid, pos, s)
		return err
	})
}

// Delete removes length live runes starting at pos.
func (h *TextHandle) Delete(pos, length int) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		txt := h.doc.state.Text(h.cid)
		if pos < 0 || length < 0 || pos+length > txt.Len() {
			return errs.ErrOutOfBound
		}
		if length == 0 {
			return nil
		}
		targets := txt.DeleteLocal(pos, length)
		_, err := t.textDelete(h.cid, pos, length, targets)
		return err
	})
}

// InsertUTF16 integrates s at a position expressed in UTF-16 code units,
// converting to the engine's native rune coordinate space before
// inserting (spec.md §6.1's insert_utf16).
func (h *TextHandle) InsertUTF16(pos16 int, s string) error {
	pos, err := h.utf16ToRunePos(pos16)
	if err != nil {
		return err
	}
	return h.Insert(pos, s)
}

// DeleteUTF16 deletes a range expressed in UTF-16 code units.
func (h *TextHandle) DeleteUTF16(pos16, len16 int) error {
	pos, err := h.utf16ToRunePos(pos16)
	if err != nil {
		return err
	}
	end, err := h.utf16ToRunePos(pos16 + len16)
	if err != nil {
		return err
	}
	return h.Delete(pos, end-pos)
}

func (h *TextHandle) utf16ToRunePos(pos16 int) (int, error) {
	if pos16 < 0 {
		return 0, errs.ErrOutOfBound
	}
	runes := []rune(h.doc.state.Text(h.cid).String())
	units := 0
	for i, r := range runes {
		if units == pos16 {
			return i, nil
		}
		units += utf16RuneLen(r)
	}
	if units == pos16 {
		return len(runes), nil
	}
	return 0, errs.ErrOutOfBound
}

func utf16RuneLen(r rune) int {
	if r <= 0xFFFF {
		return 1
	}
	return 2
}

// Mark applies a style interval [start,end) with the given expand
// policy.
func (h *TextHandle) Mark(start, end int, key string, v value.Value, expand ExpandPolicy) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		if start < 0 || end < start || end > h.doc.state.Text(h.cid).Len() {
			return errs.ErrOutOfBound
		}
		_, err := t.styleStart(h.cid, start, end, key, v, expand.toOp(), false)
		return err
	})
}

// Unmark clears key over [start,end).
func (h *TextHandle) Unmark(start, end int, key string) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		if start < 0 || end < start || end > h.doc.state.Text(h.cid).Len() {
			return errs.ErrOutOfBound
		}
		_, err := t.styleStart(h.cid, start, end, key, value.Null(), ExpandNone.toOp(), true)
		return err
	})
}

// Len returns the live rune count.
func (h *TextHandle) Len() int { return h.doc.state.Text(h.cid).Len() }

// LenUTF8 returns the live length in UTF-8 bytes.
func (h *TextHandle) LenUTF8() int { return len(h.doc.state.Text(h.cid).String()) }

// LenUTF16 returns the live length in UTF-16 code units.
func (h *TextHandle) LenUTF16() int {
	n := 0
	for _, r := range h.doc.state.Text(h.cid).String() {
		n += utf16RuneLen(r)
	}
	return n
}

func (h *TextHandle) String() string { return h.doc.state.Text(h.cid).String() }

// StylesAt returns the live style key/value pairs covering rune
// position pos.
func (h *TextHandle) StylesAt(pos int) map[string]value.Value {
	return h.doc.state.Text(h.cid).StylesAt(pos)
}

// ---- List ----

type ListHandle struct {
	doc *Document
	cid id.ContainerID
}

func (h *ListHandle) ContainerID() id.ContainerID { return h.cid }

func (h *ListHandle) Insert(pos int, v value.Value) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		if pos < 0 || pos > h.doc.state.List(h.cid).Len() {
			return errs.ErrOutOfBound
		}
		_, err := t.listInsert(h.cid, pos, []value.Value{v})
		return err
	})
}

func (h *ListHandle) Push(v value.Value) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		_, err := t.listInsert(h.cid, h.doc.state.List(h.cid).Len(), []value.Value{v})
		return err
	})
}

func (h *ListHandle) Delete(pos, length int) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		l := h.doc.state.List(h.cid)
		if pos < 0 || length < 0 || pos+length > l.Len() {
			return errs.ErrOutOfBound
		}
		if length == 0 {
			return nil
		}
		targets := l.DeleteLocal(pos, length)
		_, err := t.listDelete(h.cid, pos, length, targets)
		return err
	})
}

func (h *ListHandle) Get(pos int) (value.Value, bool) {
	return h.doc.state.List(h.cid).Get(pos)
}

func (h *ListHandle) Len() int { return h.doc.state.List(h.cid).Len() }

func (h *ListHandle) Values() []value.Value { return h.doc.state.List(h.cid).Values() }

// GetContainer resolves the element at pos to a typed sub-container
// handle, if it is an embedded container reference (spec.md §3.5).
func (h *ListHandle) GetContainer(pos int) (any, bool) {
	v, ok := h.Get(pos)
	if !ok || v.Kind != value.KindContainer {
		return nil, false
	}
	return h.doc.handleFor(v.Container), true
}

// ---- MovableList ----

type MovableListHandle struct {
	doc *Document
	cid id.ContainerID
}

func (h *MovableListHandle) ContainerID() id.ContainerID { return h.cid }

func (h *MovableListHandle) Insert(pos int, v value.Value) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		if pos < 0 || pos > h.doc.state.MovableList(h.cid).Len() {
			return errs.ErrOutOfBound
		}
		_, err := t.movableListInsert(h.cid, pos, []value.Value{v})
		return err
	})
}

func (h *MovableListHandle) Push(v value.Value) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		_, err := t.movableListInsert(h.cid, h.doc.state.MovableList(h.cid).Len(), []value.Value{v})
		return err
	})
}

func (h *MovableListHandle) Delete(pos, length int) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		ml := h.doc.state.MovableList(h.cid)
		if pos < 0 || length < 0 || pos+length > ml.Len() {
			return errs.ErrOutOfBound
		}
		if length == 0 {
			return nil
		}
		targets := ml.DeleteLocal(pos, length)
		_, err := t.movableListDelete(h.cid, pos, length, targets)
		return err
	})
}

// Set assigns the value of the element currently at live position i.
func (h *MovableListHandle) Set(i int, v value.Value) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		ml := h.doc.state.MovableList(h.cid)
		elemID, ok := ml.ElementAt(i)
		if !ok {
			return errs.ErrOutOfBound
		}
		_, err := t.movableListSet(h.cid, elemID, v)
		return err
	})
}

// Mov relocates the element currently at live position from to position
// to (spec.md §6.1's mov).
func (h *MovableListHandle) Mov(from, to int) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		ml := h.doc.state.MovableList(h.cid)
		if from < 0 || from >= ml.Len() || to < 0 || to >= ml.Len() {
			return errs.ErrOutOfBound
		}
		elemID, ok := ml.ElementAt(from)
		if !ok {
			return errs.ErrOutOfBound
		}
		_, err := t.movableListMove(h.cid, elemID, from, to)
		return err
	})
}

func (h *MovableListHandle) Get(pos int) (value.Value, bool) {
	vals := h.doc.state.MovableList(h.cid).Values()
	if pos < 0 || pos >= len(vals) {
		return value.Value{}, false
	}
	return vals[pos], true
}

func (h *MovableListHandle) Len() int { return h.doc.state.MovableList(h.cid).Len() }

func (h *MovableListHandle) Values() []value.Value { return h.doc.state.MovableList(h.cid).Values() }

// GetContainer resolves the element at pos to a typed sub-container
// handle, if it is an embedded container reference (spec.md §3.5).
func (h *MovableListHandle) GetContainer(pos int) (any, bool) {
	v, ok := h.Get(pos)
	if !ok || v.Kind != value.KindContainer {
		return nil, false
	}
	return h.doc.handleFor(v.Container), true
}

// ---- Map ----

type MapHandle struct {
	doc *Document
	cid id.ContainerID
}

func (h *MapHandle) ContainerID() id.ContainerID { return h.cid }

func (h *MapHandle) Insert(key string, v value.Value) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		_, err := t.mapSet(h.cid, key, v)
		return err
	})
}

func (h *MapHandle) Delete(key string) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		_, err := t.mapDelete(h.cid, key)
		return err
	})
}

func (h *MapHandle) Get(key string) (value.Value, bool) {
	return h.doc.state.Map(h.cid).Get(key)
}

func (h *MapHandle) Keys() []string { return h.doc.state.Map(h.cid).Keys() }

func (h *MapHandle) Len() int { return h.doc.state.Map(h.cid).Len() }

// GetContainer resolves key to a typed sub-container handle, if the
// value stored there is an embedded container reference (spec.md
// §3.5). Returns false if key is absent or holds a plain value.
func (h *MapHandle) GetContainer(key string) (any, bool) {
	v, ok := h.doc.state.Map(h.cid).Get(key)
	if !ok || v.Kind != value.KindContainer {
		return nil, false
	}
	return h.doc.handleFor(v.Container), true
}

// ---- Tree ----

// TreeID names a tree node by its creation op id.
type TreeID = id.ID

type TreeHandle struct {
	doc *Document
	cid id.ContainerID

	fractionalJitter int
}

func (h *TreeHandle) ContainerID() id.ContainerID { return h.cid }

// EnableFractionalIndex records jitter on the handle (spec.md §6.1's
// enable_fractional_index(jitter)). The value does not change the
// positions positionAt produces: tree.Between is jitter-free, see
// DESIGN.md.
func (h *TreeHandle) EnableFractionalIndex(jitter int) { h.fractionalJitter = jitter }

// Create adds a new node under parent (nil for a root-level node) as
// the last sibling, returning its TreeID.
func (h *TreeHandle) Create(parent *TreeID) (TreeID, error) {
	return h.CreateAt(parent, len(h.doc.state.Tree(h.cid).Children(parent)))
}

// CreateAt adds a new node under parent at sibling index, deriving a
// fractional index between its new neighbors.
func (h *TreeHandle) CreateAt(parent *TreeID, index int) (TreeID, error) {
	var newID TreeID
	err := h.doc.autoTxn(func(t *Transaction) error {
		siblings := h.doc.state.Tree(h.cid).Children(parent)
		if index < 0 || index > len(siblings) {
			return errs.ErrOutOfBound
		}
		pos := h.positionAt(siblings, index)
		// A tree node's id is the id of the op that created it, so the
		// target must be predicted before apply() stamps it.
		target, _ := t.nextOpID()
		opID, err := t.treeCreate(h.cid, target, parent, pos)
		if err != nil {
			return err
		}
		newID = opID
		return nil
	})
	return newID, err
}

// Mov reparents node under parent (nil = root) as the last sibling.
func (h *TreeHandle) Mov(node TreeID, parent *TreeID) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		siblings := h.doc.state.Tree(h.cid).Children(parent)
		pos := h.positionAt(siblings, len(siblings))
		_, err := t.treeMove(h.cid, node, parent, pos)
		return err
	})
}

// MovAt reparents node under parent at sibling index.
func (h *TreeHandle) MovAt(node TreeID, parent *TreeID, index int) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		siblings := h.doc.state.Tree(h.cid).Children(parent)
		if index < 0 || index > len(siblings) {
			return errs.ErrOutOfBound
		}
		pos := h.positionAt(siblings, index)
		_, err := t.treeMove(h.cid, node, parent, pos)
		return err
	})
}

func (h *TreeHandle) Delete(node TreeID) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		if _, _, ok := h.doc.state.Tree(h.cid).Parent(node); !ok {
			return errs.ErrNotFound
		}
		_, err := t.treeDelete(h.cid, node)
		return err
	})
}

// GetMeta returns a Map handle over node's metadata container, keyed
// like an ordinary embedded Map: spec.md's tree nodes carry an
// associated key/value bag addressed via the node's own id.
func (h *TreeHandle) GetMeta(node TreeID) *MapHandle {
	metaCid := id.NormalContainerID(node, id.TypeMap)
	return &MapHandle{doc: h.doc, cid: metaCid}
}

func (h *TreeHandle) Parent(node TreeID) (TreeID, bool, bool) {
	kind, parent, ok := h.doc.state.Tree(h.cid).Parent(node)
	return parent, kind == tree.ParentRoot, ok
}

func (h *TreeHandle) Children(parent *TreeID) []TreeID {
	return h.doc.state.Tree(h.cid).Children(parent)
}

func (h *TreeHandle) Roots() []TreeID { return h.doc.state.Tree(h.cid).Roots() }

func (h *TreeHandle) IsDeleted(node TreeID) bool { return h.doc.state.Tree(h.cid).IsDeleted(node) }

// positionAt derives the fractional index for inserting at sibling
// index among the already-ordered live siblings.
func (h *TreeHandle) positionAt(siblings []TreeID, index int) string {
	lo, hi := "", ""
	if index > 0 {
		lo, _ = h.doc.state.Tree(h.cid).Position(siblings[index-1])
	}
	if index < len(siblings) {
		hi, _ = h.doc.state.Tree(h.cid).Position(siblings[index])
	}
	return tree.Between(lo, hi)
}

// ---- Counter ----

type CounterHandle struct {
	doc *Document
	cid id.ContainerID
}

func (h *CounterHandle) ContainerID() id.ContainerID { return h.cid }

func (h *CounterHandle) Increment(delta float64) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		_, err := t.counterAdd(h.cid, delta)
		return err
	})
}

func (h *CounterHandle) Decrement(delta float64) error {
	return h.doc.autoTxn(func(t *Transaction) error {
		_, err := t.counterAdd(h.cid, -delta)
		return err
	})
}

func (h *CounterHandle) Value() float64 { return h.doc.state.Counter(h.cid).Value() }

// ---- style expand policy (public mirror of op.ExpandPolicy) ----

type ExpandPolicy uint8

const (
	ExpandNone ExpandPolicy = iota
	ExpandBefore
	ExpandAfter
	ExpandBoth
)

func (e ExpandPolicy) toOp() op.ExpandPolicy { return op.ExpandPolicy(e) }
