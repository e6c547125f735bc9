package loro

import (
	"time"

	"github.com/pkg/errors"

	"github.com/loro-dev/loro-go/internal/diffcalc"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/event"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
	"github.com/loro-dev/loro-go/internal/oplog"
	"github.com/loro-dev/loro-go/internal/state"
	"github.com/loro-dev/loro-go/internal/value"
	"github.com/loro-dev/loro-go/internal/version"
)

// EventHint is a per-op breadcrumb a Transaction records as it runs,
// merged greedily with an RLE rule so a long run of same-kind,
// contiguous edits to one container collapses into a single entry
// (spec.md §4.3). Hints stay on the Transaction: Commit dispatches the
// per-container diffs, not the hints.
type EventHint struct {
	Container id.ContainerID
	Kind      string
	Pos, Len  int
}

func (h EventHint) mergesWith(o EventHint) bool {
	return h.Container == o.Container && h.Kind == o.Kind && h.Pos+h.Len == o.Pos
}

// Transaction batches local edits into one Change. Ops are applied
// eagerly to the document's DocState as they're authored (via
// diffcalc.ApplyOp) so that, within the same transaction, an op sees
// the effects of every op before it — matching spec.md §4.3's "apply to
// state eagerly" without requiring the whole document to block on
// commit before later reads are possible.
//
// Only one Transaction may be live per Document. ABORT never touches
// OpLog (no op is pushed there until Commit), so rolling back just
// means re-deriving DocState by replaying history up to the version
// the transaction started from — reusing the HistoryCache machinery
// Checkout already provides rather than maintaining a separate
// per-container undo log.
type Transaction struct {
	doc            *Document
	startVV        version.VersionVector
	startFrontiers id.Frontiers
	startCounter   id.Counter
	startLamport   id.Lamport
	peer           id.PeerID

	ops     []op.Op
	ids     []id.ID
	diffs   []event.ContainerDiff
	hints   []EventHint
	message string
	done    bool
}

// SetMessage attaches a commit message to the resulting Change.
func (t *Transaction) SetMessage(msg string) {
	t.message = msg
}

func (t *Transaction) nextOpID() (id.ID, id.Lamport) {
	counter := t.startCounter
	lamport := t.startLamport
	for _, o := range t.ops {
		n := id.Counter(o.Content.AtomLen())
		counter += n
		lamport += id.Lamport(n)
	}
	return id.ID{Peer: t.peer, Counter: counter}, lamport
}

// apply stamps content with the next id/lamport in this transaction,
// applies it eagerly against the document's live DocState, and records
// the resulting diff and event hint.
func (t *Transaction) apply(cid id.ContainerID, content op.Content) (id.ID, error) {
	if t.done {
		return id.ID{}, errs.ErrNoActiveTxn
	}
	opID, lamport := t.nextOpID()
	d, err := diffcalc.ApplyOp(t.doc.state, op.Op{Container: cid, Content: content}, opID, lamport)
	if err != nil {
		return id.ID{}, err
	}
	t.ops = append(t.ops, op.Op{Container: cid, Content: content})
	t.ids = append(t.ids, opID)
	if d != nil {
		t.mergeDiff(d)
	}
	t.pushHint(EventHint{Container: cid, Kind: content.Kind(), Pos: hintPos(content), Len: content.AtomLen()})
	return opID, nil
}

func (t *Transaction) mergeDiff(d *diffcalc.InternalDiff) {
	for i := range t.diffs {
		if t.diffs[i].Container == d.Container {
			cd := t.diffs[i].Diff
			cd.SeqDelta = append(cd.SeqDelta, d.SeqDelta...)
			cd.MapEntries = append(cd.MapEntries, d.MapEntries...)
			cd.TreeEntries = append(cd.TreeEntries, d.TreeEntries...)
			cd.CounterDiff += d.CounterDiff
			return
		}
	}
	t.diffs = append(t.diffs, event.ContainerDiff{Container: d.Container, Diff: d})
}

func (t *Transaction) pushHint(h EventHint) {
	if n := len(t.hints); n > 0 && t.hints[n-1].mergesWith(h) {
		t.hints[n-1].Len += h.Len
		return
	}
	t.hints = append(t.hints, h)
}

func hintPos(c op.Content) int {
	switch v := c.(type) {
	case op.ListInsert:
		return v.Pos
	case op.ListDelete:
		return v.Pos
	case op.TextInsert:
		return v.Pos
	case op.TextDelete:
		return v.Pos
	case op.StyleStart:
		return v.Start
	default:
		return 0
	}
}

// --- container-level op builders used by handle.go ---

func (t *Transaction) mapSet(cid id.ContainerID, key string, v value.Value) (id.ID, error) {
	return t.apply(cid, op.MapSet{Key: key, Value: v})
}

func (t *Transaction) mapDelete(cid id.ContainerID, key string) (id.ID, error) {
	return t.apply(cid, op.MapDelete{Key: key})
}

func (t *Transaction) listInsert(cid id.ContainerID, pos int, vals []value.Value) (id.ID, error) {
	return t.apply(cid, op.ListInsert{Pos: pos, Values: vals})
}

func (t *Transaction) listDelete(cid id.ContainerID, pos, length int, targets []id.ID) (id.ID, error) {
	return t.apply(cid, op.ListDelete{Pos: pos, Len: length, TargetIDs: targets})
}

func (t *Transaction) textInsert(cid id.ContainerID, pos int, s string) (id.ID, error) {
	n := 0
	for range s {
		n++
	}
	return t.apply(cid, op.TextInsert{Pos: pos, Text: s, UnicodeLen: n})
}

func (t *Transaction) textDelete(cid id.ContainerID, pos, length int, targets []id.ID) (id.ID, error) {
	return t.apply(cid, op.TextDelete{Pos: pos, Len: length, TargetIDs: targets})
}

func (t *Transaction) styleStart(cid id.ContainerID, start, end int, key string, v value.Value, expand op.ExpandPolicy, toDelete bool) (id.ID, error) {
	return t.apply(cid, op.StyleStart{Start: start, End: end, Key: key, Value: v, Expand: expand, ToDelete: toDelete})
}

func (t *Transaction) movableListInsert(cid id.ContainerID, pos int, vals []value.Value) (id.ID, error) {
	return t.apply(cid, op.ListInsert{Pos: pos, Values: vals})
}

func (t *Transaction) movableListDelete(cid id.ContainerID, pos, length int, targets []id.ID) (id.ID, error) {
	return t.apply(cid, op.ListDelete{Pos: pos, Len: length, TargetIDs: targets})
}

func (t *Transaction) movableListMove(cid id.ContainerID, elemID id.ID, from, to int) (id.ID, error) {
	return t.apply(cid, op.MovableListMove{ElemID: elemID, From: from, To: to})
}

func (t *Transaction) movableListSet(cid id.ContainerID, elemID id.ID, v value.Value) (id.ID, error) {
	return t.apply(cid, op.MovableListSet{ElemID: elemID, Value: v})
}

func (t *Transaction) treeCreate(cid id.ContainerID, target id.ID, parent *id.ID, position string) (id.ID, error) {
	return t.apply(cid, op.TreeCreate{Target: target, Parent: parent, Position: position})
}

func (t *Transaction) treeMove(cid id.ContainerID, target id.ID, parent *id.ID, position string) (id.ID, error) {
	return t.apply(cid, op.TreeMove{Target: target, Parent: parent, Position: position})
}

func (t *Transaction) treeDelete(cid id.ContainerID, target id.ID) (id.ID, error) {
	return t.apply(cid, op.TreeDelete{Target: target})
}

func (t *Transaction) counterAdd(cid id.ContainerID, delta float64) (id.ID, error) {
	return t.apply(cid, op.CounterAdd{Delta: delta})
}

// Commit builds a Change out of every op this transaction applied and
// pushes it to the OpLog, then dispatches the accumulated diffs. Txn()
// holds the document's mutex for the transaction's whole lifetime, so
// Commit releases it rather than acquiring it.
func (t *Transaction) Commit() error {
	if t.done {
		return errs.ErrNoActiveTxn
	}
	t.done = true
	defer func() { t.doc.txn = nil; t.doc.mu.Unlock() }()

	if len(t.ops) == 0 {
		// spec.md §4.3: "if local_ops empty, abort" — nothing was
		// applied to state either, so there is nothing to roll back.
		return nil
	}

	c := &oplog.Change{
		ID:        t.ids[0],
		Lamport:   t.startLamport,
		Timestamp: maxInt64(t.doc.oplog.LatestTimestamp(), time.Now().UnixMilli()),
		Deps:      t.startFrontiers,
		Message:   t.message,
		Ops:       t.ops,
	}
	if err := t.doc.oplog.ImportLocalChange(c); err != nil {
		return errors.Wrap(err, "txn: commit")
	}

	if len(t.diffs) > 0 {
		evts := make([]event.ContainerDiff, len(t.diffs))
		for i, cd := range t.diffs {
			cd.Path = t.doc.pathFor(cd.Container)
			evts[i] = cd
		}
		t.doc.registry.Dispatch(event.ByLocal, true, false, evts)
	}
	return nil
}

// Abort discards every op this transaction applied, restoring DocState
// to the version it had at Txn(), by replaying history up to that
// version (OpLog was never touched, so this fully recovers the prior
// state). Releases the mutex Txn() acquired.
func (t *Transaction) Abort() error {
	if t.done {
		return errs.ErrNoActiveTxn
	}
	t.done = true
	defer func() { t.doc.txn = nil; t.doc.mu.Unlock() }()

	// A fresh cache forces a replay: the document's cache may hold the
	// very DocState this transaction has been mutating.
	ds, err := state.NewHistoryCache().Checkout(t.doc.oplog, t.startVV)
	if err != nil {
		return errors.Wrap(err, "txn: abort")
	}
	t.doc.state = ds
	return nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
