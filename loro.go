// Package loro implements a Go CRDT document engine: a causal OpLog of
// Changes, a materialized DocState built from six collaborative
// container kinds, and an observer pipeline that reports the diffs each
// commit/import/checkout produces.
//
// Document is the public facade; see handle.go for the per-container
// verbs and txn.go for the transaction lifecycle.
package loro

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/diffcalc"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/event"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/oplog"
	"github.com/loro-dev/loro-go/internal/state"
	"github.com/loro-dev/loro-go/internal/version"
	"github.com/loro-dev/loro-go/internal/wire"
)

// Document is one replica of a collaboratively-edited document: an
// append-only OpLog plus the materialized DocState it replays into.
type Document struct {
	mu sync.Mutex

	peer id.PeerID
	log  *zap.SugaredLogger

	arena        *arena.Arena
	oplog        *oplog.OpLog
	state        *state.DocState
	historyCache *state.HistoryCache
	registry     *event.Registry

	txn                 *Transaction
	detached            bool
	checkedOutFrontiers id.Frontiers
}

// New returns a document with a randomly generated peer id.
func New() *Document {
	return NewWithPeer(randomPeerID())
}

// NewWithPeer returns a document authoring changes under the given peer
// id.
func NewWithPeer(peer id.PeerID) *Document {
	logger := zap.NewNop().Sugar()
	d := &Document{
		peer:         peer,
		log:          logger,
		arena:        arena.New(),
		oplog:        oplog.New(logger),
		historyCache: state.NewHistoryCache(),
	}
	d.state = state.NewDocState(d.arena)
	d.registry = event.NewRegistry(func(cid id.ContainerID) (id.ContainerID, string, bool) {
		return d.state.ParentOf(cid)
	})
	return d
}

// randomPeerID derives a peer id from a random UUID's first 8 bytes,
// following the teacher's habit of deriving node/peer identifiers from
// google/uuid rather than a bespoke RNG.
func randomPeerID() id.PeerID {
	u := uuid.New()
	return id.PeerID(binary.BigEndian.Uint64(u[:8]))
}

// SetPeerID changes the local peer id. Disallowed while a transaction is
// open.
func (d *Document) SetPeerID(peer id.PeerID) error {
	if !d.mu.TryLock() {
		return errs.ErrLocked
	}
	defer d.mu.Unlock()
	d.peer = peer
	return nil
}

func (d *Document) PeerID() id.PeerID { return d.peer }

// Txn opens a new transaction, holding the document's mutex for its
// entire lifetime (released by Commit/Abort) — only one transaction may
// be live per document (spec.md §4.3), and every other mutating
// Document method uses TryLock against the same mutex so a collision
// surfaces immediately as LockError rather than blocking.
func (d *Document) Txn() (*Transaction, error) {
	if !d.mu.TryLock() {
		return nil, errs.ErrLocked
	}
	t := d.beginTxn()
	d.txn = t
	return t, nil
}

// WithTxn runs f against a fresh transaction, committing on success and
// aborting if f returns an error or panics.
func (d *Document) WithTxn(f func(*Transaction) error) (err error) {
	t, err := d.Txn()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = t.Abort()
			panic(r)
		}
	}()
	if err = f(t); err != nil {
		if abortErr := t.Abort(); abortErr != nil {
			return errors.Wrapf(err, "also failed to abort: %v", abortErr)
		}
		return err
	}
	return t.Commit()
}

// autoTxn runs f against the currently open transaction, or against a
// fresh one that is committed immediately afterward — the single-call
// "auto-commit" ergonomics handle.go's container verbs rely on so a
// bare `doc.GetText(id).Insert(...)` call doesn't require an explicit
// Txn()/Commit() pair. A call nested inside a WithTxn callback finds
// d.txn set and joins that transaction; otherwise it must win Txn()'s
// TryLock. d.txn is read without the lock and without checking which
// goroutine opened the transaction, so a call from another goroutine
// while a transaction is open joins that transaction too: the scheme
// assumes one goroutine drives the document at a time.
func (d *Document) autoTxn(f func(*Transaction) error) error {
	if d.txn != nil {
		return f(d.txn)
	}
	t, err := d.Txn()
	if err != nil {
		return err
	}
	if err := f(t); err != nil {
		_ = t.Abort()
		return err
	}
	return t.Commit()
}

func (d *Document) beginTxn() *Transaction {
	return &Transaction{
		doc:            d,
		startVV:        d.oplog.VV().Clone(),
		startFrontiers: d.oplog.Frontiers().Clone(),
		startCounter:   d.oplog.VV().Get(d.peer),
		startLamport:   d.oplog.NextLamport(),
		peer:           d.peer,
	}
}

// OplogVV returns the version vector of everything recorded in the
// OpLog (irrespective of whether the document is currently checked out
// to an earlier version).
func (d *Document) OplogVV() version.VersionVector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.oplog.VV()
}

// StateFrontiers returns the frontiers of the currently materialized
// DocState (the checked-out version, if detached).
func (d *Document) StateFrontiers() id.Frontiers {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached {
		return d.checkedOutFrontiers.Clone()
	}
	return d.oplog.Frontiers()
}

func (d *Document) FrontiersToVV(f id.Frontiers) (version.VersionVector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.oplog.Dag.FrontiersToVV(f)
}

func (d *Document) VVToFrontiers(vv version.VersionVector) id.Frontiers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.oplog.Dag.VVToFrontiers(vv)
}

// ExportFrom serializes every change not yet reflected in vv.
func (d *Document) ExportFrom(vv version.VersionVector) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wire.EncodeBlob(wire.FromExport(d.oplog, vv))
}

// ExportSnapshot serializes the entire OpLog as a single bootstrap blob.
func (d *Document) ExportSnapshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wire.EncodeBlob(wire.FromSnapshot(d.oplog))
}

// ExportJSONUpdates renders every change not yet reflected in from as
// the stable JSON surface of spec.md §6.3. The export always runs
// through the latest version; there is no upper-bound (`to`) parameter.
func (d *Document) ExportJSONUpdates(from version.VersionVector) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wire.ExportJSONUpdates(d.oplog, from)
}

// SaveSnapshot writes the document's snapshot blob into store under key,
// the logical KV contract spec.md §1 carves out in place of a concrete
// on-disk layout.
func (d *Document) SaveSnapshot(store wire.Store, key []byte) error {
	blob, err := d.ExportSnapshot()
	if err != nil {
		return err
	}
	return store.Put(key, blob)
}

// LoadSnapshot reads the blob stored under key back into the document
// via Import. ok is false if key is absent.
func (d *Document) LoadSnapshot(store wire.Getter, key []byte) (ok bool, err error) {
	blob, ok, err := store.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	return true, d.Import(blob)
}

// Import ingests a blob produced by ExportFrom/ExportSnapshot. Returns
// LockError if a transaction is currently open.
func (d *Document) Import(data []byte) error {
	if !d.mu.TryLock() {
		return errs.ErrLocked
	}
	defer d.mu.Unlock()
	blob, err := wire.DecodeBlob(data)
	if err != nil {
		return err
	}
	return d.importChanges(blob.Changes)
}

// ImportJSONUpdates is the JSON-surface counterpart of Import.
func (d *Document) ImportJSONUpdates(raw []byte) error {
	if !d.mu.TryLock() {
		return errs.ErrLocked
	}
	defer d.mu.Unlock()
	changes, err := wire.ImportJSONUpdates(raw)
	if err != nil {
		return err
	}
	return d.importChanges(changes)
}

func (d *Document) importChanges(changes []*oplog.Change) error {
	res, err := d.oplog.ImportRemoteChanges(changes)
	if err != nil {
		return err
	}
	if d.detached {
		// State lags the OpLog while checked out; Attach recomputes it
		// via full replay, so there is nothing further to do here.
		return nil
	}
	var diffs []event.ContainerDiff
	for _, c := range res.Applied {
		cdiffs, err := diffcalc.ApplyChange(d.state, c)
		if err != nil {
			return err
		}
		for _, cd := range cdiffs {
			diffs = append(diffs, event.ContainerDiff{
				Container: cd.Container,
				Diff:      cd,
				Path:      d.pathFor(cd.Container),
			})
		}
	}
	if len(diffs) > 0 {
		d.registry.Dispatch(event.ByImport, false, false, diffs)
	}
	return nil
}

// Checkout materializes DocState at exactly the given frontiers,
// detaching the document from the latest version (spec.md §6.1). See
// DESIGN.md for why this dispatches an event with no per-container diff
// entries rather than a full before/after structural diff.
func (d *Document) Checkout(f id.Frontiers) error {
	if !d.mu.TryLock() {
		return errs.ErrLocked
	}
	defer d.mu.Unlock()
	vv, err := d.oplog.Dag.FrontiersToVV(f)
	if err != nil {
		return errors.Wrap(err, "loro: checkout")
	}
	ds, err := d.historyCache.Checkout(d.oplog, vv)
	if err != nil {
		return err
	}
	d.state = ds
	d.detached = true
	d.checkedOutFrontiers = f.Clone()
	d.registry.Dispatch(event.ByCheckout, false, true, nil)
	return nil
}

// Attach returns the document to the latest version.
func (d *Document) Attach() error {
	if !d.mu.TryLock() {
		return errs.ErrLocked
	}
	defer d.mu.Unlock()
	if !d.detached {
		return nil
	}
	ds, err := d.historyCache.Checkout(d.oplog, d.oplog.VV())
	if err != nil {
		return err
	}
	d.state = ds
	d.detached = false
	d.checkedOutFrontiers = nil
	d.registry.Dispatch(event.ByCheckout, false, false, nil)
	return nil
}

func (d *Document) IsDetached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detached
}

// Subscribe registers a handler for one container, deep (descendants
// included) or shallow.
func (d *Document) Subscribe(cid id.ContainerID, deep bool, h event.Handler) event.SubscriptionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.Subscribe(cid, deep, false, h)
}

// SubscribeOnce is like Subscribe but the handler is removed after its
// first invocation.
func (d *Document) SubscribeOnce(cid id.ContainerID, deep bool, h event.Handler) event.SubscriptionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	sub := d.registry.Subscribe(cid, deep, true, h)
	return sub
}

// SubscribeRoot registers a handler invoked for every event.
func (d *Document) SubscribeRoot(h event.Handler) event.SubscriptionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.SubscribeRoot(h)
}

func (d *Document) Unsubscribe(sid event.SubscriptionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registry.Unsubscribe(sid)
}

// pathFor walks a container's embedding chain up to its root, used to
// build the ContainerDiff.Path spec.md §6.4 asks events to carry. Must
// be called with d.mu held.
func (d *Document) pathFor(cid id.ContainerID) []string {
	var segs []string
	cur := cid
	for i := 0; i < 64; i++ {
		parent, seg, ok := d.state.ParentOf(cur)
		if !ok {
			break
		}
		segs = append([]string{seg}, segs...)
		cur = parent
	}
	if cur.IsRoot {
		segs = append([]string{cur.Name}, segs...)
	}
	return segs
}
