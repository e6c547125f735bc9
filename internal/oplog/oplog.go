// Package oplog implements OpLog, the append-only causal log of spec.md
// §4.2: a durable set of Changes indexed by peer, backed by an AppDag,
// with a pending buffer for changes whose dependencies have not yet
// arrived.
package oplog

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/loro-dev/loro-go/internal/dag"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/version"
)

// ImportResult reports the outcome of importing a batch of changes.
type ImportResult struct {
	Applied []*Change
	Pending int // number of changes now waiting on a missing dep
}

// OpLog is the append-only set of Changes, indexed by peer, plus the
// causal DAG derived from them.
type OpLog struct {
	Dag             *dag.AppDag
	changes         map[id.PeerID][]*Change // sorted by ID.Counter, RLE-ish (adjacent changes not auto-merged on read)
	nextLamport     id.Lamport
	latestTimestamp int64
	pending         map[id.ID][]*Change // keyed by the ID of the missing dep
	batchImporting  bool
	log             *zap.SugaredLogger
}

func New(logger *zap.SugaredLogger) *OpLog {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &OpLog{
		Dag:     dag.New(),
		changes: make(map[id.PeerID][]*Change),
		pending: make(map[id.ID][]*Change),
		log:     logger,
	}
}

func (l *OpLog) VV() version.VersionVector   { return l.Dag.VV() }
func (l *OpLog) Frontiers() id.Frontiers     { return l.Dag.Frontiers() }
func (l *OpLog) NextLamport() id.Lamport     { return l.nextLamport }
func (l *OpLog) LatestTimestamp() int64      { return l.latestTimestamp }
func (l *OpLog) PendingCount() int {
	n := 0
	for _, cs := range l.pending {
		n += len(cs)
	}
	return n
}

// ChangeAt returns the change covering id, if any.
func (l *OpLog) ChangeAt(target id.ID) (*Change, bool) {
	cs := l.changes[target.Peer]
	i := sort.Search(len(cs), func(i int) bool { return cs[i].ID.Counter > target.Counter })
	if i == 0 {
		return nil, false
	}
	c := cs[i-1]
	if target.Counter >= c.End() {
		return nil, false
	}
	return c, true
}

// ImportLocalChange validates and appends a change authored by the local
// peer. It is the OpLog-side half of Transaction.Commit.
func (l *OpLog) ImportLocalChange(c *Change) error {
	if l.Dag.Contains(c.ID) {
		return errors.WithStack(errs.ErrUsedOpID)
	}
	for _, dep := range c.Deps {
		if !l.Dag.Contains(dep) {
			return errors.Wrapf(errs.ErrDecode, "local change %s has unrecorded dep %s", c.ID, dep)
		}
	}
	if _, err := l.Dag.Push(c.ID, c.Lamport, c.Deps, c.AtomLen()); err != nil {
		return errors.Wrap(err, "oplog: push local change")
	}
	l.append(c)
	l.advanceClock(c)
	return nil
}

// ImportRemoteChanges imports a batch of changes received from a peer.
// Pass 1 splits changes into ready (all deps already in the DAG) and
// pending (indexed under one missing dep). Pass 2 is a fixed-point loop:
// pop ready changes, compute lamport if unknown, append; any pending
// change keyed on the id just appended becomes ready. The whole batch is
// either fully processed into applied+pending buckets, or (on a
// structurally broken dep list) rejected wholesale — no partial
// application, per spec.md §7.
func (l *OpLog) ImportRemoteChanges(batch []*Change) (ImportResult, error) {
	for _, c := range batch {
		if err := validateChangeShape(c); err != nil {
			return ImportResult{}, errors.Wrap(err, "oplog: malformed change batch")
		}
	}

	l.batchImporting = true
	defer func() { l.batchImporting = false }()

	queue := make([]*Change, 0, len(batch))
	for _, c := range batch {
		if l.Dag.Contains(c.ID) {
			continue // already known; idempotent import (P2)
		}
		queue = append(queue, c)
	}

	var applied []*Change
	progress := true
	for progress {
		progress = false
		var next []*Change
		for _, c := range queue {
			if l.allDepsReady(c) {
				if err := l.applyReady(c); err != nil {
					return ImportResult{}, err
				}
				applied = append(applied, c)
				progress = true
				l.promotePending(c, &applied)
			} else {
				next = append(next, c)
			}
		}
		queue = next
	}
	for _, c := range queue {
		l.bufferPending(c)
	}

	l.Dag.SetFrontiers(l.recomputeFrontiers())
	return ImportResult{Applied: applied, Pending: len(queue)}, nil
}

func (l *OpLog) allDepsReady(c *Change) bool {
	for _, dep := range c.Deps {
		if !l.Dag.Contains(dep) {
			return false
		}
	}
	return true
}

func (l *OpLog) applyReady(c *Change) error {
	if c.Lamport == 0 && len(c.Deps) > 0 {
		lp, err := l.calcLamport(c)
		if err != nil {
			return err
		}
		c.Lamport = lp
	}
	if _, err := l.Dag.Push(c.ID, c.Lamport, c.Deps, c.AtomLen()); err != nil {
		return errors.Wrap(err, "oplog: push remote change")
	}
	l.append(c)
	l.advanceClock(c)
	return nil
}

func (l *OpLog) calcLamport(c *Change) (id.Lamport, error) {
	var maxLp id.Lamport
	for _, dep := range c.Deps {
		lp, ok := l.Dag.LamportOf(dep)
		if !ok {
			return 0, errors.Errorf("oplog: cannot compute lamport, dep %s missing", dep)
		}
		if lp+1 > maxLp {
			maxLp = lp + 1
		}
	}
	return maxLp, nil
}

func (l *OpLog) bufferPending(c *Change) {
	for _, dep := range c.Deps {
		if !l.Dag.Contains(dep) {
			l.pending[dep] = append(l.pending[dep], c)
			l.log.Debugw("change buffered pending dep", "change", c.ID, "missingDep", dep)
			return
		}
	}
}

// promotePending moves changes waiting on just-appended ids back onto
// the ready path; it is called for every atomic id the applied change
// covers, since a pending change may depend on any atom within it, not
// just its start id.
func (l *OpLog) promotePending(c *Change, applied *[]*Change) {
	for off := 0; off < c.AtomLen(); off++ {
		key := id.ID{Peer: c.ID.Peer, Counter: c.ID.Counter + id.Counter(off)}
		waiters, ok := l.pending[key]
		if !ok {
			continue
		}
		delete(l.pending, key)
		for _, w := range waiters {
			if l.allDepsReady(w) {
				if err := l.applyReady(w); err != nil {
					l.log.Warnw("failed to apply promoted pending change", "change", w.ID, "err", err)
					continue
				}
				*applied = append(*applied, w)
				l.promotePending(w, applied)
			} else {
				l.bufferPending(w)
			}
		}
	}
}

func (l *OpLog) append(c *Change) {
	peerChanges := l.changes[c.ID.Peer]
	if n := len(peerChanges); n > 0 {
		last := peerChanges[n-1]
		if last.End() == c.ID.Counter && len(c.Deps) == 1 {
			expected := id.ID{Peer: c.ID.Peer, Counter: c.ID.Counter - 1}
			if dep, ok := c.Deps.AsSingle(); ok && dep == expected {
				last.Ops = append(last.Ops, c.Ops...)
				return
			}
		}
	}
	l.changes[c.ID.Peer] = append(peerChanges, c)
}

func (l *OpLog) advanceClock(c *Change) {
	if c.Lamport+id.Lamport(c.AtomLen()) > l.nextLamport {
		l.nextLamport = c.Lamport + id.Lamport(c.AtomLen())
	}
	if c.Timestamp > l.latestTimestamp {
		l.latestTimestamp = c.Timestamp
	}
}

func (l *OpLog) recomputeFrontiers() id.Frontiers {
	vv := l.Dag.VV()
	return l.Dag.VVToFrontiers(vv)
}

func validateChangeShape(c *Change) error {
	if len(c.Ops) == 0 {
		return errors.Wrap(errs.ErrDecode, "change has no ops")
	}
	for _, dep := range c.Deps {
		if dep.Peer == c.ID.Peer && dep.Counter >= c.ID.Counter {
			return errors.Wrapf(errs.ErrDecode, "change %s has non-causal self dep %s", c.ID, dep)
		}
	}
	return nil
}

// ExportFrom serializes every change with counter >= vv[peer] for each
// peer; the logical contract only (wire.UpdateBlob owns the actual byte
// encoding, per spec.md §1's out-of-scope wire codec).
func (l *OpLog) ExportFrom(vv version.VersionVector) []*Change {
	var out []*Change
	peers := make([]id.PeerID, 0, len(l.changes))
	for p := range l.changes {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	for _, p := range peers {
		from := vv.Get(p)
		for _, c := range l.changes[p] {
			if c.End() <= from {
				continue
			}
			if c.ID.Counter >= from {
				out = append(out, c)
				continue
			}
			out = append(out, sliceChange(c, from))
		}
	}
	return out
}

// sliceChange returns the suffix of c starting at counter from (from >
// c.ID.Counter). Slicing happens at op granularity, not atom granularity:
// an op whose span straddles `from` is dropped whole rather than split,
// a deliberate simplification of the (out-of-scope, per spec.md §1) wire
// codec's exact byte-for-byte re-chunking.
func sliceChange(c *Change, from id.Counter) *Change {
	out := &Change{
		ID:        id.ID{Peer: c.ID.Peer, Counter: from},
		Timestamp: c.Timestamp,
		Message:   c.Message,
		Deps:      id.Frontiers{{Peer: c.ID.Peer, Counter: from - 1}},
	}
	offset := 0
	firstKept := true
	for _, o := range c.Ops {
		start := c.ID.Counter + id.Counter(offset)
		if start >= from {
			if firstKept {
				out.Lamport = c.Lamport + id.Lamport(offset)
				firstKept = false
			}
			out.Ops = append(out.Ops, o)
		}
		offset += o.Content.AtomLen()
	}
	return out
}

// IterFromLcaCausally returns the LCA of from and to plus a causal
// iterator over every id reachable from `to` but not from the LCA
// (spec.md §4.2), which the diff calculator drives forward.
func (l *OpLog) IterFromLcaCausally(from, to id.Frontiers) (version.VersionVector, *dag.CausalIterator, error) {
	lcaFrontiers, _, err := l.Dag.FindCommonAncestor(from, to)
	if err != nil {
		return nil, nil, errors.Wrap(err, "oplog: iter_from_lca_causally")
	}
	lcaVV, err := l.Dag.FrontiersToVV(lcaFrontiers)
	if err != nil {
		return nil, nil, err
	}
	toVV, err := l.Dag.FrontiersToVV(to)
	if err != nil {
		return nil, nil, err
	}
	spans := make(map[id.PeerID]version.Span)
	for p, end := range toVV {
		spans[p] = version.Span{From: lcaVV.Get(p), To: end}
	}
	return lcaVV, l.Dag.IterCausal(lcaVV, spans), nil
}

// AllPeers returns every peer with at least one recorded change.
func (l *OpLog) AllPeers() []id.PeerID {
	peers := make([]id.PeerID, 0, len(l.changes))
	for p := range l.changes {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// ChangesOf returns the recorded changes for peer, in counter order.
func (l *OpLog) ChangesOf(peer id.PeerID) []*Change {
	out := make([]*Change, len(l.changes[peer]))
	copy(out, l.changes[peer])
	return out
}
