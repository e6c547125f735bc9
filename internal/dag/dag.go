// Package dag implements AppDag, the causal DAG of spec.md §4.1: a
// run-length-encoded history of Changes per peer, supporting LCA
// computation, causal iteration, and Frontiers<->VersionVector
// conversion.
package dag

import (
	"container/heap"
	"sort"

	"github.com/pkg/errors"

	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/version"
)

// DiffMode classifies a (from,to) pair so the diff calculator can choose
// a fast path (spec.md §4.1, §4.9).
type DiffMode uint8

const (
	// Checkout: arbitrary relationship, full retreat-then-forward diff
	// required.
	Checkout DiffMode = iota
	// Linear: to strictly dominates from and the path is a single-peer
	// chain; ops may be applied directly without retreat.
	Linear
	// ImportGreaterUpdates: to >= from but spans multiple peers; retreat
	// can be skipped but forward still needs the general algorithm.
	ImportGreaterUpdates
	// Import: both sides have concurrent ops.
	Import
)

func (m DiffMode) String() string {
	switch m {
	case Linear:
		return "Linear"
	case ImportGreaterUpdates:
		return "ImportGreaterUpdates"
	case Import:
		return "Import"
	default:
		return "Checkout"
	}
}

// Node is a maximal run-length block of one peer's ops sharing one deps
// frontier (spec.md §4.1).
type Node struct {
	Peer         id.PeerID
	Start        id.Counter
	Lamport      id.Lamport
	Deps         id.Frontiers
	Len          int
	HasSuccessor bool
	// VV is the cumulative version vector as of the end of this block
	// (i.e. after all of its ops have been applied). Precomputing it at
	// push time makes Frontiers->VV conversion O(frontier size) instead
	// of a full DAG walk.
	VV version.VersionVector
}

func (n *Node) end() id.Counter { return n.Start + id.Counter(n.Len) }

func (n *Node) idStart() id.ID { return id.ID{Peer: n.Peer, Counter: n.Start} }
func (n *Node) idEnd() id.ID   { return id.ID{Peer: n.Peer, Counter: n.end() - 1} }

func (n *Node) lamportAt(c id.Counter) id.Lamport {
	return n.Lamport + id.Lamport(c-n.Start)
}

// AppDag is the causal DAG of all changes ever seen by this document,
// local or imported.
type AppDag struct {
	blocks    map[id.PeerID][]*Node
	frontiers id.Frontiers
	vv        version.VersionVector
}

func New() *AppDag {
	return &AppDag{
		blocks:    make(map[id.PeerID][]*Node),
		frontiers: id.Frontiers{},
		vv:        version.New(),
	}
}

func (d *AppDag) Frontiers() id.Frontiers       { return d.frontiers.Clone() }
func (d *AppDag) VV() version.VersionVector     { return d.vv.Clone() }
func (d *AppDag) SetFrontiers(f id.Frontiers)    { d.frontiers = f.Clone() }

// Get locates the block covering target, by binary search on the start
// counters of target.Peer's blocks.
func (d *AppDag) Get(target id.ID) (*Node, bool) {
	blocks := d.blocks[target.Peer]
	i := sort.Search(len(blocks), func(i int) bool { return blocks[i].Start > target.Counter })
	if i == 0 {
		return nil, false
	}
	n := blocks[i-1]
	if target.Counter >= n.end() {
		return nil, false
	}
	return n, true
}

func (d *AppDag) Contains(target id.ID) bool {
	_, ok := d.Get(target)
	return ok
}

// LamportOf returns the lamport of a recorded op.
func (d *AppDag) LamportOf(target id.ID) (id.Lamport, bool) {
	n, ok := d.Get(target)
	if !ok {
		return 0, false
	}
	return n.lamportAt(target.Counter), true
}

// Push records a new run of length atomLen starting at startID with the
// given deps and lamport. It either extends the previous block for this
// peer (when deps reduce to the implicit self-dep on the immediately
// preceding op, keeping counter/lamport contiguous) or allocates a new
// block, marking the predecessor's HasSuccessor flag.
func (d *AppDag) Push(startID id.ID, lamport id.Lamport, deps id.Frontiers, atomLen int) (*Node, error) {
	if atomLen <= 0 {
		return nil, errors.New("dag: push requires positive atom length")
	}
	peerBlocks := d.blocks[startID.Peer]
	selfDep, otherDeps := splitSelfDep(startID, deps)

	if len(peerBlocks) > 0 {
		last := peerBlocks[len(peerBlocks)-1]
		contiguous := last.end() == startID.Counter
		onlySelfDep := selfDep && len(otherDeps) == 0
		lamportContiguous := last.lamportAt(last.end()-1)+1 == lamport
		if contiguous && onlySelfDep && lamportContiguous {
			last.Len += atomLen
			last.HasSuccessor = false
			vv := last.VV.Clone()
			vv.Extend(startID.Peer, startID.Counter+id.Counter(atomLen))
			last.VV = vv
			d.advance(startID, atomLen, lamport)
			return last, nil
		}
	}

	nodeVV := version.New()
	for _, dep := range deps {
		depNode, ok := d.Get(dep)
		if !ok {
			return nil, errors.Errorf("dag: push: dependency %s not present", dep)
		}
		nodeVV = nodeVV.Merge(depVV(depNode, dep))
	}
	nodeVV.Extend(startID.Peer, startID.Counter+id.Counter(atomLen))

	n := &Node{
		Peer:    startID.Peer,
		Start:   startID.Counter,
		Lamport: lamport,
		Deps:    deps.Clone(),
		Len:     atomLen,
		VV:      nodeVV,
	}
	for _, dep := range deps {
		if depNode, ok := d.Get(dep); ok && dep == depNode.idEnd() {
			depNode.HasSuccessor = true
		}
	}
	d.blocks[startID.Peer] = append(peerBlocks, n)
	d.advance(startID, atomLen, lamport)
	return n, nil
}

// advance updates the running frontiers/vv after a successful push.
func (d *AppDag) advance(startID id.ID, atomLen int, lamport id.Lamport) {
	d.vv.Extend(startID.Peer, startID.Counter+id.Counter(atomLen))
	endID := id.ID{Peer: startID.Peer, Counter: startID.Counter + id.Counter(atomLen) - 1}
	// Drop any old frontier entries dominated by this push (self-dep or
	// listed deps), then add the new end id.
	kept := d.frontiers[:0]
	for _, f := range d.frontiers {
		if f.Peer == startID.Peer {
			continue
		}
		kept = append(kept, f)
	}
	kept = append(kept, endID)
	d.frontiers = id.New(kept...)
	_ = lamport
}

func splitSelfDep(startID id.ID, deps id.Frontiers) (hasSelfDep bool, rest id.Frontiers) {
	self := id.ID{Peer: startID.Peer, Counter: startID.Counter - 1}
	for _, dep := range deps {
		if dep == self {
			hasSelfDep = true
			continue
		}
		rest = append(rest, dep)
	}
	return
}

func depVV(n *Node, dep id.ID) version.VersionVector {
	if dep == n.idEnd() {
		return n.VV
	}
	// dep points mid-block: reconstruct the prefix vv by subtracting the
	// tail. Blocks only split their own peer's counter, so this simply
	// clamps that one entry.
	vv := n.VV.Clone()
	vv[n.Peer] = dep.Counter + 1
	return vv
}

// FrontiersToVV converts a Frontiers to a VersionVector by merging the
// cumulative VV recorded at each frontier element's node (spec.md §3.2).
func (d *AppDag) FrontiersToVV(f id.Frontiers) (version.VersionVector, error) {
	out := version.New()
	for _, target := range f {
		n, ok := d.Get(target)
		if !ok {
			return nil, errors.Errorf("dag: frontiers_to_vv: unknown id %s", target)
		}
		out = out.Merge(depVV(n, target))
	}
	return out, nil
}

// VVToFrontiers is the reverse direction, which the spec notes requires
// DAG traversal: start from the naive "latest id per peer" candidate and
// drop any candidate causally dominated by another (spec.md §3.2, §4.1).
func (d *AppDag) VVToFrontiers(vv version.VersionVector) id.Frontiers {
	candidates := vv.ToFrontiers()
	keep := make([]bool, len(candidates))
	for i := range candidates {
		keep[i] = true
	}
	for i, a := range candidates {
		for j, b := range candidates {
			if i == j || !keep[i] {
				continue
			}
			if d.isAncestor(a, b) {
				keep[i] = false
				break
			}
		}
	}
	out := make(id.Frontiers, 0, len(candidates))
	for i, c := range candidates {
		if keep[i] {
			out = append(out, c)
		}
	}
	return id.New(out...)
}

// isAncestor reports whether a causally precedes (or equals) b by
// walking b's deps backward, bounded by lamport.
func (d *AppDag) isAncestor(a, b id.ID) bool {
	if a == b {
		return true
	}
	aNode, ok := d.Get(a)
	if !ok {
		return false
	}
	aLamport := aNode.lamportAt(a.Counter)

	visited := map[id.ID]bool{}
	frontier := []id.ID{b}
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		curNode, ok := d.Get(cur)
		if !ok {
			continue
		}
		if curNode.Peer == a.Peer && a.Counter <= cur.Counter && a.Counter >= curNode.Start {
			return true
		}
		if curNode.lamportAt(cur.Counter) <= aLamport {
			continue
		}
		// Walk back within the same block first (implicit self-dep).
		if cur.Counter > curNode.Start {
			frontier = append(frontier, id.ID{Peer: cur.Peer, Counter: cur.Counter - 1})
		} else {
			for _, dep := range curNode.Deps {
				frontier = append(frontier, dep)
			}
		}
	}
	return false
}

// heap item for the common-ancestor walk.
type heapNode struct {
	lamport id.Lamport
	id      id.ID
}
type nodeHeap []heapNode

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].lamport > h[j].lamport } // max-heap
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(heapNode)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

const (
	markA = 1 << iota
	markB
)

// FindCommonAncestor walks both frontiers down the lamport axis
// (spec.md §4.1), returning the antichain of nodes reachable from both
// sides (the LCA frontier) plus a DiffMode classification of (a,b).
func (d *AppDag) FindCommonAncestor(a, b id.Frontiers) (id.Frontiers, DiffMode, error) {
	if a.Equal(b) {
		return a.Clone(), Linear, nil
	}

	marks := map[id.ID]uint8{}
	h := &nodeHeap{}
	heap.Init(h)
	push := func(ids id.Frontiers, mark uint8) error {
		for _, x := range ids {
			n, ok := d.Get(x)
			if !ok {
				return errors.Errorf("dag: find_common_ancestor: unknown id %s", x)
			}
			marks[x] |= mark
			heap.Push(h, heapNode{lamport: n.lamportAt(x.Counter), id: x})
		}
		return nil
	}
	if err := push(a, markA); err != nil {
		return nil, Checkout, err
	}
	if err := push(b, markB); err != nil {
		return nil, Checkout, err
	}

	var shared id.Frontiers
	seen := map[id.ID]bool{}
	for h.Len() > 0 {
		top := heap.Pop(h).(heapNode)
		if seen[top.id] {
			continue
		}
		seen[top.id] = true
		m := marks[top.id]
		if m == (markA | markB) {
			shared = append(shared, top.id)
			continue
		}
		n, ok := d.Get(top.id)
		if !ok {
			continue
		}
		var preds id.Frontiers
		if top.id.Counter > n.Start {
			preds = id.Frontiers{{Peer: top.id.Peer, Counter: top.id.Counter - 1}}
		} else {
			preds = n.Deps
		}
		for _, p := range preds {
			marks[p] |= m
			pn, ok := d.Get(p)
			if !ok {
				continue
			}
			heap.Push(h, heapNode{lamport: pn.lamportAt(p.Counter), id: p})
		}
	}
	lca := id.New(shared...)

	mode, err := d.classify(a, b, lca)
	if err != nil {
		return nil, Checkout, err
	}
	return lca, mode, nil
}

func (d *AppDag) classify(a, b, lca id.Frontiers) (DiffMode, error) {
	switch {
	case lca.Equal(a) && !lca.Equal(b):
		aVV, err := d.FrontiersToVV(a)
		if err != nil {
			return Checkout, err
		}
		bVV, err := d.FrontiersToVV(b)
		if err != nil {
			return Checkout, err
		}
		diff := bVV.DiffFrom(aVV)
		if len(diff.Forward) <= 1 {
			return Linear, nil
		}
		return ImportGreaterUpdates, nil
	case lca.Equal(b) && !lca.Equal(a):
		return Checkout, nil
	default:
		return Import, nil
	}
}

// CausalIterator walks changes/spans reachable from `from`, restricted
// to `target` per-peer spans, in a topological (causally-respecting)
// order obtained by sorting on (lamport, peer), as used by
// OpLog.export_from-style scans.
type CausalIterator struct {
	dag    *AppDag
	order  []id.ID // one entry per atomic id, in causal order
	cursor int
}

// IterCausal returns an iterator over every atomic id in targetSpans
// that is reachable (causally after) from, ordered by lamport with peer
// id as a tiebreaker (spec.md §4.1).
func (d *AppDag) IterCausal(from version.VersionVector, targetSpans map[id.PeerID]version.Span) *CausalIterator {
	type item struct {
		at id.ID
		lp id.Lamport
	}
	var items []item
	for peer, span := range targetSpans {
		blocks := d.blocks[peer]
		for _, blk := range blocks {
			lo := maxCounter(blk.Start, span.From)
			lo = maxCounter(lo, from.Get(peer))
			hi := minCounter(blk.end(), span.To)
			for c := lo; c < hi; c++ {
				items = append(items, item{at: id.ID{Peer: peer, Counter: c}, lp: blk.lamportAt(c)})
			}
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].lp != items[j].lp {
			return items[i].lp < items[j].lp
		}
		return items[i].at.Peer < items[j].at.Peer
	})
	order := make([]id.ID, len(items))
	for i, it := range items {
		order[i] = it.at
	}
	return &CausalIterator{dag: d, order: order}
}

func (it *CausalIterator) Next() (id.ID, bool) {
	if it.cursor >= len(it.order) {
		return id.ID{}, false
	}
	v := it.order[it.cursor]
	it.cursor++
	return v, true
}

func maxCounter(a, b id.Counter) id.Counter {
	if a > b {
		return a
	}
	return b
}
func minCounter(a, b id.Counter) id.Counter {
	if a < b {
		return a
	}
	return b
}
