// Package arena implements the interning layer of spec.md §2 component 1:
// peer ids, container ids, and a string pool, each exposed through a
// stable small-integer index so the rest of the engine can refer to them
// cheaply (by index) instead of by value.
//
// The arena is append-only: once an entry is interned its index never
// changes, matching the "string pool and value pool are append-only"
// shared-resource policy of spec.md §5.
package arena

import (
	"sync"

	"github.com/loro-dev/loro-go/internal/id"
)

// PeerIdx is a stable small-integer alias for a PeerID.
type PeerIdx uint32

// ContainerIdx is a stable small-integer alias for a ContainerID. The
// rest of the engine (DocState, history cache, diff calculator) indexes
// containers by this rather than carrying ContainerID values around.
type ContainerIdx uint32

// StrIdx is a stable small-integer alias for an interned string, used by
// Text/List ops to reference inserted content without repeating bytes.
type StrIdx uint32

// Arena interns peer ids, container ids and strings for one document.
// Its slices are append-only; writes take the write lock and reads take
// the read lock of one RWMutex, so reads never block one another.
type Arena struct {
	mu sync.RWMutex

	peers    []id.PeerID
	peerIdx  map[id.PeerID]PeerIdx
	cids     []id.ContainerID
	cidIdx   map[id.ContainerID]ContainerIdx
	strs     []string
	strBytes int // total bytes interned
}

func New() *Arena {
	return &Arena{
		peerIdx: make(map[id.PeerID]PeerIdx),
		cidIdx:  make(map[id.ContainerID]ContainerIdx),
	}
}

// InternPeer returns the stable index for peer, allocating one if new.
func (a *Arena) InternPeer(peer id.PeerID) PeerIdx {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx, ok := a.peerIdx[peer]; ok {
		return idx
	}
	idx := PeerIdx(len(a.peers))
	a.peers = append(a.peers, peer)
	a.peerIdx[peer] = idx
	return idx
}

func (a *Arena) Peer(idx PeerIdx) id.PeerID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.peers[idx]
}

// InternContainer returns the stable index for cid, allocating one if new.
// Returns the index and whether this call created it.
func (a *Arena) InternContainer(cid id.ContainerID) (ContainerIdx, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx, ok := a.cidIdx[cid]; ok {
		return idx, false
	}
	idx := ContainerIdx(len(a.cids))
	a.cids = append(a.cids, cid)
	a.cidIdx[cid] = idx
	return idx, true
}

func (a *Arena) Container(idx ContainerIdx) id.ContainerID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cids[idx]
}

// LookupContainer returns the index for an already-interned cid.
func (a *Arena) LookupContainer(cid id.ContainerID) (ContainerIdx, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx, ok := a.cidIdx[cid]
	return idx, ok
}

// NumContainers returns the number of interned containers, i.e. the
// exclusive upper bound on valid ContainerIdx values.
func (a *Arena) NumContainers() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cids)
}

// InternString appends s to the string pool and returns its index. The
// pool is append-only and never deduplicates: two inserts of "a" are two
// distinct spans of content, exactly as two distinct op authors would
// see them, so content is not permitted to be folded together.
func (a *Arena) InternString(s string) StrIdx {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := StrIdx(len(a.strs))
	a.strs = append(a.strs, s)
	a.strBytes += len(s)
	return idx
}

func (a *Arena) String(idx StrIdx) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.strs[idx]
}
