package oplog

import (
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
)

// Change is the atomic unit of causal history (spec.md §3.3).
type Change struct {
	ID        id.ID
	Lamport   id.Lamport
	Timestamp int64 // milliseconds
	Deps      id.Frontiers
	Message   string
	Ops       []op.Op
}

// AtomLen is the total number of atomic ops in the change, i.e. the
// counter span it occupies: [ID.Counter, ID.Counter+AtomLen).
func (c *Change) AtomLen() int {
	n := 0
	for _, o := range c.Ops {
		n += o.Content.AtomLen()
	}
	return n
}

func (c *Change) End() id.Counter { return c.ID.Counter + id.Counter(c.AtomLen()) }

// Peer is a convenience accessor.
func (c *Change) Peer() id.PeerID { return c.ID.Peer }
