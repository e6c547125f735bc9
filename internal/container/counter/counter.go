// Package counter implements the Counter container of spec.md §4.8: a
// grow-only register interpreted as the sum of every Add(f64) applied so
// far. Checkout to an earlier version is recomputing the sum over only
// the ops causally included in the target version vector.
//
// Ops are kept in a log sorted by (lamport, peer) rather than summed
// in arrival order, so that float summation is deterministic regardless
// of import order (floating-point addition is not associative — two
// peers that received the same Adds in different arrival orders would
// otherwise diverge in their last bit). Sorting first and always summing
// in the same canonical order restores determinism.
package counter

import (
	"sort"

	"github.com/loro-dev/loro-go/internal/id"
)

type entry struct {
	delta float64
	stamp id.IdLp
}

type Counter struct {
	log []entry
	sum float64
}

func New() *Counter { return &Counter{} }

// Add records a new Add op and recomputes the materialized sum.
func (c *Counter) Add(delta float64, stamp id.IdLp) {
	i := sort.Search(len(c.log), func(i int) bool { return stamp.Less(c.log[i].stamp) })
	c.log = append(c.log, entry{})
	copy(c.log[i+1:], c.log[i:])
	c.log[i] = entry{delta: delta, stamp: stamp}
	c.recompute()
}

func (c *Counter) recompute() {
	var sum float64
	for _, e := range c.log {
		sum += e.delta
	}
	c.sum = sum
}

// Value returns the current materialized sum.
func (c *Counter) Value() float64 { return c.sum }
