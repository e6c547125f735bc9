// Package event implements the observer registry of spec.md §4.10: a
// subscription table keyed by SubscriptionID, dispatched per commit with
// non-reentrant, registration-ordered delivery, and container/deep/once
// scoping.
package event

import (
	"github.com/google/btree"

	"github.com/loro-dev/loro-go/internal/diffcalc"
	"github.com/loro-dev/loro-go/internal/id"
)

// SubscriptionID identifies a registered handler.
type SubscriptionID uint64

// Origin discriminates what caused a Change to be applied.
type Origin uint8

const (
	ByLocal Origin = iota
	ByImport
	ByCheckout
)

// ContainerDiff is one container's contribution to an Event (spec.md
// §6.4: "path, container id, diff value").
type ContainerDiff struct {
	Path      []string
	Container id.ContainerID
	Diff      *diffcalc.InternalDiff
}

// Event is dispatched once per commit/import/checkout.
type Event struct {
	EventID      uint64
	Origin       Origin
	FromCheckout bool
	Local        bool
	Diffs        []ContainerDiff
}

// Handler receives a (possibly path-adjusted) copy of the event.
type Handler func(Event)

type subscription struct {
	id        SubscriptionID
	container *id.ContainerID // nil = root subscription
	deep      bool
	once      bool
	handler   Handler
	removed   bool
}

// pendingEdit is a subscribe/unsubscribe requested from inside a
// dispatch; applied once the current dispatch finishes (spec.md §4.10
// step 4: "queue the change and apply it after the current dispatch").
type pendingEdit struct {
	add    *subscription
	remove SubscriptionID
	isAdd  bool
}

// Registry is the subscription table plus dispatch machinery. It is not
// safe for concurrent use from multiple goroutines without external
// locking (the document-wide mutex of spec.md §5 covers it).
type Registry struct {
	subs      map[SubscriptionID]*subscription
	// order is a btree-backed ordered set of live subscription ids, kept
	// incrementally (insert on register, delete on remove) so dispatch
	// walks registration order in O(n) without re-sorting every time —
	// registration order here is simply ascending SubscriptionID, since
	// ids are assigned monotonically.
	order     *btree.BTreeG[SubscriptionID]
	nextID    SubscriptionID
	nextEvent uint64
	dispatching  bool
	pending      []pendingEdit
	queuedEvents []Event
	parentOf  func(id.ContainerID) (id.ContainerID, string, bool) // walks one level up; returns (parent, relative path segment, ok)
}

func NewRegistry(parentOf func(id.ContainerID) (id.ContainerID, string, bool)) *Registry {
	less := func(a, b SubscriptionID) bool { return a < b }
	return &Registry{
		subs:     make(map[SubscriptionID]*subscription),
		order:    btree.NewG[SubscriptionID](32, less),
		parentOf: parentOf,
	}
}

// Subscribe registers a handler scoped to one container (deep or
// shallow). once removes the subscription after its first invocation.
func (r *Registry) Subscribe(container id.ContainerID, deep, once bool, h Handler) SubscriptionID {
	sub := &subscription{container: &container, deep: deep, once: once, handler: h}
	return r.register(sub)
}

// SubscribeRoot registers a handler invoked for every event regardless
// of which container it targets.
func (r *Registry) SubscribeRoot(h Handler) SubscriptionID {
	sub := &subscription{container: nil, deep: true, handler: h}
	return r.register(sub)
}

func (r *Registry) register(sub *subscription) SubscriptionID {
	if r.dispatching {
		r.nextID++
		sub.id = r.nextID
		r.pending = append(r.pending, pendingEdit{isAdd: true, add: sub})
		return sub.id
	}
	r.nextID++
	sub.id = r.nextID
	r.subs[sub.id] = sub
	r.order.ReplaceOrInsert(sub.id)
	return sub.id
}

// Unsubscribe removes a subscription; if called from inside dispatch it
// is queued like any other registration edit.
func (r *Registry) Unsubscribe(sid SubscriptionID) {
	if r.dispatching {
		r.pending = append(r.pending, pendingEdit{isAdd: false, remove: sid})
		return
	}
	delete(r.subs, sid)
	r.order.Delete(sid)
}

// Dispatch delivers diffs for one commit to every matching handler, in
// registration order, following the collection algorithm of spec.md
// §4.10: handlers on the directly-touched container (shallow+deep),
// then deep handlers on every ancestor (with the event's diff list
// trimmed/path-adjusted is out of scope here — callers pre-build the
// per-container ContainerDiff.Path), then root handlers.
//
// Dispatch is non-reentrant: a Dispatch call made from inside a handler
// (because the handler itself performed a mutation) is buffered and
// runs only after the outer Dispatch completes.
func (r *Registry) Dispatch(origin Origin, local bool, fromCheckout bool, diffs []ContainerDiff) {
	r.nextEvent++
	evt := Event{EventID: r.nextEvent, Origin: origin, Local: local, FromCheckout: fromCheckout, Diffs: diffs}

	if r.dispatching {
		r.queuedEvents = append(r.queuedEvents, evt)
		return
	}

	r.dispatching = true
	r.runDispatch(evt)
	r.dispatching = false
	r.drainPending()

	for len(r.queuedEvents) > 0 {
		next := r.queuedEvents[0]
		r.queuedEvents = r.queuedEvents[1:]
		r.dispatching = true
		r.runDispatch(next)
		r.dispatching = false
		r.drainPending()
	}
}

func (r *Registry) runDispatch(evt Event) {
	touched := make(map[id.ContainerID]bool, len(evt.Diffs))
	for _, d := range evt.Diffs {
		touched[d.Container] = true
	}

	// Registration order across all matching subscriptions.
	ids := make([]SubscriptionID, 0, r.order.Len())
	r.order.Ascend(func(sid SubscriptionID) bool {
		ids = append(ids, sid)
		return true
	})

	var toRemove []SubscriptionID
	for _, sid := range ids {
		sub, ok := r.subs[sid]
		if !ok || sub.removed {
			continue
		}
		if r.matches(sub, touched) {
			sub.handler(evt)
			if sub.once {
				toRemove = append(toRemove, sid)
			}
		}
	}
	for _, sid := range toRemove {
		delete(r.subs, sid)
		r.order.Delete(sid)
	}
}

func (r *Registry) matches(sub *subscription, touched map[id.ContainerID]bool) bool {
	if sub.container == nil {
		return true // root subscription
	}
	if touched[*sub.container] {
		return true
	}
	if !sub.deep {
		return false
	}
	for cid := range touched {
		if r.isDescendant(*sub.container, cid) {
			return true
		}
	}
	return false
}

// isDescendant walks cid's ancestor chain looking for ancestor.
func (r *Registry) isDescendant(ancestor, cid id.ContainerID) bool {
	if r.parentOf == nil {
		return false
	}
	cur := cid
	for i := 0; i < 64; i++ { // bounded: containers form a forest, never a cycle
		parent, _, ok := r.parentOf(cur)
		if !ok {
			return false
		}
		if parent == ancestor {
			return true
		}
		cur = parent
	}
	return false
}

func (r *Registry) drainPending() {
	for _, e := range r.pending {
		if e.isAdd {
			r.subs[e.add.id] = e.add
			r.order.ReplaceOrInsert(e.add.id)
		} else {
			delete(r.subs, e.remove)
			r.order.Delete(e.remove)
		}
	}
	r.pending = nil
}
