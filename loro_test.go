package loro

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/event"
	"github.com/loro-dev/loro-go/internal/value"
	"github.com/loro-dev/loro-go/internal/wire"
)

func TestTextInsertDelete(t *testing.T) {
	doc := New()
	text := doc.GetText("notes")
	if err := text.Insert(0, "hello world"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := text.String(); got != "hello world" {
		t.Fatalf("String() = %q", got)
	}
	if err := text.Delete(5, 6); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := text.String(); got != "hello" {
		t.Fatalf("String() after delete = %q, want %q", got, "hello")
	}
}

func TestTextOutOfBoundInsert(t *testing.T) {
	doc := New()
	text := doc.GetText("t")
	if err := text.Insert(5, "x"); err != ErrOutOfBound {
		t.Fatalf("Insert(5,...) on empty text = %v, want ErrOutOfBound", err)
	}
}

func TestListPushAndDelete(t *testing.T) {
	doc := New()
	l := doc.GetList("items")
	for i := 0; i < 3; i++ {
		if err := l.Push(value.I64(int64(i))); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if err := l.Delete(0, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	v, ok := l.Get(0)
	if !ok || v.I64 != 1 {
		t.Fatalf("Get(0) = %v, %v, want 1", v, ok)
	}
}

func TestMapSetDeleteGet(t *testing.T) {
	doc := New()
	m := doc.GetMap("cfg")
	if err := m.Insert("name", value.String("loro")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	v, ok := m.Get("name")
	if !ok || v.Str != "loro" {
		t.Fatalf("Get(name) = %v, %v", v, ok)
	}
	if err := m.Delete("name"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := m.Get("name"); ok {
		t.Fatal("expected name to be gone after Delete")
	}
}

func TestMovableListMoveAndSet(t *testing.T) {
	doc := New()
	ml := doc.GetMovableList("ml")
	for i := 0; i < 3; i++ {
		if err := ml.Push(value.I64(int64(i))); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if err := ml.Mov(0, 2); err != nil {
		t.Fatalf("Mov: %v", err)
	}
	vals := ml.Values()
	if len(vals) != 3 || vals[2].I64 != 0 {
		t.Fatalf("Values() = %v, want element 0 moved to the end", vals)
	}
	if err := ml.Set(0, value.I64(99)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := ml.Get(0); v.I64 != 99 {
		t.Fatalf("Get(0) = %v, want 99", v)
	}
}

func TestTreeCreateMoveDelete(t *testing.T) {
	doc := New()
	tr := doc.GetTree("tree")
	root, err := tr.Create(nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	child, err := tr.Create(&root)
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}
	children := tr.Children(&root)
	if len(children) != 1 || children[0] != child {
		t.Fatalf("Children(root) = %v, want [child]", children)
	}
	if err := tr.Delete(child); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !tr.IsDeleted(child) {
		t.Fatal("expected child to be deleted")
	}
}

func TestTreeMetaHandle(t *testing.T) {
	doc := New()
	tr := doc.GetTree("tree")
	node, err := tr.Create(nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	meta := tr.GetMeta(node)
	if err := meta.Insert("label", value.String("root")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	v, ok := meta.Get("label")
	if !ok || v.Str != "root" {
		t.Fatalf("Get(label) = %v, %v, want root", v, ok)
	}
}

func TestCounterIncrementDecrement(t *testing.T) {
	doc := New()
	c := doc.GetCounter("n")
	if err := c.Increment(5); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if err := c.Decrement(2); err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if got := c.Value(); got != 3 {
		t.Fatalf("Value() = %v, want 3", got)
	}
}

// TestConcurrentEditsConverge is the S1-style scenario: two independent
// replicas make non-conflicting edits, then exchange full snapshots; both
// must materialize the identical result regardless of which one imports
// the other's snapshot (P2/P7 convergence).
func TestConcurrentEditsConverge(t *testing.T) {
	a := NewWithPeer(1)
	b := NewWithPeer(2)

	if err := a.GetText("doc").Insert(0, "hello "); err != nil {
		t.Fatalf("a insert: %v", err)
	}
	if err := b.GetText("doc").Insert(0, "world"); err != nil {
		t.Fatalf("b insert: %v", err)
	}

	snapA, err := a.ExportSnapshot()
	if err != nil {
		t.Fatalf("a export: %v", err)
	}
	snapB, err := b.ExportSnapshot()
	if err != nil {
		t.Fatalf("b export: %v", err)
	}

	if err := a.Import(snapB); err != nil {
		t.Fatalf("a import: %v", err)
	}
	if err := b.Import(snapA); err != nil {
		t.Fatalf("b import: %v", err)
	}

	finalA := a.GetText("doc").String()
	finalB := b.GetText("doc").String()
	if finalA != finalB {
		t.Fatalf("replicas diverged: %q vs %q", finalA, finalB)
	}
	if len(finalA) != len("hello world") {
		t.Fatalf("converged text = %q, unexpected length", finalA)
	}
}

func TestExportFromIsIncremental(t *testing.T) {
	a := NewWithPeer(1)
	if err := a.GetText("doc").Insert(0, "a"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	vv := a.OplogVV()
	if err := a.GetText("doc").Insert(1, "b"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	b := NewWithPeer(1)
	incr, err := a.ExportFrom(vv)
	if err != nil {
		t.Fatalf("ExportFrom: %v", err)
	}
	full, err := a.ExportSnapshot()
	if err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}
	if err := b.Import(full); err != nil {
		t.Fatalf("import full: %v", err)
	}
	if got := b.GetText("doc").String(); got != "ab" {
		t.Fatalf("after full import, text = %q, want %q", got, "ab")
	}
	// incremental export covers strictly less than the snapshot
	if len(incr) >= len(full) {
		t.Fatalf("incremental export is %d bytes, want fewer than the %d-byte snapshot", len(incr), len(full))
	}
}

func TestCheckoutAndAttach(t *testing.T) {
	doc := New()
	text := doc.GetText("t")
	if err := text.Insert(0, "a"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	mid := doc.StateFrontiers()
	if err := text.Insert(1, "b"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := doc.Checkout(mid); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !doc.IsDetached() {
		t.Fatal("expected document to report detached after Checkout")
	}
	if got := text.String(); got != "a" {
		t.Fatalf("checked-out text = %q, want %q", got, "a")
	}

	if err := doc.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if doc.IsDetached() {
		t.Fatal("expected document to report attached after Attach")
	}
	if got := text.String(); got != "ab" {
		t.Fatalf("re-attached text = %q, want %q", got, "ab")
	}
}

func TestJSONUpdatesRoundTrip(t *testing.T) {
	a := NewWithPeer(1)
	if err := a.GetMap("m").Insert("k", value.I64(42)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	raw, err := a.ExportJSONUpdates(nil)
	if err != nil {
		t.Fatalf("ExportJSONUpdates: %v", err)
	}

	b := NewWithPeer(2)
	if err := b.ImportJSONUpdates(raw); err != nil {
		t.Fatalf("ImportJSONUpdates: %v", err)
	}
	v, ok := b.GetMap("m").Get("k")
	if !ok || v.I64 != 42 {
		t.Fatalf("Get(k) after JSON round-trip = %v, %v, want 42", v, ok)
	}
}

// TestSaveLoadSnapshotThroughStore exercises the logical KV contract
// (internal/wire.Store) a caller persists snapshots through, using the
// in-memory reference driver since this module owns no on-disk layout.
func TestSaveLoadSnapshotThroughStore(t *testing.T) {
	store := wire.NewMemStore()
	key := []byte("docs/doc-1/snapshot")

	a := NewWithPeer(1)
	if err := a.GetText("t").Insert(0, "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := a.SaveSnapshot(store, key); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if has, err := store.Has(key); err != nil || !has {
		t.Fatalf("store.Has(key) = %v, %v, want true", has, err)
	}

	b := NewWithPeer(2)
	ok, err := b.LoadSnapshot(store, key)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !ok {
		t.Fatal("LoadSnapshot reported the key as absent")
	}
	if got := b.GetText("t").String(); got != "hello" {
		t.Fatalf("GetText(t).String() after LoadSnapshot = %q, want %q", got, "hello")
	}

	if ok, err := b.LoadSnapshot(store, []byte("missing")); err != nil || ok {
		t.Fatalf("LoadSnapshot(missing) = %v, %v, want false, nil", ok, err)
	}
}

func TestMapGetContainerResolvesEmbeddedHandle(t *testing.T) {
	doc := New()
	outer := doc.GetMap("outer")
	inner := doc.GetText("inner")
	if err := inner.Insert(0, "hi"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := outer.Insert("child", value.ContainerRef(inner.ContainerID())); err != nil {
		t.Fatalf("Insert container ref: %v", err)
	}

	h, ok := outer.GetContainer("child")
	if !ok {
		t.Fatal("GetContainer(child) = false, want true")
	}
	text, ok := h.(*TextHandle)
	if !ok {
		t.Fatalf("GetContainer(child) = %T, want *TextHandle", h)
	}
	if got := text.String(); got != "hi" {
		t.Fatalf("resolved handle String() = %q, want %q", got, "hi")
	}

	if _, ok := outer.GetContainer("missing"); ok {
		t.Fatal("GetContainer(missing) should report false")
	}
}

func TestSubscribeReceivesLocalEvents(t *testing.T) {
	doc := New()
	text := doc.GetText("t")
	var fired int
	doc.SubscribeRoot(func(e event.Event) {
		fired++
	})
	if err := text.Insert(0, "hi"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if fired == 0 {
		t.Fatal("expected the root subscription to fire on a local commit")
	}
}
