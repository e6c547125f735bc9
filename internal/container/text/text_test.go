package text

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
	"github.com/loro-dev/loro-go/internal/value"
)

func TestInsertDelete(t *testing.T) {
	txt := New()
	txt.Insert(0, "hello world", id.ID{Peer: 1, Counter: 0}, 0)
	if got := txt.String(); got != "hello world" {
		t.Fatalf("String() = %q", got)
	}
	ids := txt.DeleteLocal(5, 6)
	if len(ids) != 6 {
		t.Fatalf("DeleteLocal returned %d ids, want 6", len(ids))
	}
	if got := txt.String(); got != "hello" {
		t.Fatalf("String() after delete = %q, want %q", got, "hello")
	}
	if txt.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", txt.Len())
	}
}

func TestMarkExpandBoth(t *testing.T) {
	txt := New()
	txt.Insert(0, "hello", id.ID{Peer: 1, Counter: 0}, 0)
	stamp := id.IdLp{Peer: 1, Lamport: 1}
	txt.Mark(1, 3, "bold", value.Bool(true), op.ExpandBoth, false, stamp)

	styles := txt.StylesAt(1)
	if v, ok := styles["bold"]; !ok || !v.Bool {
		t.Fatalf("expected bold at pos 1, got %v", styles)
	}
	if _, ok := txt.StylesAt(0)["bold"]; ok {
		t.Fatal("did not expect bold outside the marked range")
	}

	// Inserting right at the end boundary with ExpandBoth should grow the
	// mark to cover the new text.
	txt.Insert(3, "X", id.ID{Peer: 1, Counter: 10}, 5)
	if _, ok := txt.StylesAt(3)["bold"]; !ok {
		t.Fatal("expected the mark to expand over text inserted at its end boundary")
	}
}

func TestMarkLWWBetweenOverlappingStyles(t *testing.T) {
	txt := New()
	txt.Insert(0, "hello", id.ID{Peer: 1, Counter: 0}, 0)
	early := id.IdLp{Peer: 1, Lamport: 1}
	late := id.IdLp{Peer: 1, Lamport: 2}

	txt.Mark(0, 5, "color", value.String("red"), op.ExpandNone, false, early)
	txt.Mark(1, 4, "color", value.String("blue"), op.ExpandNone, false, late)

	// The later write wins wherever the two ranges overlap; since they
	// overlap, the earlier mark is dropped entirely rather than trimmed.
	if v := txt.StylesAt(2)["color"]; v.Str != "blue" {
		t.Fatalf("StylesAt(2)[color] = %q, want %q", v.Str, "blue")
	}
	if _, ok := txt.StylesAt(0)["color"]; ok {
		t.Fatal("expected the overlapping earlier mark to be fully superseded")
	}
}

// TestMarkLWWSuppressesLosingNewMark covers the other direction of the
// same race as TestMarkLWWBetweenOverlappingStyles: the higher-stamped
// mark is applied first, then a lower-stamped concurrent mark arrives
// second (the normal case under arbitrary delivery order). The new
// mark must lose and not become visible, rather than shadowing the
// rightful winner by virtue of being appended last.
func TestMarkLWWSuppressesLosingNewMark(t *testing.T) {
	txt := New()
	txt.Insert(0, "hello", id.ID{Peer: 1, Counter: 0}, 0)
	early := id.IdLp{Peer: 1, Lamport: 1}
	late := id.IdLp{Peer: 1, Lamport: 2}

	txt.Mark(1, 4, "color", value.String("blue"), op.ExpandNone, false, late)
	txt.Mark(0, 5, "color", value.String("red"), op.ExpandNone, false, early)

	if v := txt.StylesAt(2)["color"]; v.Str != "blue" {
		t.Fatalf("StylesAt(2)[color] = %q, want %q (the higher-stamped mark must still win)", v.Str, "blue")
	}
	if _, ok := txt.StylesAt(0)["color"]; ok {
		t.Fatal("expected the losing later-arriving mark to be suppressed outside the winner's range too")
	}
}

func TestUnmark(t *testing.T) {
	txt := New()
	txt.Insert(0, "hello", id.ID{Peer: 1, Counter: 0}, 0)
	txt.Mark(0, 5, "bold", value.Bool(true), op.ExpandNone, false, id.IdLp{Peer: 1, Lamport: 1})
	txt.Mark(0, 5, "bold", value.Value{}, op.ExpandNone, true, id.IdLp{Peer: 1, Lamport: 2})
	if _, ok := txt.StylesAt(2)["bold"]; ok {
		t.Fatal("expected unmark to clear the style")
	}
}
