package value

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/loro-dev/loro-go/internal/id"
)

func TestEqualBitExactDouble(t *testing.T) {
	nan := Double(math.NaN())
	if !Equal(nan, nan) {
		t.Fatal("NaN should compare equal to itself under bit-exact equality")
	}
	pz := Double(0)
	nz := Double(math.Copysign(0, -1))
	if Equal(pz, nz) {
		t.Fatal("+0 and -0 should not compare equal under bit-exact equality")
	}
}

func TestEqualStructural(t *testing.T) {
	a := List([]Value{I64(1), String("x"), Map(map[string]Value{"k": Bool(true)})})
	b := List([]Value{I64(1), String("x"), Map(map[string]Value{"k": Bool(true)})})
	if !Equal(a, b) {
		t.Fatal("expected deep-equal lists/maps to compare equal")
	}
	c := List([]Value{I64(1), String("y")})
	if Equal(a, c) {
		t.Fatal("did not expect mismatched lists to compare equal")
	}
}

func TestEqualKindMismatch(t *testing.T) {
	if Equal(I64(0), Double(0)) {
		t.Fatal("different kinds should never compare equal even with the same numeric value")
	}
}

func TestHash64ConsistentWithEqual(t *testing.T) {
	a := Map(map[string]Value{"a": I64(1), "b": I64(2)})
	b := Map(map[string]Value{"b": I64(2), "a": I64(1)})
	if !Equal(a, b) {
		t.Fatal("maps built in different key order should compare equal")
	}
	if Hash64(a) != Hash64(b) {
		t.Fatal("Hash64 should be order-independent for maps, matching Equal")
	}
}

func TestHash64DiffersOnDistinctValues(t *testing.T) {
	if Hash64(String("a")) == Hash64(String("b")) {
		t.Fatal("distinct strings should (with overwhelming probability) hash differently")
	}
}

// TestDeepNestedValueRoundTrip uses go-cmp instead of Equal so a
// mismatch in a deeply nested container-ref tree prints a field-level
// diff rather than just a bool.
func TestDeepNestedValueRoundTrip(t *testing.T) {
	cid := id.RootContainerID("sub", id.TypeText)
	built := Map(map[string]Value{
		"items": List([]Value{
			I64(1),
			Map(map[string]Value{"nested": String("x")}),
			ContainerRef(cid),
		}),
		"flag": Bool(true),
	})
	rebuilt := Map(map[string]Value{
		"items": List([]Value{
			I64(1),
			Map(map[string]Value{"nested": String("x")}),
			ContainerRef(cid),
		}),
		"flag": Bool(true),
	})
	if diff := cmp.Diff(built, rebuilt); diff != "" {
		t.Fatalf("built and rebuilt values should be structurally identical (-want +got):\n%s", diff)
	}
}
