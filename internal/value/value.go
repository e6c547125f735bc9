// Package value implements LoroValue, the tagged union of spec.md §3.5.
package value

import (
	"math"

	"github.com/loro-dev/loro-go/internal/id"
)

// Kind discriminates the LoroValue variants.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindI64
	KindDouble
	KindString
	KindBinary
	KindList
	KindMap
	KindContainer
)

// Value is the tagged union. Only the field matching Kind is meaningful.
type Value struct {
	Kind      Kind
	Bool      bool
	I64       int64
	Double    float64
	Str       string
	Bin       []byte
	List      []Value
	Map       map[string]Value
	Container id.ContainerID
}

func Null() Value                  { return Value{Kind: KindNull} }
func Bool(b bool) Value            { return Value{Kind: KindBool, Bool: b} }
func I64(i int64) Value            { return Value{Kind: KindI64, I64: i} }
func Double(f float64) Value       { return Value{Kind: KindDouble, Double: f} }
func String(s string) Value        { return Value{Kind: KindString, Str: s} }
func Binary(b []byte) Value        { return Value{Kind: KindBinary, Bin: append([]byte{}, b...)} }
func List(vs []Value) Value        { return Value{Kind: KindList, List: vs} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }
func ContainerRef(c id.ContainerID) Value {
	return Value{Kind: KindContainer, Container: c}
}

// doubleBits returns the IEEE-754 bit pattern, used for bit-exact
// equality and hashing per spec.md §3.5 ("hash on Double hashes the
// IEEE-754 bits").
func doubleBits(f float64) uint64 { return math.Float64bits(f) }

// Equal implements the spec's value-equality law: deep structural
// equality with bit-exact Double comparison (so NaN compares equal to
// itself, and +0/-0 compare unequal, unlike Go's native float ==).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindI64:
		return a.I64 == b.I64
	case KindDouble:
		return doubleBits(a.Double) == doubleBits(b.Double)
	case KindString:
		return a.Str == b.Str
	case KindBinary:
		return string(a.Bin) == string(b.Bin)
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindContainer:
		return a.Container == b.Container
	}
	return false
}

// Hash64 is a simple FNV-1a style hash consistent with Equal: bit-exact
// on Double, structural on List/Map.
func Hash64(v Value) uint64 {
	const offset, prime = 1469598103934665603, 1099511628211
	h := uint64(offset)
	mix := func(x uint64) {
		h ^= x
		h *= prime
	}
	mix(uint64(v.Kind))
	switch v.Kind {
	case KindBool:
		if v.Bool {
			mix(1)
		} else {
			mix(0)
		}
	case KindI64:
		mix(uint64(v.I64))
	case KindDouble:
		mix(doubleBits(v.Double))
	case KindString:
		for _, r := range v.Str {
			mix(uint64(r))
		}
	case KindBinary:
		for _, b := range v.Bin {
			mix(uint64(b))
		}
	case KindList:
		for _, e := range v.List {
			mix(Hash64(e))
		}
	case KindMap:
		// Order-independent: XOR per-entry hashes together.
		var acc uint64
		for k, e := range v.Map {
			sub := Hash64(String(k)) ^ Hash64(e)
			acc ^= sub
		}
		mix(acc)
	case KindContainer:
		mix(uint64(v.Container.Peer))
		mix(uint64(v.Container.Counter))
	}
	return h
}
