package vm

import "fmt"

// ---------------------------------------------------------------------------
// Value: tagged runtime value
// ---------------------------------------------------------------------------

// Kind identifies which member of the Value union is active.
type Kind uint8

const (
	KindInt Kind = iota
	KindLong
	KindFloat
	KindDouble
	KindRef
)

// String returns the descriptor-style name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindRef:
		return "reference"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Wide reports whether the kind occupies two local-variable slots.
func (k Kind) Wide() bool {
	return k == KindLong || k == KindDouble
}

// Ref is a heap address assigned by the VM. The zero Ref is the null
// reference; real addresses start at 1 and are never reused within a run.
type Ref uint64

// NullRef is the null object reference.
const NullRef Ref = 0

// Value is a tagged union over the five runtime kinds. Exactly one payload
// field is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	I    int32
	J    int64
	F    float32
	D    float64
	R    Ref
}

// IntValue returns an int-kinded value.
func IntValue(i int32) Value { return Value{Kind: KindInt, I: i} }

// LongValue returns a long-kinded value.
func LongValue(j int64) Value { return Value{Kind: KindLong, J: j} }

// FloatValue returns a float-kinded value.
func FloatValue(f float32) Value { return Value{Kind: KindFloat, F: f} }

// DoubleValue returns a double-kinded value.
func DoubleValue(d float64) Value { return Value{Kind: KindDouble, D: d} }

// RefValue returns a reference-kinded value.
func RefValue(r Ref) Value { return Value{Kind: KindRef, R: r} }

// NullValue returns the null reference value.
func NullValue() Value { return Value{Kind: KindRef, R: NullRef} }

// ZeroValue returns the zero value for a kind, used to initialize locals
// and object fields.
func ZeroValue(k Kind) Value {
	return Value{Kind: k}
}

// IsRef reports whether the value is of reference kind.
func (v Value) IsRef() bool { return v.Kind == KindRef }

// IsNull reports whether the value is the null reference.
func (v Value) IsNull() bool { return v.Kind == KindRef && v.R == NullRef }

// String formats the value for display and logs.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindLong:
		return fmt.Sprintf("%d", v.J)
	case KindFloat:
		return fmt.Sprintf("%g", v.F)
	case KindDouble:
		return fmt.Sprintf("%g", v.D)
	case KindRef:
		if v.R == NullRef {
			return "null"
		}
		return fmt.Sprintf("ref@%d", v.R)
	}
	return "?"
}
