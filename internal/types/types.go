// Package types is the closed type algebra of the MIR. Every lowered type
// is interned once, so equal types share one TypeID.
package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates the members of the algebra.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindPrimitive
	KindString
	KindBytes
	KindOptional
	KindList
	KindMap
	KindRecord
	KindEnum
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindPrimitive:
		return "primitive"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindOptional:
		return "optional"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindRecord:
		return "record"
	case KindEnum:
		return "enum"
	case KindOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// IsNominal reports whether types of this kind carry an info slot.
func (k Kind) IsNominal() bool {
	return k == KindRecord || k == KindEnum || k == KindOpaque
}

// Prim is a primitive kind.
type Prim uint8

const (
	PrimUnit Prim = iota
	PrimBool
	PrimI8
	PrimI16
	PrimI32
	PrimI64
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimIsize
	PrimUsize
	PrimF32
	PrimF64
	PrimChar
)

var primNames = [...]string{
	PrimUnit:  "()",
	PrimBool:  "bool",
	PrimI8:    "i8",
	PrimI16:   "i16",
	PrimI32:   "i32",
	PrimI64:   "i64",
	PrimU8:    "u8",
	PrimU16:   "u16",
	PrimU32:   "u32",
	PrimU64:   "u64",
	PrimIsize: "isize",
	PrimUsize: "usize",
	PrimF32:   "f32",
	PrimF64:   "f64",
	PrimChar:  "char",
}

func (p Prim) String() string {
	if int(p) < len(primNames) {
		return primNames[p]
	}
	return fmt.Sprintf("Prim(%d)", p)
}

// ParsePrim maps a native primitive name to its kind.
func ParsePrim(name string) (Prim, bool) {
	for i, n := range primNames {
		if n == name {
			return Prim(i), true
		}
	}
	return 0, false
}

// Size is the width in bytes of the primitive on the wire. Pointer-sized
// integers are fixed at 64 bits.
func (p Prim) Size() int {
	switch p {
	case PrimUnit:
		return 0
	case PrimBool, PrimI8, PrimU8:
		return 1
	case PrimI16, PrimU16:
		return 2
	case PrimI32, PrimU32, PrimF32, PrimChar:
		return 4
	default:
		return 8
	}
}

// Shape is the payload form of an enum variant.
type Shape uint8

const (
	ShapeUnit Shape = iota
	ShapeTuple
	ShapeStruct
)

func (s Shape) String() string {
	switch s {
	case ShapeTuple:
		return "tuple"
	case ShapeStruct:
		return "struct"
	}
	return "unit"
}

// Type is a compact descriptor. Structural kinds are identified by their
// fields; nominal kinds by the info slot in Payload.
type Type struct {
	Kind    Kind
	Prim    Prim   // KindPrimitive
	Elem    TypeID // KindOptional, KindList; key type for KindMap
	Value   TypeID // KindMap
	Payload uint32 // nominal info slot
}

// MakePrimitive describes a primitive.
func MakePrimitive(p Prim) Type { return Type{Kind: KindPrimitive, Prim: p} }

// MakeOptional describes Option<T>.
func MakeOptional(elem TypeID) Type { return Type{Kind: KindOptional, Elem: elem} }

// MakeList describes a sequence of elem.
func MakeList(elem TypeID) Type { return Type{Kind: KindList, Elem: elem} }

// MakeMap describes a key/value map.
func MakeMap(key, value TypeID) Type { return Type{Kind: KindMap, Elem: key, Value: value} }
