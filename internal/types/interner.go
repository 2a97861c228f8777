package types

import (
	"fmt"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for the non-parametric types.
type Builtins struct {
	Invalid TypeID
	Unit    TypeID
	Bool    TypeID
	String  TypeID
	Bytes   TypeID
	prims   [PrimChar + 1]TypeID
}

// Prim returns the TypeID of a primitive.
func (b Builtins) Prim(p Prim) TypeID {
	if int(p) >= len(b.prims) {
		return NoTypeID
	}
	return b.prims[p]
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Nominal types are keyed by item key and type arguments.
type Interner struct {
	types    []Type
	index    map[typeKey]TypeID
	nominal  map[string]TypeID
	builtins Builtins
	records  []RecordInfo
	enums    []EnumInfo
	opaques  []OpaqueInfo
}

// NewInterner constructs an interner seeded with built-in primitives.
// TypeIDs are assigned in interning order, so a fixed lowering order yields
// fixed IDs.
func NewInterner() *Interner {
	in := &Interner{
		index:   make(map[typeKey]TypeID, 64),
		nominal: make(map[string]TypeID),
	}
	// reserve slot 0 as the invalid sentinel
	in.records = append(in.records, RecordInfo{})
	in.enums = append(in.enums, EnumInfo{})
	in.opaques = append(in.opaques, OpaqueInfo{})
	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	for p := PrimUnit; p <= PrimChar; p++ {
		in.builtins.prims[p] = in.Intern(MakePrimitive(p))
	}
	in.builtins.Unit = in.builtins.prims[PrimUnit]
	in.builtins.Bool = in.builtins.prims[PrimBool]
	in.builtins.String = in.Intern(Type{Kind: KindString})
	in.builtins.Bytes = in.Intern(Type{Kind: KindBytes})
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the structural descriptor has a stable TypeID. Nominal
// kinds must go through the Register functions.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid || t.Kind.IsNominal() {
		return NoTypeID
	}
	key := typeKey(t)
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internRaw(t)
}

// internRaw adds the descriptor to the storage without consulting the map.
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[typeKey(t)] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// Len returns the number of interned types including the sentinel.
func (in *Interner) Len() int { return len(in.types) }

type typeKey struct {
	Kind    Kind
	Prim    Prim
	Elem    TypeID
	Value   TypeID
	Payload uint32
}
