package types

import (
	"fmt"
	"slices"
	"strings"

	"fortio.org/safecast"
)

// Field is one record or variant field. Positional fields are named "0", "1", ...
type Field struct {
	Name       string
	Type       TypeID
	Positional bool
}

// RecordInfo stores metadata for a record type.
type RecordInfo struct {
	// Key is the canonical item path; Name the bridge-facing name.
	Key    string
	Name   string
	Args   []TypeID
	Fields []Field
	// Tuple marks records declared with positional fields.
	Tuple bool
}

// Variant is one enum variant.
type Variant struct {
	Name   string
	Shape  Shape
	Fields []Field
}

// EnumInfo stores metadata for an enum type.
type EnumInfo struct {
	Key      string
	Name     string
	Args     []TypeID
	Variants []Variant
}

// UnitOnly reports whether no variant carries a payload.
func (e *EnumInfo) UnitOnly() bool {
	for _, v := range e.Variants {
		if v.Shape != ShapeUnit {
			return false
		}
	}
	return true
}

// OpaqueInfo stores metadata for an opaque handle type.
type OpaqueInfo struct {
	Key  string
	Name string
	Args []TypeID
}

func nominalKey(kind Kind, key string, args []TypeID) string {
	var sb strings.Builder
	sb.WriteString(kind.String())
	sb.WriteByte(':')
	sb.WriteString(key)
	if len(args) > 0 {
		sb.WriteByte('<')
		for i, a := range args {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "%d", a)
		}
		sb.WriteByte('>')
	}
	return sb.String()
}

// RegisterRecord allocates a record slot, or returns the existing one for
// the same key and arguments. Fields are set afterwards so recursive
// records can refer to themselves.
func (in *Interner) RegisterRecord(key, name string, args []TypeID) (TypeID, bool) {
	nk := nominalKey(KindRecord, key, args)
	if id, ok := in.nominal[nk]; ok {
		return id, false
	}
	in.records = append(in.records, RecordInfo{Key: key, Name: name, Args: slices.Clone(args)})
	id := in.internRaw(Type{Kind: KindRecord, Payload: slotOf(len(in.records), "record")})
	in.nominal[nk] = id
	return id, true
}

// SetRecordFields stores the lowered fields of a record.
func (in *Interner) SetRecordFields(id TypeID, fields []Field, tuple bool) {
	if info := in.recordInfo(id); info != nil {
		info.Fields = slices.Clone(fields)
		info.Tuple = tuple
	}
}

// RecordInfo returns metadata for the provided record TypeID.
func (in *Interner) RecordInfo(id TypeID) (*RecordInfo, bool) {
	info := in.recordInfo(id)
	return info, info != nil
}

// RegisterEnum allocates an enum slot, or returns the existing one.
func (in *Interner) RegisterEnum(key, name string, args []TypeID) (TypeID, bool) {
	nk := nominalKey(KindEnum, key, args)
	if id, ok := in.nominal[nk]; ok {
		return id, false
	}
	in.enums = append(in.enums, EnumInfo{Key: key, Name: name, Args: slices.Clone(args)})
	id := in.internRaw(Type{Kind: KindEnum, Payload: slotOf(len(in.enums), "enum")})
	in.nominal[nk] = id
	return id, true
}

// SetEnumVariants stores the lowered variants of an enum.
func (in *Interner) SetEnumVariants(id TypeID, variants []Variant) {
	if info := in.enumInfo(id); info != nil {
		info.Variants = slices.Clone(variants)
	}
}

// EnumInfo returns metadata for the provided enum TypeID.
func (in *Interner) EnumInfo(id TypeID) (*EnumInfo, bool) {
	info := in.enumInfo(id)
	return info, info != nil
}

// RegisterOpaque allocates an opaque handle slot, or returns the existing one.
func (in *Interner) RegisterOpaque(key, name string, args []TypeID) (TypeID, bool) {
	nk := nominalKey(KindOpaque, key, args)
	if id, ok := in.nominal[nk]; ok {
		return id, false
	}
	in.opaques = append(in.opaques, OpaqueInfo{Key: key, Name: name, Args: slices.Clone(args)})
	id := in.internRaw(Type{Kind: KindOpaque, Payload: slotOf(len(in.opaques), "opaque")})
	in.nominal[nk] = id
	return id, true
}

// OpaqueInfo returns metadata for the provided opaque TypeID.
func (in *Interner) OpaqueInfo(id TypeID) (*OpaqueInfo, bool) {
	info := in.opaqueInfo(id)
	return info, info != nil
}

func slotOf(n int, what string) uint32 {
	slot, err := safecast.Conv[uint32](n - 1)
	if err != nil {
		panic(fmt.Errorf("%s info overflow: %w", what, err))
	}
	return slot
}

func (in *Interner) recordInfo(id TypeID) *RecordInfo {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindRecord || tt.Payload == 0 || int(tt.Payload) >= len(in.records) {
		return nil
	}
	return &in.records[tt.Payload]
}

func (in *Interner) enumInfo(id TypeID) *EnumInfo {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindEnum || tt.Payload == 0 || int(tt.Payload) >= len(in.enums) {
		return nil
	}
	return &in.enums[tt.Payload]
}

func (in *Interner) opaqueInfo(id TypeID) *OpaqueInfo {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindOpaque || tt.Payload == 0 || int(tt.Payload) >= len(in.opaques) {
		return nil
	}
	return &in.opaques[tt.Payload]
}
