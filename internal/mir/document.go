// Package mir lowers the resolved HIR into the boundary-level intermediate
// representation: bridged functions, the records, enums and opaque handles
// they reach, all expressed in the closed type algebra of package types.
//
// Lowering is sequential and runs in identifier order, so TypeID numbering
// and every list in a Document are stable for identical input.
package mir

import (
	"bridgegen/internal/diag"
	"bridgegen/internal/hir"
	"bridgegen/internal/types"
)

// Ownership says who frees a value that crosses the boundary.
type Ownership uint8

const (
	// ByValue values are copied; nothing to free.
	ByValue Ownership = iota
	// Borrowed values are lent for the duration of the call.
	Borrowed
	// Owned values are heap data the receiver must dispose.
	Owned
	// Handle values are opaque native objects released through their handle.
	Handle
)

func (o Ownership) String() string {
	switch o {
	case Borrowed:
		return "borrowed"
	case Owned:
		return "owned"
	case Handle:
		return "handle"
	}
	return "value"
}

func strongest(a, b Ownership) Ownership {
	if a > b {
		return a
	}
	return b
}

// Value is a typed position with its ownership tag. Native is the fully
// qualified native type text used by the glue.
type Value struct {
	Type   types.TypeID
	Own    Ownership
	Native string
}

// Param is a function parameter.
type Param struct {
	Name string
	Value
}

// Receiver describes how a method takes self.
type Receiver uint8

const (
	RecvNone Receiver = iota
	RecvValue
	RecvRef
)

// Func is one bridged function or method.
type Func struct {
	Ident Ident
	Crate string
	Name  string
	// Path is the native item path the glue calls, "app::api::Point::new".
	Path     string
	Source   hir.ItemPath
	Owner    types.TypeID
	Receiver Receiver
	Params   []Param
	Ret      Value
	// Err is set for fallible functions.
	Err  *Value
	Mode hir.ExecMode
}

// Fallible reports whether the function returns a Result.
func (f *Func) Fallible() bool { return f.Err != nil }

// Field is a lowered record or variant field.
type Field struct {
	Name       string
	Positional bool
	Value
}

// Record is a lowered struct or generic struct instance.
type Record struct {
	Ident  Ident
	Type   types.TypeID
	Source hir.ItemPath
	// Native is the qualified native type, with type arguments.
	Native string
	Fields []Field
	Tuple  bool
	Own    Ownership
}

// Variant is a lowered enum variant.
type Variant struct {
	Name   string
	Shape  types.Shape
	Fields []Field
}

// Enum is a lowered enum or generic enum instance.
type Enum struct {
	Ident    Ident
	Type     types.TypeID
	Source   hir.ItemPath
	Native   string
	Variants []Variant
	Own      Ownership
}

// UnitOnly reports whether the enum is a plain C-like enum.
func (e *Enum) UnitOnly() bool {
	for _, v := range e.Variants {
		if v.Shape != types.ShapeUnit {
			return false
		}
	}
	return true
}

// Opaque is a native object only reachable through a handle.
type Opaque struct {
	Ident  Ident
	Type   types.TypeID
	Native string
}

// Document is the lowered boundary of one generation run. Every list is
// sorted by identifier key.
type Document struct {
	// Crates lists the primary crates the document was lowered from.
	Crates  []string
	Types   *types.Interner
	Funcs   []*Func
	Records []*Record
	Enums   []*Enum
	Opaques []*Opaque
	// Diagnostics holds non-fatal lowering findings.
	Diagnostics []diag.Diagnostic

	records map[types.TypeID]*Record
	enums   map[types.TypeID]*Enum
	opaques map[types.TypeID]*Opaque
}

// Record returns the record lowered to id, or nil.
func (d *Document) Record(id types.TypeID) *Record { return d.records[id] }

// Enum returns the enum lowered to id, or nil.
func (d *Document) Enum(id types.TypeID) *Enum { return d.enums[id] }

// Opaque returns the opaque type lowered to id, or nil.
func (d *Document) Opaque(id types.TypeID) *Opaque { return d.opaques[id] }

// Disposable returns the records and enums that need a drop disposer, in
// identifier order.
func (d *Document) Disposable() []Ident {
	var out []Ident
	for _, r := range d.Records {
		if r.Own == Owned {
			out = append(out, r.Ident)
		}
	}
	for _, e := range d.Enums {
		if e.Own == Owned {
			out = append(out, e.Ident)
		}
	}
	sortIdents(out)
	return out
}
