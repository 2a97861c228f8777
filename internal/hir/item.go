package hir

import (
	"strings"

	"bridgegen/internal/raw"
)

// Vis is an effective or declared visibility. The order matters: the
// effective visibility of an item is the minimum along its module chain.
type Vis uint8

const (
	VisPrivate Vis = iota
	VisCrate
	VisPublic
)

func (v Vis) String() string {
	switch v {
	case VisPublic:
		return "pub"
	case VisCrate:
		return "pub(crate)"
	default:
		return "priv"
	}
}

// ParseVis maps a written visibility to Vis. Restricted forms such as
// pub(super) and pub(in path) count as crate-visible.
func ParseVis(v raw.Vis) Vis {
	s := strings.ReplaceAll(string(v), " ", "")
	switch {
	case s == "pub":
		return VisPublic
	case s == "" || s == "pub(self)":
		return VisPrivate
	case strings.HasPrefix(s, "pub("):
		return VisCrate
	}
	return VisPrivate
}

func minVis(a, b Vis) Vis {
	if a < b {
		return a
	}
	return b
}

// ItemKind tags the variant carried by an Item.
type ItemKind uint8

const (
	KindFunction ItemKind = iota + 1
	KindStructOrEnum
	KindTypeAlias
)

func (k ItemKind) String() string {
	switch k {
	case KindFunction:
		return "fn"
	case KindStructOrEnum:
		return "data"
	case KindTypeAlias:
		return "alias"
	}
	return "unknown"
}

// ItemPath is the canonical location of an item. Module is dotted, Owner is
// set for methods.
type ItemPath struct {
	Crate  string
	Module string
	Owner  string
	Name   string
}

func (p ItemPath) String() string {
	parts := []string{p.Crate}
	if p.Module != "" {
		parts = append(parts, strings.Split(p.Module, ".")...)
	}
	if p.Owner != "" {
		parts = append(parts, p.Owner)
	}
	parts = append(parts, p.Name)
	return strings.Join(parts, "::")
}

// Scope is the module an item's type expressions are resolved in.
func (p ItemPath) Scope() ModuleRef {
	return ModuleRef{Crate: p.Crate, Module: p.Module}
}

// IsZero reports whether the path is unset.
func (p ItemPath) IsZero() bool { return p == ItemPath{} }

// ModuleRef names a module inside a crate.
type ModuleRef struct {
	Crate  string
	Module string
}

func (m ModuleRef) String() string {
	if m.Module == "" {
		return m.Crate
	}
	return m.Crate + "::" + strings.ReplaceAll(m.Module, ".", "::")
}

// Item is one classified declaration.
type Item struct {
	Kind        ItemKind
	Name        string
	Path        ItemPath
	DeclaredVis Vis
	Vis         Vis // effective
	// Bridged marks functions exposed across the boundary. It is settled
	// once re-exports have widened Vis.
	Bridged bool
	// selected is set for functions of a primary crate that a bridge module
	// or #[bridge] picks; they are bridged when public.
	selected bool
	Attrs   []raw.Attr
	Options raw.BridgeOptions
	// Mirror is the canonical path of the bridge-facing counterpart, when
	// the item carries #[bridge(mirror(...))].
	Mirror     *ItemPath
	MirrorText string
	Line       int

	Func  *Function
	Data  *StructOrEnum
	Alias *TypeAlias
}

// ExecMode is how a bridged function is scheduled on the managed side.
type ExecMode uint8

const (
	ExecNormal ExecMode = iota
	ExecSync
	ExecAsync
)

func (m ExecMode) String() string {
	switch m {
	case ExecSync:
		return "sync"
	case ExecAsync:
		return "async"
	}
	return "normal"
}

// Param is a named function parameter.
type Param struct {
	Name string
	Type *raw.TypeExpr
}

// Function is a free function or an inherent method.
type Function struct {
	Params []Param
	// Ret is the success type; nil means unit.
	Ret *raw.TypeExpr
	// Err is the error type of a Result return. Fallible is set even when
	// the error type is implicit (anyhow::Result<T>).
	Err      *raw.TypeExpr
	Fallible bool
	Mode     ExecMode
	Generics []string
	// Owner is set for methods; Receiver is empty for associated functions.
	Owner    *ItemPath
	Receiver raw.Receiver
}

// IsMethod reports whether the function lives in an impl block.
func (f *Function) IsMethod() bool { return f.Owner != nil }

// VariantShape is the payload form of an enum variant or a struct body.
type VariantShape uint8

const (
	ShapeUnit VariantShape = iota
	ShapeTuple
	ShapeStruct
)

func (s VariantShape) String() string {
	switch s {
	case ShapeTuple:
		return "tuple"
	case ShapeStruct:
		return "struct"
	}
	return "unit"
}

func shapeOf(s raw.Shape, fields []raw.Field) VariantShape {
	switch s {
	case raw.ShapeTuple:
		return ShapeTuple
	case raw.ShapeNamed:
		return ShapeStruct
	case raw.ShapeUnit:
		return ShapeUnit
	}
	// shape omitted by the dumper: infer from fields
	if len(fields) == 0 {
		return ShapeUnit
	}
	if fields[0].Name == "" {
		return ShapeTuple
	}
	return ShapeStruct
}

// Field is a struct or variant field. Positional fields have Name "0", "1", ...
type Field struct {
	Name       string
	Positional bool
	Vis        Vis
	Type       *raw.TypeExpr
}

// Variant is one enum variant.
type Variant struct {
	Name   string
	Shape  VariantShape
	Fields []Field
}

// StructOrEnum is a struct (Variants nil) or an enum.
type StructOrEnum struct {
	IsEnum   bool
	Shape    VariantShape // struct body shape
	Fields   []Field
	Variants []Variant
	Generics []string
}

// TypeAlias is `type Name<G> = Target;`.
type TypeAlias struct {
	Generics []string
	Target   *raw.TypeExpr
}
