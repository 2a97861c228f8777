package raw

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TypeKind enumerates the syntactic forms of a native type expression.
type TypeKind uint8

const (
	TypeInvalid TypeKind = iota
	TypePath
	TypeRef
	TypePtr
	TypeSlice
	TypeArray
	TypeTuple
	TypeTraitObject
	TypeImplTrait
	TypeFnPtr
	TypeNever
	TypeInfer
	TypeConst
)

func (k TypeKind) String() string {
	switch k {
	case TypePath:
		return "path"
	case TypeRef:
		return "reference"
	case TypePtr:
		return "raw pointer"
	case TypeSlice:
		return "slice"
	case TypeArray:
		return "array"
	case TypeTuple:
		return "tuple"
	case TypeTraitObject:
		return "trait object"
	case TypeImplTrait:
		return "impl trait"
	case TypeFnPtr:
		return "fn pointer"
	case TypeNever:
		return "never"
	case TypeInfer:
		return "inferred"
	case TypeConst:
		return "const argument"
	default:
		return "invalid"
	}
}

// TypeExpr is an unresolved native type expression.
type TypeExpr struct {
	Kind    TypeKind
	Path    Path        // TypePath
	Elem    *TypeExpr   // TypeRef, TypePtr, TypeSlice, TypeArray
	Mutable bool        // TypeRef, TypePtr
	Len     string      // TypeArray length, TypeConst value
	Elems   []*TypeExpr // TypeTuple, TypeFnPtr params
	Ret     *TypeExpr   // TypeFnPtr
	Bounds  []Path      // TypeTraitObject, TypeImplTrait
}

// Path is a `::`-separated path with optional generic arguments per segment.
type Path struct {
	Global   bool
	Segments []Segment
}

// Segment is one component of a Path.
type Segment struct {
	Name     string
	Args     []*TypeExpr
	Bindings []Binding
	// Parenthesized marks Fn-sugar segments such as Fn(i32) -> bool.
	Parenthesized bool
	Ret           *TypeExpr
}

// Binding is an associated type binding such as Item = u8.
type Binding struct {
	Name string
	Type *TypeExpr
}

// Names returns the plain segment names.
func (p Path) Names() []string {
	out := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		out[i] = s.Name
	}
	return out
}

// Last returns the final segment, or the zero segment for an empty path.
func (p Path) Last() Segment {
	if len(p.Segments) == 0 {
		return Segment{}
	}
	return p.Segments[len(p.Segments)-1]
}

func (p Path) String() string {
	var sb strings.Builder
	p.write(&sb)
	return sb.String()
}

func (p Path) write(sb *strings.Builder) {
	if p.Global {
		sb.WriteString("::")
	}
	for i, seg := range p.Segments {
		if i > 0 {
			sb.WriteString("::")
		}
		sb.WriteString(seg.Name)
		if seg.Parenthesized {
			sb.WriteByte('(')
			writeList(sb, seg.Args)
			sb.WriteByte(')')
			if seg.Ret != nil {
				sb.WriteString(" -> ")
				seg.Ret.write(sb)
			}
			continue
		}
		if len(seg.Args) == 0 && len(seg.Bindings) == 0 {
			continue
		}
		sb.WriteByte('<')
		writeList(sb, seg.Args)
		for j, b := range seg.Bindings {
			if j > 0 || len(seg.Args) > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.Name)
			sb.WriteString(" = ")
			b.Type.write(sb)
		}
		sb.WriteByte('>')
	}
}

// String renders the canonical text of the expression. Two expressions that
// render identically are syntactically identical.
func (t *TypeExpr) String() string {
	if t == nil {
		return "()"
	}
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t *TypeExpr) write(sb *strings.Builder) {
	switch t.Kind {
	case TypePath:
		t.Path.write(sb)
	case TypeRef:
		sb.WriteByte('&')
		if t.Mutable {
			sb.WriteString("mut ")
		}
		t.Elem.write(sb)
	case TypePtr:
		if t.Mutable {
			sb.WriteString("*mut ")
		} else {
			sb.WriteString("*const ")
		}
		t.Elem.write(sb)
	case TypeSlice:
		sb.WriteByte('[')
		t.Elem.write(sb)
		sb.WriteByte(']')
	case TypeArray:
		sb.WriteByte('[')
		t.Elem.write(sb)
		sb.WriteString("; ")
		sb.WriteString(t.Len)
		sb.WriteByte(']')
	case TypeTuple:
		sb.WriteByte('(')
		writeList(sb, t.Elems)
		if len(t.Elems) == 1 {
			sb.WriteByte(',')
		}
		sb.WriteByte(')')
	case TypeTraitObject, TypeImplTrait:
		if t.Kind == TypeTraitObject {
			sb.WriteString("dyn ")
		} else {
			sb.WriteString("impl ")
		}
		for i, b := range t.Bounds {
			if i > 0 {
				sb.WriteString(" + ")
			}
			b.write(sb)
		}
	case TypeFnPtr:
		sb.WriteString("fn(")
		writeList(sb, t.Elems)
		sb.WriteByte(')')
		if t.Ret != nil {
			sb.WriteString(" -> ")
			t.Ret.write(sb)
		}
	case TypeNever:
		sb.WriteByte('!')
	case TypeInfer:
		sb.WriteByte('_')
	case TypeConst:
		sb.WriteString(t.Len)
	default:
		sb.WriteString("<invalid>")
	}
}

func writeList(sb *strings.Builder, elems []*TypeExpr) {
	for i, e := range elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		e.write(sb)
	}
}

// IsUnit reports whether the expression is the empty tuple (or absent).
func (t *TypeExpr) IsUnit() bool {
	return t == nil || (t.Kind == TypeTuple && len(t.Elems) == 0)
}

// MarshalJSON encodes the expression as its canonical text.
func (t *TypeExpr) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the textual form produced by the syntax dumper.
func (t *TypeExpr) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("type expression must be a string: %w", err)
	}
	parsed, err := ParseType(text)
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}

// PathType builds a path expression from plain segment names.
func PathType(names ...string) *TypeExpr {
	segs := make([]Segment, len(names))
	for i, n := range names {
		segs[i] = Segment{Name: n}
	}
	return &TypeExpr{Kind: TypePath, Path: Path{Segments: segs}}
}
