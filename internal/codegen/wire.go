package codegen

import (
	"fmt"
	"slices"
	"strings"

	"fortio.org/safecast"

	"bridgegen/internal/mir"
	"bridgegen/internal/types"
)

// maxByValue is the largest plain record passed by value across the ABI.
const maxByValue = 16

type wireKind uint8

const (
	wireVoid wireKind = iota
	// wireScalar is a C scalar: primitives and unit-only enums.
	wireScalar
	// wireStruct is a plain record passed by value.
	wireStruct
	// wirePointer points at a generated struct or a boxed value; NULL is
	// only meaningful for optionals.
	wirePointer
	// wireHandle is an opaque object handle.
	wireHandle
)

// wireType is the ABI form of one MIR type, spelled for each side.
type wireType struct {
	id   types.TypeID
	kind wireKind
	// slug names the type inside generated symbols: list_prim_i_32.
	slug string
	rust string
	c    string
	// dart is the type the low-level Dart bindings use for the value.
	dart string
	// dartNative is the ffi NativeType used as a pointer argument.
	dartNative string
	// structName is the generated struct for wireStruct values and for
	// pointers to generated structs.
	structName string
	// boxed is set for optionals that box their element.
	boxed *wireType
	// canon is the Rust type the wire value decodes into.
	canon string
	// crate owns the symbols generated for the type.
	crate string
	// flat is set for ByValue records and payload enums. Their generated
	// struct owns no heap data: members embed it by value and a boxed copy
	// is one C allocation the managed side frees itself.
	flat bool
}

// disposable reports whether a result of this type needs a generated drop
// entry. Flat values are released with the C allocator instead.
func (w *wireType) disposable() bool {
	return (w.kind == wirePointer || w.kind == wireStruct) && !w.flat
}

// cField is one member of a generated C struct or union.
type cField struct {
	name string
	c    string
	rust string
	// dart is the member's low-level Dart type; nested structs are views.
	dart string
	// annot is the ffi annotation ffigen puts on scalar members.
	annot string
}

type cStruct struct {
	name   string
	union  bool
	fields []cField
}

type wireTable struct {
	doc  *mir.Document
	in   *types.Interner
	ns   string
	host string

	wires   map[types.TypeID]*wireType
	order   []types.TypeID
	structs []*cStruct
	defined map[string]bool
}

func newWireTable(doc *mir.Document, ns, host string) *wireTable {
	return &wireTable{
		doc:     doc,
		in:      doc.Types,
		ns:      ns,
		host:    host,
		wires:   make(map[types.TypeID]*wireType),
		defined: make(map[string]bool),
	}
}

var primC = map[types.Prim]string{
	types.PrimBool: "bool", types.PrimI8: "int8_t", types.PrimI16: "int16_t", types.PrimI32: "int32_t",
	types.PrimI64: "int64_t", types.PrimU8: "uint8_t", types.PrimU16: "uint16_t", types.PrimU32: "uint32_t",
	types.PrimU64: "uint64_t", types.PrimIsize: "int64_t", types.PrimUsize: "uint64_t",
	types.PrimF32: "float", types.PrimF64: "double", types.PrimChar: "uint32_t",
}

var primDartNative = map[types.Prim]string{
	types.PrimBool: "ffi.Bool", types.PrimI8: "ffi.Int8", types.PrimI16: "ffi.Int16", types.PrimI32: "ffi.Int32",
	types.PrimI64: "ffi.Int64", types.PrimU8: "ffi.Uint8", types.PrimU16: "ffi.Uint16", types.PrimU32: "ffi.Uint32",
	types.PrimU64: "ffi.Uint64", types.PrimIsize: "ffi.Int64", types.PrimUsize: "ffi.Uint64",
	types.PrimF32: "ffi.Float", types.PrimF64: "ffi.Double", types.PrimChar: "ffi.Uint32",
}

func primRust(p types.Prim) string {
	switch p {
	case types.PrimIsize:
		return "i64"
	case types.PrimUsize:
		return "u64"
	case types.PrimChar:
		return "u32"
	}
	return p.String()
}

func primDart(p types.Prim) string {
	switch p {
	case types.PrimBool:
		return "bool"
	case types.PrimF32, types.PrimF64:
		return "double"
	}
	return "int"
}

func pointerTo(c string) string {
	if strings.HasSuffix(c, "*") {
		return c + "*"
	}
	return c + " *"
}

func (t *wireTable) crateOf(key string) string {
	crate, _, _ := strings.Cut(key, "::")
	return crate
}

func (t *wireTable) native(s string) string { return hostPath(s, t.host) }

// of returns the wire form of id, registering it and every type it reaches.
func (t *wireTable) of(id types.TypeID) *wireType {
	if w, ok := t.wires[id]; ok {
		return w
	}
	tt := t.in.MustLookup(id)
	w := &wireType{id: id, crate: t.ns}
	// registered before the members so recursive types terminate
	t.wires[id] = w
	switch tt.Kind {
	case types.KindPrimitive:
		if tt.Prim == types.PrimUnit {
			w.kind, w.slug, w.rust, w.c, w.dart, w.canon = wireVoid, "unit", "()", "void", "void", "()"
			break
		}
		w.kind = wireScalar
		w.slug = primSlug(tt.Prim.String())
		w.rust, w.c, w.dart = primRust(tt.Prim), primC[tt.Prim], primDart(tt.Prim)
		w.dartNative = primDartNative[tt.Prim]
		w.canon = tt.Prim.String()
	case types.KindString, types.KindBytes:
		w.kind = wirePointer
		w.structName = "wire_cst_list_prim_u_8"
		w.slug, w.canon = "String", "String"
		if tt.Kind == types.KindBytes {
			w.slug, w.canon = "list_prim_u_8", "Vec<u8>"
		}
	case types.KindList:
		elem := t.of(tt.Elem)
		w.kind = wirePointer
		w.slug = "list_" + elem.slug
		w.structName = "wire_cst_" + w.slug
		w.canon = "Vec<" + elem.canon + ">"
	case types.KindMap:
		k, v := t.of(tt.Elem), t.of(tt.Value)
		w.kind = wirePointer
		w.slug = "map_" + k.slug + "_" + v.slug
		w.structName = "wire_cst_" + w.slug
		w.canon = "std::collections::HashMap<" + k.canon + ", " + v.canon + ">"
	case types.KindOptional:
		elem := t.of(tt.Elem)
		w.slug = "opt_" + elem.slug
		w.canon = "Option<" + elem.canon + ">"
		nested := t.in.MustLookup(tt.Elem).Kind == types.KindOptional
		switch {
		case (elem.kind == wirePointer || elem.kind == wireHandle) && !nested:
			w.kind, w.rust, w.c, w.dart, w.dartNative, w.structName = elem.kind, elem.rust, elem.c, elem.dart, elem.dartNative, elem.structName
		default:
			w.kind = wirePointer
			w.boxed = elem
			w.rust = "*mut " + elem.rust
			w.c = pointerTo(elem.c)
			w.dart = "ffi.Pointer<" + elem.dartNative + ">"
			w.dartNative = w.dart
		}
	case types.KindRecord:
		rec := t.doc.Record(id)
		w.slug, w.canon, w.crate = rec.Ident.Symbol, t.native(rec.Native), t.crateOf(rec.Ident.Key)
		w.structName = "wire_cst_" + w.slug
		w.kind = wirePointer
		w.flat = rec.Own == mir.ByValue
		if w.flat && t.size(id) <= maxByValue {
			w.kind = wireStruct
		}
	case types.KindEnum:
		en := t.doc.Enum(id)
		w.slug, w.canon, w.crate = en.Ident.Symbol, t.native(en.Native), t.crateOf(en.Ident.Key)
		if en.UnitOnly() {
			w.kind, w.rust, w.c, w.dart, w.dartNative = wireScalar, "i32", "int32_t", "int", "ffi.Int32"
			break
		}
		w.kind = wirePointer
		w.flat = en.Own == mir.ByValue
		w.structName = "wire_cst_" + w.slug
	case types.KindOpaque:
		op := t.doc.Opaque(id)
		w.kind = wireHandle
		w.slug, w.crate = op.Ident.Symbol, t.crateOf(op.Ident.Key)
		w.rust, w.c, w.dart, w.dartNative = "*const std::ffi::c_void", "const void *", "ffi.Pointer<ffi.Void>", "ffi.Pointer<ffi.Void>"
		w.canon = "bridge_runtime::RustOpaque<" + t.native(op.Native) + ">"
	default:
		panic(fmt.Sprintf("codegen: no wire form for %s", types.Label(t.in, id)))
	}
	switch {
	case w.kind == wireStruct:
		w.rust, w.c, w.dart, w.dartNative = w.structName, w.structName, w.structName, w.structName
	case w.kind == wirePointer && w.boxed == nil && w.rust == "":
		w.rust = "*mut " + w.structName
		w.c = w.structName + " *"
		w.dart = "ffi.Pointer<" + w.structName + ">"
		w.dartNative = w.dart
	}
	t.order = append(t.order, id)
	return w
}

// defineAll registers the generated structs of every known type. Defining
// a struct may reach new types, which are appended and defined in turn.
func (t *wireTable) defineAll() {
	for i := 0; i < len(t.order); i++ {
		t.define(t.wires[t.order[i]])
	}
}

// define registers the generated structs behind w. Structs a definition
// embeds by value are defined first.
func (t *wireTable) define(w *wireType) {
	if w.structName == "" || t.defined[w.structName] {
		return
	}
	tt := t.in.MustLookup(w.id)
	switch tt.Kind {
	case types.KindString, types.KindBytes:
		t.defined[w.structName] = true
		t.structs = append(t.structs, &cStruct{name: w.structName, fields: []cField{
			{name: "ptr", c: "uint8_t *", rust: "*mut u8", dart: "ffi.Pointer<ffi.Uint8>"},
			scalarField("len", types.PrimI32),
		}})
	case types.KindList:
		elem := t.of(tt.Elem)
		t.defined[w.structName] = true
		t.structs = append(t.structs, &cStruct{name: w.structName, fields: []cField{
			arrayField("ptr", elem),
			scalarField("len", types.PrimI32),
		}})
	case types.KindMap:
		k, v := t.of(tt.Elem), t.of(tt.Value)
		t.defined[w.structName] = true
		t.structs = append(t.structs, &cStruct{name: w.structName, fields: []cField{
			arrayField("keys", k),
			arrayField("values", v),
			scalarField("len", types.PrimI32),
		}})
	case types.KindRecord:
		rec := t.doc.Record(w.id)
		t.defined[w.structName] = true
		st := &cStruct{name: w.structName}
		for _, f := range rec.Fields {
			st.fields = append(st.fields, t.member(wireField(f.Name, f.Positional), t.embed(f.Type)))
		}
		t.structs = append(t.structs, st)
	case types.KindEnum:
		en := t.doc.Enum(w.id)
		t.defined[w.structName] = true
		union := &cStruct{name: w.structName + "_kind", union: true}
		for _, v := range en.Variants {
			if len(v.Fields) == 0 {
				continue
			}
			vs := &cStruct{name: w.structName + "_" + v.Name}
			for _, f := range v.Fields {
				vs.fields = append(vs.fields, t.member(wireField(f.Name, f.Positional), t.embed(f.Type)))
			}
			t.structs = append(t.structs, vs)
			union.fields = append(union.fields, cField{name: v.Name, c: vs.name, rust: vs.name, dart: vs.name})
		}
		t.structs = append(t.structs, union, &cStruct{name: w.structName, fields: []cField{
			scalarField("tag", types.PrimI32),
			{name: "kind", c: union.name, rust: union.name, dart: union.name},
		}})
	}
}

// embed returns the wire form of a member, defining by-value structs first.
func (t *wireTable) embed(id types.TypeID) *wireType {
	w := t.of(id)
	if w.flat {
		t.define(w)
	}
	return w
}

func scalarField(name string, p types.Prim) cField {
	return cField{name: name, c: primC[p], rust: primRust(p), dart: primDart(p), annot: "@" + primDartNative[p] + "()"}
}

// arrayField is a pointer to the first of len elements.
func arrayField(name string, elem *wireType) cField {
	return cField{name: name, c: pointerTo(elem.c), rust: "*mut " + elem.rust, dart: "ffi.Pointer<" + elem.dartNative + ">"}
}

// member is the struct field holding w. Flat values are embedded.
func (t *wireTable) member(name string, w *wireType) cField {
	if w.flat {
		return cField{name: name, c: w.structName, rust: w.structName, dart: w.structName}
	}
	f := cField{name: name, c: w.c, rust: w.rust, dart: w.dart}
	if w.kind == wireScalar {
		f.annot = "@" + w.dartNative + "()"
	}
	return f
}

// size is the C size of a plain value; non-plain values count as too big.
func (t *wireTable) size(id types.TypeID) int {
	size, _ := t.layout(id, 0)
	return size
}

func (t *wireTable) layout(id types.TypeID, depth int) (size, align int) {
	tt := t.in.MustLookup(id)
	switch tt.Kind {
	case types.KindPrimitive:
		s := tt.Prim.Size()
		return s, max(s, 1)
	case types.KindEnum:
		if en := t.doc.Enum(id); en != nil && en.UnitOnly() {
			return 4, 4
		}
	case types.KindRecord:
		rec := t.doc.Record(id)
		if rec == nil || depth > 8 {
			break
		}
		offset, maxAlign := 0, 1
		for _, f := range rec.Fields {
			fs, fa := t.layout(f.Type, depth+1)
			offset = (offset+fa-1)/fa*fa + fs
			maxAlign = max(maxAlign, fa)
		}
		return (offset + maxAlign - 1) / maxAlign * maxAlign, maxAlign
	}
	return maxByValue + 1, 8
}

// reachable returns the registered types ordered by slug.
func (t *wireTable) reachable() []*wireType {
	out := make([]*wireType, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.wires[id])
	}
	slices.SortFunc(out, func(a, b *wireType) int { return strings.Compare(a.slug, b.slug) })
	return out
}

// collect registers every type reachable from the document's functions.
func (t *wireTable) collect() error {
	for _, f := range t.doc.Funcs {
		for _, p := range f.Params {
			t.of(p.Type)
		}
		t.of(f.Ret.Type)
		if f.Err != nil {
			t.of(f.Err.Type)
		}
	}
	for _, r := range t.doc.Records {
		t.of(r.Type)
	}
	for _, e := range t.doc.Enums {
		t.of(e.Type)
	}
	for _, o := range t.doc.Opaques {
		t.of(o.Type)
	}
	t.defineAll()
	seen := make(map[string]types.TypeID, len(t.wires))
	for _, id := range t.order {
		w := t.wires[id]
		if prev, dup := seen[w.slug]; dup && prev != id {
			return fmt.Errorf("%s and %s share the wire name %q", types.Label(t.in, prev), types.Label(t.in, id), w.slug)
		}
		seen[w.slug] = id
	}
	return nil
}

// variantTag is the wire tag of the i-th variant.
func variantTag(i int) int32 {
	tag, err := safecast.Conv[int32](i)
	if err != nil {
		panic(fmt.Sprintf("codegen: variant index %d exceeds the wire tag", i))
	}
	return tag
}
