package codegen

import (
	"strings"

	"bridgegen/internal/hir"
	"bridgegen/internal/mir"
	"bridgegen/internal/types"
)

// nativeEmitter writes the Rust glue: wire structs, conversions between wire
// and native values, and the exported entry points.
type nativeEmitter struct {
	emitter
	a *abi
	t *wireTable
}

func emitNative(a *abi) []byte {
	n := &nativeEmitter{emitter: emitter{unit: "    "}, a: a, t: a.t}
	n.line("// Code generated by bridgegen. DO NOT EDIT.")
	n.linef("// Crates: %s", strings.Join(a.doc.Crates, ", "))
	n.line("")
	n.line("#![allow(non_camel_case_types, non_snake_case, unused_unsafe, clippy::all)]")
	n.line("")
	n.open("pub trait CstDecode<T> {")
	n.line("fn cst_decode(self) -> T;")
	n.close("}")
	n.line("")
	n.open("pub trait IntoWire<W> {")
	n.line("fn into_wire(self) -> W;")
	n.close("}")

	n.section("wire structs")
	for _, st := range a.structs() {
		n.cstruct(st)
	}
	n.section("conversions")
	for _, w := range a.t.reachable() {
		n.codec(w)
	}
	n.section("entry points")
	for _, e := range a.calls {
		n.call(e)
	}
	n.section("disposers and allocators")
	for _, e := range a.helpers {
		n.helper(e)
	}
	return n.bytes()
}

func (n *nativeEmitter) section(name string) {
	n.line("")
	n.linef("// Section: %s", name)
}

func (n *nativeEmitter) cstruct(st *cStruct) {
	kw := "struct"
	if st.union {
		kw = "union"
	}
	n.line("")
	n.line("#[repr(C)]")
	n.line("#[derive(Clone, Copy)]")
	n.openf("pub %s %s {", kw, st.name)
	for _, f := range st.fields {
		n.linef("pub %s: %s,", f.name, f.rust)
	}
	n.close("}")
}

func dec(w *wireType, expr string) string {
	return "CstDecode::<" + w.canon + ">::cst_decode(" + expr + ")"
}

func enc(w *wireType, expr string) string {
	return "IntoWire::<" + w.rust + ">::into_wire(" + expr + ")"
}

// embedded encodes a struct member; flat values are stored inline.
func embedded(w *wireType, expr string) string {
	if w.flat {
		return "IntoWire::<" + w.structName + ">::into_wire(" + expr + ")"
	}
	return enc(w, expr)
}

// boxImpls converts a boxed flat value through its by-value impls.
func (n *nativeEmitter) boxImpls(w *wireType) {
	n.decodeImpl(w, w.rust, dec(w, "unsafe { *bridge_runtime::box_from_leak_ptr(self) }"))
	n.encodeImpl(w, w.rust, "bridge_runtime::new_leak_box_ptr("+embedded(w, "self")+")")
}

func (n *nativeEmitter) decodeImpl(w *wireType, from string, body ...string) {
	n.line("")
	n.openf("impl CstDecode<%s> for %s {", w.canon, from)
	n.openf("fn cst_decode(self) -> %s {", w.canon)
	for _, l := range body {
		n.line(l)
	}
	n.close("}")
	n.close("}")
}

func (n *nativeEmitter) encodeImpl(w *wireType, to string, body ...string) {
	n.line("")
	n.openf("impl IntoWire<%s> for %s {", to, w.canon)
	n.openf("fn into_wire(self) -> %s {", to)
	for _, l := range body {
		n.line(l)
	}
	n.close("}")
	n.close("}")
}

const unboxList = "let vec = unsafe { let wrap = bridge_runtime::box_from_leak_ptr(self); bridge_runtime::vec_from_leak_ptr(wrap.ptr, wrap.len) };"

func (n *nativeEmitter) codec(w *wireType) {
	tt := n.t.in.MustLookup(w.id)
	switch tt.Kind {
	case types.KindPrimitive:
		if w.kind == wireVoid {
			return
		}
		d, e := "self", "self"
		switch tt.Prim {
		case types.PrimIsize, types.PrimUsize:
			d, e = "self as "+w.canon, "self as "+w.rust
		case types.PrimChar:
			d, e = "char::from_u32(self).unwrap_or(char::REPLACEMENT_CHARACTER)", "self as u32"
		}
		n.decodeImpl(w, w.rust, d)
		n.encodeImpl(w, w.rust, e)
	case types.KindString:
		n.decodeImpl(w, w.rust, unboxList, "String::from_utf8_lossy(&vec).into_owned()")
		n.encodeImpl(w, w.rust,
			"let (ptr, len) = bridge_runtime::into_leak_vec_ptr(self.into_bytes());",
			"bridge_runtime::new_leak_box_ptr("+w.structName+" { ptr, len })")
	case types.KindBytes:
		n.decodeImpl(w, w.rust, unboxList, "vec")
		n.encodeImpl(w, w.rust,
			"let (ptr, len) = bridge_runtime::into_leak_vec_ptr(self);",
			"bridge_runtime::new_leak_box_ptr("+w.structName+" { ptr, len })")
	case types.KindList:
		elem := n.t.of(tt.Elem)
		n.decodeImpl(w, w.rust, unboxList, "vec.into_iter().map(CstDecode::<"+elem.canon+">::cst_decode).collect()")
		n.encodeImpl(w, w.rust,
			"let vec: Vec<"+elem.rust+"> = self.into_iter().map(IntoWire::<"+elem.rust+">::into_wire).collect();",
			"let (ptr, len) = bridge_runtime::into_leak_vec_ptr(vec);",
			"bridge_runtime::new_leak_box_ptr("+w.structName+" { ptr, len })")
	case types.KindMap:
		k, v := n.t.of(tt.Elem), n.t.of(tt.Value)
		n.decodeImpl(w, w.rust,
			"let (keys, values) = unsafe {",
			"    let wrap = bridge_runtime::box_from_leak_ptr(self);",
			"    (bridge_runtime::vec_from_leak_ptr(wrap.keys, wrap.len), bridge_runtime::vec_from_leak_ptr(wrap.values, wrap.len))",
			"};",
			"keys.into_iter().zip(values).map(|(k, v)| ("+dec(k, "k")+", "+dec(v, "v")+")).collect()")
		n.encodeImpl(w, w.rust,
			"let mut keys = Vec::with_capacity(self.len());",
			"let mut values = Vec::with_capacity(self.len());",
			"for (k, v) in self {",
			"    keys.push("+enc(k, "k")+");",
			"    values.push("+enc(v, "v")+");",
			"}",
			"let (keys, len) = bridge_runtime::into_leak_vec_ptr(keys);",
			"let (values, _) = bridge_runtime::into_leak_vec_ptr(values);",
			"bridge_runtime::new_leak_box_ptr("+w.structName+" { keys, values, len })")
	case types.KindOptional:
		elem := n.t.of(tt.Elem)
		null := "std::ptr::null_mut()"
		if w.kind == wireHandle {
			null = "std::ptr::null()"
		}
		if w.boxed == nil {
			n.decodeImpl(w, w.rust, "if self.is_null() { None } else { Some("+dec(elem, "self")+") }")
			n.encodeImpl(w, w.rust, "match self { Some(v) => "+enc(elem, "v")+", None => "+null+" }")
			return
		}
		n.decodeImpl(w, w.rust, "if self.is_null() { None } else { Some("+dec(elem, "unsafe { *bridge_runtime::box_from_leak_ptr(self) }")+") }")
		n.encodeImpl(w, w.rust, "match self { Some(v) => bridge_runtime::new_leak_box_ptr("+enc(elem, "v")+"), None => "+null+" }")
	case types.KindRecord:
		n.record(w, n.a.doc.Record(w.id))
	case types.KindEnum:
		en := n.a.doc.Enum(w.id)
		if w.kind == wireScalar {
			n.unitEnum(w, en)
			return
		}
		n.payloadEnum(w, en)
	case types.KindOpaque:
		n.decodeImpl(w, w.rust, "unsafe { bridge_runtime::RustOpaque::from_raw_borrowed(self) }")
		n.encodeImpl(w, w.rust, "bridge_runtime::RustOpaque::into_raw(self)")
	}
}

func (n *nativeEmitter) record(w *wireType, rec *mir.Record) {
	path := exprPath(w.canon)
	decoded := make([]string, len(rec.Fields))
	encoded := make([]string, len(rec.Fields))
	for i, f := range rec.Fields {
		fw := n.t.of(f.Type)
		name := wireField(f.Name, f.Positional)
		decoded[i] = n.fromCanon(dec(fw, "wrap."+name), f.Value, fw)
		encoded[i] = name + ": " + embedded(fw, n.toCanon("self."+rustField(f.Name), f.Value, fw))
		if !rec.Tuple {
			decoded[i] = rustField(f.Name) + ": " + decoded[i]
		}
	}
	literal := path + " { " + strings.Join(decoded, ", ") + " }"
	if rec.Tuple {
		literal = path + "(" + strings.Join(decoded, ", ") + ")"
	}
	wire := w.structName + " { " + strings.Join(encoded, ", ") + " }"
	if w.flat {
		n.decodeImpl(w, w.structName, "let wrap = self;", literal)
		n.encodeImpl(w, w.structName, wire)
		if w.kind != wireStruct {
			n.boxImpls(w)
		}
		return
	}
	n.decodeImpl(w, w.rust, "let wrap = unsafe { *bridge_runtime::box_from_leak_ptr(self) };", literal)
	n.encodeImpl(w, w.rust, "bridge_runtime::new_leak_box_ptr("+wire+")")
}

func (n *nativeEmitter) unitEnum(w *wireType, en *mir.Enum) {
	path := exprPath(w.canon)
	n.line("")
	n.openf("impl CstDecode<%s> for i32 {", w.canon)
	n.openf("fn cst_decode(self) -> %s {", w.canon)
	n.open("match self {")
	for i, v := range en.Variants {
		n.linef("%d => %s::%s,", variantTag(i), path, v.Name)
	}
	n.linef("_ => unreachable!(\"invalid %s tag {}\", self),", w.slug)
	n.close("}")
	n.close("}")
	n.close("}")
	n.line("")
	n.openf("impl IntoWire<i32> for %s {", w.canon)
	n.open("fn into_wire(self) -> i32 {")
	n.open("match self {")
	for i, v := range en.Variants {
		n.linef("%s::%s => %d,", path, v.Name, variantTag(i))
	}
	n.close("}")
	n.close("}")
	n.close("}")
}

func (n *nativeEmitter) payloadEnum(w *wireType, en *mir.Enum) {
	path := exprPath(w.canon)
	from, unwrap, wrapped := w.rust, "let wrap = unsafe { *bridge_runtime::box_from_leak_ptr(self) };", "bridge_runtime::new_leak_box_ptr(wrap)"
	if w.flat {
		from, unwrap, wrapped = w.structName, "let wrap = self;", "wrap"
	}
	n.line("")
	n.openf("impl CstDecode<%s> for %s {", w.canon, from)
	n.openf("fn cst_decode(self) -> %s {", w.canon)
	n.line(unwrap)
	n.open("match wrap.tag {")
	for i, v := range en.Variants {
		if len(v.Fields) == 0 {
			n.linef("%d => %s::%s,", variantTag(i), path, v.Name)
			continue
		}
		n.openf("%d => {", variantTag(i))
		n.linef("let ans = unsafe { wrap.kind.%s };", v.Name)
		parts := make([]string, len(v.Fields))
		for j, f := range v.Fields {
			fw := n.t.of(f.Type)
			parts[j] = n.fromCanon(dec(fw, "ans."+wireField(f.Name, f.Positional)), f.Value, fw)
			if v.Shape == types.ShapeStruct {
				parts[j] = rustField(f.Name) + ": " + parts[j]
			}
		}
		if v.Shape == types.ShapeStruct {
			n.linef("%s::%s { %s }", path, v.Name, strings.Join(parts, ", "))
		} else {
			n.linef("%s::%s(%s)", path, v.Name, strings.Join(parts, ", "))
		}
		n.close("}")
	}
	n.linef("_ => unreachable!(\"invalid %s tag {}\", wrap.tag),", w.slug)
	n.close("}")
	n.close("}")
	n.close("}")

	n.line("")
	n.openf("impl IntoWire<%s> for %s {", from, w.canon)
	n.openf("fn into_wire(self) -> %s {", from)
	n.open("let wrap = match self {")
	for i, v := range en.Variants {
		tag := variantTag(i)
		switch v.Shape {
		case types.ShapeUnit:
			n.linef("%s::%s => %s { tag: %d, kind: unsafe { std::mem::zeroed() } },", path, v.Name, w.structName, tag)
			continue
		}
		binds := make([]string, len(v.Fields))
		members := make([]string, len(v.Fields))
		for j, f := range v.Fields {
			fw := n.t.of(f.Type)
			bind := wireField(f.Name, f.Positional)
			if v.Shape == types.ShapeStruct {
				bind = rustField(f.Name)
			}
			binds[j] = bind
			members[j] = wireField(f.Name, f.Positional) + ": " + embedded(fw, n.toCanon(bind, f.Value, fw))
		}
		pattern := path + "::" + v.Name + "(" + strings.Join(binds, ", ") + ")"
		if v.Shape == types.ShapeStruct {
			pattern = path + "::" + v.Name + " { " + strings.Join(binds, ", ") + " }"
		}
		vs := w.structName + "_" + v.Name
		n.linef("%s => %s { tag: %d, kind: %s_kind { %s: %s { %s } } },",
			pattern, w.structName, tag, w.structName, v.Name, vs, strings.Join(members, ", "))
	}
	n.close("};")
	n.line(wrapped)
	n.close("}")
	n.close("}")
	if w.flat {
		n.boxImpls(w)
	}
}

func wrapperType(native string) bool {
	base, _, _ := strings.Cut(native, "<")
	if i := strings.LastIndex(base, "::"); i >= 0 {
		base = base[i+2:]
	}
	return base == "RustOpaque" || base == "Opaque"
}

// fromCanon adapts a decoded canonical value to the native type a parameter
// or field declares.
func (n *nativeEmitter) fromCanon(expr string, v mir.Value, w *wireType) string {
	native := n.t.native(v.Native)
	kind := n.t.in.MustLookup(w.id).Kind
	switch {
	case w.kind == wireHandle && kind == types.KindOpaque:
		switch {
		case strings.HasPrefix(native, "&mut "):
			return "&mut *" + expr + ".lock()"
		case strings.HasPrefix(native, "&"):
			return "&*" + expr
		case wrapperType(native):
			return expr
		}
		return "bridge_runtime::RustOpaque::into_inner(" + expr + ")"
	case strings.HasPrefix(native, "&"):
		return "&" + expr
	case strings.HasPrefix(native, "Box<"):
		return "Box::new(" + expr + ")"
	case native == "" || native == w.canon:
		return expr
	case kind == types.KindString:
		return expr + ".into()"
	case kind == types.KindBytes || kind == types.KindList || kind == types.KindMap:
		if strings.HasPrefix(native, "[") {
			return expr + ".try_into().expect(\"array length\")"
		}
		return expr + ".into_iter().collect()"
	}
	return expr
}

// toCanon adapts a native value to the canonical type its wire form
// encodes.
func (n *nativeEmitter) toCanon(expr string, v mir.Value, w *wireType) string {
	native := n.t.native(v.Native)
	kind := n.t.in.MustLookup(w.id).Kind
	switch {
	case w.kind == wireHandle && kind == types.KindOpaque:
		if wrapperType(native) {
			return expr
		}
		return "bridge_runtime::RustOpaque::new(" + expr + ")"
	case kind == types.KindString && native != "String":
		return expr + ".to_string()"
	case strings.HasPrefix(native, "&"):
		return expr + ".to_owned()"
	case strings.HasPrefix(native, "Box<"):
		return "*" + expr
	case native == "" || native == w.canon:
		return expr
	case kind == types.KindBytes || kind == types.KindList:
		return expr + ".into_iter().collect::<Vec<_>>()"
	case kind == types.KindMap:
		return expr + ".into_iter().collect::<std::collections::HashMap<_, _>>()"
	}
	return expr
}

// posted converts a canonical result into what the port carries. Flat
// values go out as one C allocation the managed side frees with the same
// allocator, so they need no drop entry.
func (n *nativeEmitter) posted(w *wireType, expr string) string {
	if w.flat {
		return "bridge_runtime::new_leak_plain_ptr(" + embedded(w, expr) + ")"
	}
	return enc(w, expr)
}

func (n *nativeEmitter) errorValue(f *mir.Func) string {
	w := n.t.of(f.Err.Type)
	if n.t.in.MustLookup(w.id).Kind == types.KindString {
		return "err_.to_string()"
	}
	return n.toCanon("err_", *f.Err, w)
}

func (n *nativeEmitter) invocation(e *entry) string {
	f := e.fn
	args := make([]string, len(f.Params))
	for i, p := range f.Params {
		w := n.t.of(p.Type)
		args[i] = n.fromCanon("api_"+paramName(p.Name), p.Value, w)
	}
	call := exprPath(n.t.native(f.Path)) + "(" + strings.Join(args, ", ") + ")"
	if f.Mode == hir.ExecAsync {
		call += ".await"
	}
	return call
}

func signature(e *entry) string {
	params := make([]string, len(e.params))
	for i, p := range e.params {
		params[i] = p.name + ": " + p.rust
	}
	sig := "pub extern \"C\" fn " + e.symbol + "(" + strings.Join(params, ", ") + ")"
	if e.ret.c != "void" {
		sig += " -> " + e.ret.rust
	}
	return sig
}

func (n *nativeEmitter) call(e *entry) {
	f := e.fn
	n.line("")
	n.line("#[no_mangle]")
	n.openf("%s {", signature(e))
	for _, p := range e.params {
		if p.w == nil {
			continue
		}
		n.linef("let api_%s = %s;", p.name, dec(p.w, p.name))
	}
	ret := n.t.of(f.Ret.Type)
	call := n.invocation(e)
	switch f.Mode {
	case hir.ExecSync:
		n.open("bridge_runtime::handle_sync(move || {")
		n.syncBody(e, ret, call)
		n.close("})")
	case hir.ExecAsync:
		n.open("bridge_runtime::handle_async(port_, async move {")
		n.postBody(f, ret, call)
		n.close("})")
	default:
		n.open("bridge_runtime::handle(port_, move || {")
		n.postBody(f, ret, call)
		n.close("})")
	}
	n.close("}")
}

func (n *nativeEmitter) postBody(f *mir.Func, ret *wireType, call string) {
	ok := "Ok(())"
	if ret.kind != wireVoid {
		ok = "Ok(" + n.posted(ret, n.toCanon("output_", f.Ret, ret)) + ")"
	}
	if !f.Fallible() {
		if ret.kind == wireVoid {
			n.line(call + ";")
		} else {
			n.line("let output_ = " + call + ";")
		}
		n.line(strings.Replace(ok, "Ok(", "Ok::<_, ()>(", 1))
		return
	}
	errW := n.t.of(f.Err.Type)
	n.open("match " + call + " {")
	if ret.kind == wireVoid {
		n.line("Ok(_) => " + ok + ",")
	} else {
		n.line("Ok(output_) => " + ok + ",")
	}
	n.line("Err(err_) => Err(" + n.posted(errW, n.errorValue(f)) + "),")
	n.close("}")
}

func (n *nativeEmitter) syncBody(e *entry, ret *wireType, call string) {
	f := e.fn
	if !f.Fallible() {
		if ret.kind == wireVoid {
			n.line(call + ";")
			return
		}
		n.line("let output_ = " + call + ";")
		out := n.toCanon("output_", f.Ret, ret)
		if ret.kind == wirePointer && ret.flat {
			n.line(n.posted(ret, out))
		} else {
			n.line(enc(ret, out))
		}
		return
	}
	errW := n.t.of(f.Err.Type)
	res := e.result.name
	zero := "unsafe { std::mem::zeroed() }"
	okValue, errValue := "", ""
	if ret.kind != wireVoid {
		okValue = "value: " + embedded(ret, n.toCanon("output_", f.Ret, ret)) + ", "
		errValue = "value: " + zero + ", "
	}
	n.open("let wrap = match " + call + " {")
	if ret.kind == wireVoid {
		n.line("Ok(_) => " + res + " { ok: true, error: " + zero + " },")
	} else {
		n.line("Ok(output_) => " + res + " { ok: true, " + okValue + "error: " + zero + " },")
	}
	n.line("Err(err_) => " + res + " { ok: false, " + errValue + "error: " + embedded(errW, n.errorValue(f)) + " },")
	n.close("};")
	n.line("bridge_runtime::new_leak_box_ptr(wrap)")
}

func (n *nativeEmitter) helper(e *entry) {
	n.line("")
	n.line("#[no_mangle]")
	n.openf("%s {", signature(e))
	switch e.kind {
	case entryDrop:
		w := e.subject
		n.line("if ptr.is_null() {")
		n.line("    return;")
		n.line("}")
		n.linef("let _: %s = %s;", w.canon, dec(w, "ptr"))
	case entryDropResult:
		f := e.fn
		ret, errW := n.t.of(f.Ret.Type), n.t.of(f.Err.Type)
		n.line("if ptr.is_null() {")
		n.line("    return;")
		n.line("}")
		n.line("let wrap = unsafe { *bridge_runtime::box_from_leak_ptr(ptr) };")
		if ret.kind != wireVoid {
			n.open("if wrap.ok {")
			n.linef("let _: %s = %s;", ret.canon, dec(ret, "wrap.value"))
			n.close("} else {")
			n.depth++
		} else {
			n.open("if !wrap.ok {")
		}
		n.linef("let _: %s = %s;", errW.canon, dec(errW, "wrap.error"))
		n.close("}")
	case entryRelease:
		n.linef("unsafe { %s::release_raw(ptr) }", exprPath(e.subject.canon))
	case entryAlloc:
		w := e.subject
		zero := "unsafe { std::mem::zeroed() }"
		switch len(e.params) {
		case 0:
			n.linef("bridge_runtime::new_leak_box_ptr(%s)", zero)
		default:
			if n.t.in.MustLookup(w.id).Kind == types.KindMap {
				n.linef("let keys = bridge_runtime::new_leak_vec_ptr(%s, len);", zero)
				n.linef("let values = bridge_runtime::new_leak_vec_ptr(%s, len);", zero)
				n.linef("bridge_runtime::new_leak_box_ptr(%s { keys, values, len })", w.structName)
			} else {
				n.linef("let ptr = bridge_runtime::new_leak_vec_ptr(%s, len);", zero)
				n.linef("bridge_runtime::new_leak_box_ptr(%s { ptr, len })", w.structName)
			}
		}
	}
	n.close("}")
}
