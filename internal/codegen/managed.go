package codegen

import (
	"strings"

	"bridgegen/internal/hir"
	"bridgegen/internal/mir"
	"bridgegen/internal/types"
)

// managedEmitter writes the Dart bindings on top of the low-level ffi
// declarations.
type managedEmitter struct {
	emitter
	a     *abi
	t     *wireTable
	opts  Options
	taken map[types.TypeID]bool
}

func emitManaged(a *abi, opts Options) []byte {
	m := &managedEmitter{emitter: emitter{unit: "  "}, a: a, t: a.t, opts: opts, taken: make(map[types.TypeID]bool)}
	m.line("// Code generated by bridgegen. DO NOT EDIT.")
	m.line("// ignore_for_file: camel_case_types, non_constant_identifier_names, unused_element, unused_import")
	m.line("")
	m.line("import 'dart:convert';")
	m.line("import 'dart:ffi' as ffi;")
	m.line("import 'dart:typed_data';")
	m.line("")
	m.line("import 'package:bridge_runtime/bridge_runtime.dart';")
	m.line("import 'package:ffi/ffi.dart';")
	m.line("")
	m.linef("import '%s';", opts.LowLevelImport)

	for _, r := range a.doc.Records {
		m.record(r)
	}
	for _, e := range a.doc.Enums {
		m.enum(e)
	}
	for _, o := range a.doc.Opaques {
		m.opaque(o)
	}
	m.api()
	return m.bytes()
}

func (m *managedEmitter) className(id mir.Ident) string { return upperCamel(id.Symbol) }

// dartType is the public Dart type of a MIR type.
func (m *managedEmitter) dartType(id types.TypeID) string {
	tt := m.t.in.MustLookup(id)
	switch tt.Kind {
	case types.KindPrimitive:
		switch tt.Prim {
		case types.PrimUnit:
			return "void"
		case types.PrimChar:
			return "String"
		}
		return primDart(tt.Prim)
	case types.KindString:
		return "String"
	case types.KindBytes:
		return "Uint8List"
	case types.KindList:
		return "List<" + m.dartType(tt.Elem) + ">"
	case types.KindMap:
		return "Map<" + m.dartType(tt.Elem) + ", " + m.dartType(tt.Value) + ">"
	case types.KindOptional:
		return strings.TrimSuffix(m.dartType(tt.Elem), "?") + "?"
	case types.KindRecord:
		return m.className(m.a.doc.Record(id).Ident)
	case types.KindEnum:
		return m.className(m.a.doc.Enum(id).Ident)
	case types.KindOpaque:
		return m.className(m.a.doc.Opaque(id).Ident)
	}
	return "Object"
}

// fieldList writes final fields and returns the constructor parameters.
func (m *managedEmitter) fieldList(fields []mir.Field, positional bool) string {
	params := make([]string, len(fields))
	for i, f := range fields {
		name := dartField(f.Name, f.Positional)
		params[i] = "this." + name
		if !positional {
			params[i] = "required " + params[i]
		}
	}
	if len(params) == 0 {
		return ""
	}
	if positional {
		return strings.Join(params, ", ")
	}
	return "{" + strings.Join(params, ", ") + "}"
}

func (m *managedEmitter) fields(fields []mir.Field) {
	if len(fields) > 0 {
		m.line("")
	}
	for _, f := range fields {
		m.linef("final %s %s;", m.dartType(f.Type), dartField(f.Name, f.Positional))
	}
}

func (m *managedEmitter) record(r *mir.Record) {
	name := m.className(r.Ident)
	m.line("")
	m.linef("/// Mirrors `%s`.", r.Native)
	m.openf("class %s {", name)
	m.linef("const %s(%s);", name, m.fieldList(r.Fields, r.Tuple))
	m.fields(r.Fields)
	m.close("}")
}

func (m *managedEmitter) enum(e *mir.Enum) {
	name := m.className(e.Ident)
	m.line("")
	m.linef("/// Mirrors `%s`.", e.Native)
	if e.UnitOnly() {
		m.openf("enum %s {", name)
		for _, v := range e.Variants {
			m.linef("%s,", lowerCamel(v.Name))
		}
		m.close("}")
		return
	}
	m.openf("sealed class %s {", name)
	m.linef("const %s();", name)
	m.close("}")
	for _, v := range e.Variants {
		sub := name + "_" + v.Name
		m.line("")
		m.openf("final class %s extends %s {", sub, name)
		m.linef("const %s(%s);", sub, m.fieldList(v.Fields, v.Shape == types.ShapeTuple))
		m.fields(v.Fields)
		m.close("}")
	}
}

func (m *managedEmitter) finalizerName(o *mir.Opaque) string {
	return "_finalizer" + m.className(o.Ident)
}

func (m *managedEmitter) opaque(o *mir.Opaque) {
	name := m.className(o.Ident)
	release := m.a.releases[o.Type]
	fin := m.finalizerName(o)
	m.line("")
	m.linef("/// Handle to a native `%s`. Call [dispose] when done; otherwise the", o.Native)
	m.line("/// handle is released once the object is garbage collected.")
	m.openf("final class %s implements ffi.Finalizable {", name)
	m.openf("%s._(this._bridge, this._ptr) {", name)
	m.linef("_bridge.%s.attach(this, _ptr, detach: this);", fin)
	m.close("}")
	m.line("")
	m.linef("final %s _bridge;", m.opts.APIClass)
	m.line("ffi.Pointer<ffi.Void> _ptr;")
	m.line("")
	m.line("bool get isDisposed => _ptr == ffi.nullptr;")
	m.line("")
	m.open("ffi.Pointer<ffi.Void> get _handle {")
	m.open("if (isDisposed) {")
	m.linef("throw StateError('%s used after dispose');", name)
	m.close("}")
	m.line("return _ptr;")
	m.close("}")
	m.line("")
	m.open("void dispose() {")
	m.open("if (isDisposed) {")
	m.line("return;")
	m.close("}")
	m.linef("_bridge.%s.detach(this);", fin)
	m.linef("_bridge._wire.%s(_ptr);", release.symbol)
	m.line("_ptr = ffi.nullptr;")
	m.close("}")
	m.close("}")
}

func (m *managedEmitter) api() {
	cls := m.opts.APIClass
	m.line("")
	m.linef("/// Entry point of the bindings for %s.", strings.Join(m.a.doc.Crates, ", "))
	m.openf("class %s {", cls)
	m.linef("%s(this._lib) : _wire = %s(_lib);", cls, m.opts.WireClass)
	m.line("")
	m.linef("factory %s.open([String? path]) => %s(ffi.DynamicLibrary.open(path ?? defaultLibraryPath('%s')));", cls, cls, m.opts.LibName)
	m.line("")
	m.line("final ffi.DynamicLibrary _lib;")
	m.linef("final %s _wire;", m.opts.WireClass)
	m.line("final _handler = BridgeHandler();")
	for _, o := range m.a.doc.Opaques {
		m.line("")
		m.linef("late final %s = ffi.NativeFinalizer(", m.finalizerName(o))
		m.linef("    _lib.lookup<ffi.NativeFunction<ffi.Void Function(ffi.Pointer<ffi.Void>)>>('%s'));", m.a.releases[o.Type].symbol)
	}
	for _, e := range m.a.calls {
		m.function(e)
	}
	for _, e := range m.a.helpers {
		if e.kind == entryDrop {
			m.disposer(e)
		}
	}
	for _, w := range m.t.reachable() {
		m.codec(w)
	}
	for _, w := range m.t.reachable() {
		if m.taken[w.id] {
			m.take(w)
		}
	}
	m.close("}")
}

func suffix(w *wireType) string { return "_" + w.slug }

func (m *managedEmitter) encScalar(w *wireType, expr string) string {
	tt := m.t.in.MustLookup(w.id)
	switch {
	case tt.Kind == types.KindEnum:
		return expr + ".index"
	case tt.Prim == types.PrimChar:
		return expr + ".runes.first"
	}
	return expr
}

func (m *managedEmitter) decScalar(w *wireType, expr string) string {
	tt := m.t.in.MustLookup(w.id)
	switch {
	case tt.Kind == types.KindEnum:
		return m.dartType(w.id) + ".values[" + expr + "]"
	case tt.Prim == types.PrimChar:
		return "String.fromCharCode(" + expr + ")"
	}
	return expr
}

func (m *managedEmitter) decode(w *wireType, expr string) string {
	if w.kind == wireScalar {
		return m.decScalar(w, expr)
	}
	return "_cstDecode" + suffix(w) + "(" + expr + ")"
}

// read decodes a flat value from a struct view.
func (m *managedEmitter) read(w *wireType, expr string) string {
	if w.kind == wireStruct {
		return m.decode(w, expr)
	}
	return "_cstRead" + suffix(w) + "(" + expr + ")"
}

// member decodes a struct member; flat members are read in place.
func (m *managedEmitter) member(w *wireType, expr string) string {
	if w.flat {
		return m.read(w, expr)
	}
	return m.decode(w, expr)
}

// fill stores value into a struct member; flat members are filled in place.
func (m *managedEmitter) fill(w *wireType, target, value string) {
	if w.flat {
		m.linef("_cstFill%s(%s, %s);", suffix(w), value, target)
		return
	}
	m.assign(w, target, value)
}

// release frees a flat result the native side allocated with the C
// allocator.
func (m *managedEmitter) release(ptr string) {
	m.linef("malloc.free(%s);", ptr)
}

// assign stores value into a wire slot.
func (m *managedEmitter) assign(w *wireType, target, value string) {
	switch w.kind {
	case wireScalar:
		m.linef("%s = %s;", target, m.encScalar(w, value))
	case wireStruct:
		m.linef("_cstFill%s(%s, %s);", suffix(w), value, target)
	default:
		m.linef("%s = _cstEncode%s(%s);", target, suffix(w), value)
	}
}

func (m *managedEmitter) function(e *entry) {
	f := e.fn
	ret := m.t.of(f.Ret.Type)
	sync := f.Mode == hir.ExecSync
	params := make([]string, 0, len(f.Params))
	var setup, args []string
	if !sync {
		args = append(args, "port")
	}
	needArena := false
	for _, p := range f.Params {
		w := m.t.of(p.Type)
		name := lowerCamel(p.Name)
		params = append(params, "required "+m.dartType(p.Type)+" "+name)
		switch w.kind {
		case wireScalar:
			args = append(args, m.encScalar(w, name))
		case wireStruct:
			needArena = true
			setup = append(setup,
				"final "+name+"Wire = arena<"+w.structName+">();",
				"_cstFill"+suffix(w)+"("+name+", "+name+"Wire.ref);")
			args = append(args, name+"Wire.ref")
		default:
			args = append(args, "_cstEncode"+suffix(w)+"("+name+")")
		}
	}
	sig := lowerCamel(f.Ident.Symbol) + "("
	if len(params) > 0 {
		sig += "{" + strings.Join(params, ", ") + "}"
	}
	sig += ")"
	call := "_wire." + e.symbol + "(" + strings.Join(args, ", ") + ")"
	retType := m.dartType(f.Ret.Type)

	m.line("")
	m.linef("/// Calls `%s`.", f.Path)
	if !sync {
		m.openf("Future<%s> %s {", retType, sig)
		m.open("return _handler.execute(")
		if needArena {
			m.open("(port) => using((arena) {")
		} else {
			m.open("(port) {")
		}
		for _, s := range setup {
			m.line(s)
		}
		m.line(call + ";")
		if needArena {
			m.close("}),")
		} else {
			m.close("},")
		}
		m.linef("decodeSuccess: %s,", m.taker(ret))
		if f.Fallible() {
			m.linef("decodeError: %s,", m.taker(m.t.of(f.Err.Type)))
		}
		m.close(");")
		m.close("}")
		return
	}

	m.openf("%s %s {", retType, sig)
	if needArena {
		m.open("return using((arena) {")
	}
	for _, s := range setup {
		m.line(s)
	}
	switch {
	case f.Fallible():
		errW := m.t.of(f.Err.Type)
		m.linef("final raw = %s;", call)
		m.open("try {")
		m.open("if (!raw.ref.ok) {")
		m.linef("throw %s;", m.member(errW, "raw.ref.error"))
		m.close("}")
		if ret.kind != wireVoid {
			m.linef("return %s;", m.member(ret, "raw.ref.value"))
		}
		m.close("} finally {")
		m.depth++
		m.linef("_wire.%s(raw);", m.a.results[f].symbol)
		m.close("}")
	case ret.kind == wireVoid:
		m.line(call + ";")
	case ret.kind == wirePointer && ret.flat:
		m.linef("final raw = %s;", call)
		m.open("try {")
		m.linef("return %s;", m.read(ret, "raw.ref"))
		m.close("} finally {")
		m.depth++
		m.release("raw")
		m.close("}")
	case ret.kind == wirePointer:
		m.linef("final raw = %s;", call)
		m.open("try {")
		m.linef("return %s;", m.decode(ret, "raw"))
		m.close("} finally {")
		m.depth++
		m.linef("_drop%s(_wire, raw);", suffix(ret))
		m.close("}")
	default:
		m.linef("return %s;", m.decode(ret, call))
	}
	if needArena {
		m.close("});")
	}
	m.close("}")
}

// taker names the function turning a posted result into a Dart value.
func (m *managedEmitter) taker(w *wireType) string {
	if w.kind == wireVoid {
		return "(_) {}"
	}
	m.taken[w.id] = true
	return "_take" + suffix(w)
}

func (m *managedEmitter) take(w *wireType) {
	m.line("")
	m.openf("%s _take%s(dynamic raw) {", m.dartType(w.id), suffix(w))
	switch {
	case w.kind == wireScalar:
		m.linef("return %s;", m.decScalar(w, "raw as "+w.dart))
	case w.kind == wireHandle:
		m.linef("return %s;", m.decode(w, "ffi.Pointer<ffi.Void>.fromAddress(raw as int)"))
	case w.flat:
		m.linef("final ptr = ffi.Pointer<%s>.fromAddress(raw as int);", w.structName)
		m.open("try {")
		m.linef("return %s;", m.read(w, "ptr.ref"))
		m.close("} finally {")
		m.depth++
		m.release("ptr")
		m.close("}")
	default:
		m.linef("final ptr = %s.fromAddress(raw as int);", w.dart)
		m.open("try {")
		m.linef("return %s;", m.decode(w, "ptr"))
		m.close("} finally {")
		m.depth++
		m.linef("_drop%s(_wire, ptr);", suffix(w))
		m.close("}")
	}
	m.close("}")
}

func (m *managedEmitter) disposer(e *entry) {
	m.line("")
	m.linef("static void _drop%s(%s wire, %s ptr) => wire.%s(ptr);", suffix(e.subject), m.opts.WireClass, e.params[0].dart, e.symbol)
}

func (m *managedEmitter) codec(w *wireType) {
	tt := m.t.in.MustLookup(w.id)
	dt := m.dartType(w.id)
	sx := suffix(w)
	switch tt.Kind {
	case types.KindString, types.KindBytes:
		alloc := m.a.allocs[w.id].symbol
		m.line("")
		m.openf("%s _cstEncode%s(%s raw) {", w.dart, sx, dt)
		src := "raw"
		if tt.Kind == types.KindString {
			m.line("final bytes = utf8.encode(raw);")
			src = "bytes"
		}
		m.linef("final ans = _wire.%s(%s.length);", alloc, src)
		m.linef("ans.ref.ptr.asTypedList(%s.length).setAll(0, %s);", src, src)
		m.line("return ans;")
		m.close("}")
		m.line("")
		m.openf("%s _cstDecode%s(%s raw) {", dt, sx, w.dart)
		m.open("if (raw.ref.len == 0) {")
		if tt.Kind == types.KindString {
			m.line("return '';")
			m.close("}")
			m.line("return utf8.decode(raw.ref.ptr.asTypedList(raw.ref.len));")
		} else {
			m.line("return Uint8List(0);")
			m.close("}")
			m.line("return Uint8List.fromList(raw.ref.ptr.asTypedList(raw.ref.len));")
		}
		m.close("}")
	case types.KindList:
		elem := m.t.of(tt.Elem)
		m.line("")
		m.openf("%s _cstEncode%s(%s raw) {", w.dart, sx, dt)
		m.linef("final ans = _wire.%s(raw.length);", m.a.allocs[w.id].symbol)
		m.open("for (var i = 0; i < raw.length; i++) {")
		m.assign(elem, "ans.ref.ptr[i]", "raw[i]")
		m.close("}")
		m.line("return ans;")
		m.close("}")
		m.line("")
		m.openf("%s _cstDecode%s(%s raw) {", dt, sx, w.dart)
		m.linef("return List<%s>.generate(raw.ref.len, (i) => %s, growable: false);", m.dartType(tt.Elem), m.decode(elem, "raw.ref.ptr[i]"))
		m.close("}")
	case types.KindMap:
		k, v := m.t.of(tt.Elem), m.t.of(tt.Value)
		m.line("")
		m.openf("%s _cstEncode%s(%s raw) {", w.dart, sx, dt)
		m.linef("final ans = _wire.%s(raw.length);", m.a.allocs[w.id].symbol)
		m.line("var i = 0;")
		m.open("for (final entry in raw.entries) {")
		m.assign(k, "ans.ref.keys[i]", "entry.key")
		m.assign(v, "ans.ref.values[i]", "entry.value")
		m.line("i++;")
		m.close("}")
		m.line("return ans;")
		m.close("}")
		m.line("")
		m.openf("%s _cstDecode%s(%s raw) {", dt, sx, w.dart)
		m.linef("return <%s, %s>{", m.dartType(tt.Elem), m.dartType(tt.Value))
		m.linef("  for (var i = 0; i < raw.ref.len; i++) %s: %s,", m.decode(k, "raw.ref.keys[i]"), m.decode(v, "raw.ref.values[i]"))
		m.line("};")
		m.close("}")
	case types.KindOptional:
		elem := m.t.of(tt.Elem)
		m.line("")
		m.openf("%s _cstEncode%s(%s raw) {", w.dart, sx, dt)
		m.open("if (raw == null) {")
		m.line("return ffi.nullptr;")
		m.close("}")
		if w.boxed == nil {
			m.linef("return _cstEncode%s(raw);", suffix(elem))
		} else {
			m.linef("final ans = _wire.%s();", m.a.allocs[w.id].symbol)
			if elem.kind == wireStruct {
				m.assign(elem, "ans.ref", "raw")
			} else {
				m.assign(elem, "ans.value", "raw")
			}
			m.line("return ans;")
		}
		m.close("}")
		m.line("")
		m.openf("%s _cstDecode%s(%s raw) {", dt, sx, w.dart)
		inner := "raw"
		if w.boxed != nil {
			inner = "raw.value"
			if elem.kind == wireStruct {
				inner = "raw.ref"
			}
		}
		m.linef("return raw == ffi.nullptr ? null : %s;", m.decode(elem, inner))
		m.close("}")
	case types.KindRecord:
		m.recordCodec(w, m.a.doc.Record(w.id))
	case types.KindEnum:
		if w.kind != wireScalar {
			m.enumCodec(w, m.a.doc.Enum(w.id))
		}
	case types.KindOpaque:
		m.line("")
		m.linef("%s _cstEncode%s(%s raw) => raw._handle;", w.dart, sx, dt)
		m.line("")
		m.linef("%s _cstDecode%s(%s raw) => %s._(this, raw);", dt, sx, w.dart, dt)
	}
}

func (m *managedEmitter) construct(cls string, fields []mir.Field, positional bool, base string) string {
	args := make([]string, len(fields))
	for i, f := range fields {
		fw := m.t.of(f.Type)
		args[i] = m.member(fw, base+"."+wireField(f.Name, f.Positional))
		if !positional {
			args[i] = dartField(f.Name, f.Positional) + ": " + args[i]
		}
	}
	return cls + "(" + strings.Join(args, ", ") + ")"
}

func (m *managedEmitter) recordCodec(w *wireType, r *mir.Record) {
	cls := m.className(r.Ident)
	sx := suffix(w)
	m.line("")
	m.openf("void _cstFill%s(%s raw, %s target) {", sx, cls, w.structName)
	for _, f := range r.Fields {
		m.fill(m.t.of(f.Type), "target."+wireField(f.Name, f.Positional), "raw."+dartField(f.Name, f.Positional))
	}
	m.close("}")
	if w.kind == wirePointer {
		m.line("")
		m.openf("%s _cstEncode%s(%s raw) {", w.dart, sx, cls)
		m.linef("final ans = _wire.%s();", m.a.allocs[w.id].symbol)
		m.linef("_cstFill%s(raw, ans.ref);", sx)
		m.line("return ans;")
		m.close("}")
	}
	m.line("")
	if w.kind == wireStruct {
		m.openf("%s _cstDecode%s(%s wrap) {", cls, sx, w.dart)
	} else {
		m.linef("%s _cstDecode%s(%s raw) => _cstRead%s(raw.ref);", cls, sx, w.dart, sx)
		m.line("")
		m.openf("%s _cstRead%s(%s wrap) {", cls, sx, w.structName)
	}
	m.linef("return %s;", m.construct(cls, r.Fields, r.Tuple, "wrap"))
	m.close("}")
}

func (m *managedEmitter) enumCodec(w *wireType, e *mir.Enum) {
	cls := m.className(e.Ident)
	sx := suffix(w)
	m.line("")
	m.openf("%s _cstEncode%s(%s raw) {", w.dart, sx, cls)
	m.linef("final ans = _wire.%s();", m.a.allocs[w.id].symbol)
	m.linef("_cstFill%s(raw, ans.ref);", sx)
	m.line("return ans;")
	m.close("}")
	m.line("")
	m.openf("void _cstFill%s(%s raw, %s target) {", sx, cls, w.structName)
	for i, v := range e.Variants {
		sub := cls + "_" + v.Name
		if i == 0 {
			m.openf("if (raw is %s) {", sub)
		} else {
			m.close("} else if (raw is " + sub + ") {")
			m.depth++
		}
		m.linef("target.tag = %d;", variantTag(i))
		for _, f := range v.Fields {
			target := "target.kind." + v.Name + "." + wireField(f.Name, f.Positional)
			m.fill(m.t.of(f.Type), target, "raw."+dartField(f.Name, f.Positional))
		}
	}
	m.close("}")
	m.close("}")
	m.line("")
	m.linef("%s _cstDecode%s(%s raw) => _cstRead%s(raw.ref);", cls, sx, w.dart, sx)
	m.line("")
	m.openf("%s _cstRead%s(%s wrap) {", cls, sx, w.structName)
	for i, v := range e.Variants {
		sub := cls + "_" + v.Name
		m.openf("if (wrap.tag == %d) {", variantTag(i))
		if len(v.Fields) == 0 {
			m.linef("return const %s();", sub)
		} else {
			m.linef("final ans = wrap.kind.%s;", v.Name)
			m.linef("return %s;", m.construct(sub, v.Fields, v.Shape == types.ShapeTuple, "ans"))
		}
		m.close("}")
	}
	m.linef("throw StateError('invalid %s tag ${wrap.tag}');", cls)
	m.close("}")
}
