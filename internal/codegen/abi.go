package codegen

import (
	"fmt"
	"slices"
	"strings"

	"bridgegen/internal/hir"
	"bridgegen/internal/mir"
	"bridgegen/internal/types"
)

type entryKind uint8

const (
	entryCall entryKind = iota
	entryDrop
	entryDropResult
	entryRelease
	entryAlloc
)

func (k entryKind) String() string {
	switch k {
	case entryDrop:
		return "drop"
	case entryDropResult:
		return "drop_result"
	case entryRelease:
		return "release"
	case entryAlloc:
		return "alloc"
	}
	return "call"
}

// slot is a typed parameter or return position of an entry point.
type slot struct {
	name string
	rust string
	c    string
	dart string
	w    *wireType
}

var (
	voidSlot = slot{rust: "()", c: "void", dart: "void"}
	portSlot = slot{name: "port_", rust: "i64", c: "int64_t", dart: "int"}
	lenSlot  = slot{name: "len", rust: "i32", c: "int32_t", dart: "int"}
)

func wireSlot(name string, w *wireType) slot {
	return slot{name: name, rust: w.rust, c: w.c, dart: w.dart, w: w}
}

// entry is one exported C symbol.
type entry struct {
	symbol string
	kind   entryKind
	params []slot
	ret    slot

	// fn is the bridged function behind an entryCall.
	fn *mir.Func
	// subject is the type a drop, release or allocator works on. For box
	// allocators it is the boxed value.
	subject *wireType
	// result is the generated result struct of a fallible sync call.
	result *cStruct
}

// abi is the complete exported surface of one document.
type abi struct {
	doc  *mir.Document
	t    *wireTable
	opts Options

	calls   []*entry
	helpers []*entry

	drops    map[types.TypeID]*entry
	releases map[types.TypeID]*entry
	// allocs is keyed by the allocated wire type.
	allocs  map[types.TypeID]*entry
	results map[*mir.Func]*entry
	symbols map[string]bool
}

func buildABI(doc *mir.Document, t *wireTable, opts Options) (*abi, error) {
	a := &abi{
		doc:      doc,
		t:        t,
		opts:     opts,
		drops:    make(map[types.TypeID]*entry),
		releases: make(map[types.TypeID]*entry),
		allocs:   make(map[types.TypeID]*entry),
		results:  make(map[*mir.Func]*entry),
		symbols:  make(map[string]bool),
	}
	for _, w := range t.reachable() {
		if err := a.checkElements(w); err != nil {
			return nil, err
		}
	}
	for _, f := range doc.Funcs {
		if err := a.addCall(f); err != nil {
			return nil, err
		}
	}
	for _, id := range doc.Disposable() {
		if err := a.addDrop(t.of(a.typeOf(id))); err != nil {
			return nil, err
		}
	}
	for _, o := range doc.Opaques {
		w := t.of(o.Type)
		e := &entry{
			symbol:  "frbgen_" + w.crate + "_release_" + w.slug,
			kind:    entryRelease,
			params:  []slot{wireSlot("ptr", w)},
			ret:     voidSlot,
			subject: w,
		}
		if err := a.add(e); err != nil {
			return nil, err
		}
		a.releases[w.id] = e
	}
	for _, w := range t.reachable() {
		if err := a.addAlloc(w); err != nil {
			return nil, err
		}
	}
	slices.SortFunc(a.helpers, func(x, y *entry) int { return strings.Compare(x.symbol, y.symbol) })
	return a, nil
}

func (a *abi) typeOf(id mir.Ident) types.TypeID {
	for _, r := range a.doc.Records {
		if r.Ident.Key == id.Key {
			return r.Type
		}
	}
	for _, e := range a.doc.Enums {
		if e.Ident.Key == id.Key {
			return e.Type
		}
	}
	return types.NoTypeID
}

// checkElements rejects containers of unit, which have no wire form.
func (a *abi) checkElements(w *wireType) error {
	tt := a.t.in.MustLookup(w.id)
	switch tt.Kind {
	case types.KindList, types.KindOptional, types.KindMap:
		if a.t.of(tt.Elem).kind == wireVoid || tt.Kind == types.KindMap && a.t.of(tt.Value).kind == wireVoid {
			return fmt.Errorf("%s holds unit, which has no wire form", types.Label(a.t.in, w.id))
		}
	}
	return nil
}

func (a *abi) add(e *entry) error {
	if a.symbols[e.symbol] {
		return fmt.Errorf("entry point %s is generated twice", e.symbol)
	}
	a.symbols[e.symbol] = true
	if e.kind == entryCall {
		a.calls = append(a.calls, e)
	} else {
		a.helpers = append(a.helpers, e)
	}
	return nil
}

func (a *abi) addCall(f *mir.Func) error {
	e := &entry{symbol: "frbgen_" + f.Crate + "_wire_" + f.Ident.Symbol, kind: entryCall, fn: f, ret: voidSlot}
	sync := f.Mode == hir.ExecSync
	if !sync {
		e.params = append(e.params, portSlot)
	}
	for _, p := range f.Params {
		e.params = append(e.params, wireSlot(paramName(p.Name), a.t.of(p.Type)))
	}
	ret := a.t.of(f.Ret.Type)
	switch {
	case sync && f.Fallible():
		res := &cStruct{name: "wire_cst_result_" + f.Ident.Symbol, fields: []cField{scalarField("ok", types.PrimBool)}}
		if ret.kind != wireVoid {
			res.fields = append(res.fields, a.t.member("value", ret))
		}
		res.fields = append(res.fields, a.t.member("error", a.t.of(f.Err.Type)))
		a.t.structs = append(a.t.structs, res)
		e.result = res
		e.ret = slot{rust: "*mut " + res.name, c: res.name + " *", dart: "ffi.Pointer<" + res.name + ">"}
		drop := &entry{
			symbol: "frbgen_" + f.Crate + "_drop_result_" + f.Ident.Symbol,
			kind:   entryDropResult,
			params: []slot{{name: "ptr", rust: e.ret.rust, c: e.ret.c, dart: e.ret.dart}},
			ret:    voidSlot,
			fn:     f,
			result: res,
		}
		if err := a.add(drop); err != nil {
			return err
		}
		a.results[f] = drop
	case sync:
		e.ret = wireSlot("", ret)
		if ret.kind == wirePointer && !ret.flat {
			if err := a.addDrop(ret); err != nil {
				return err
			}
		}
	default:
		for _, w := range a.postedOf(f) {
			if w.disposable() {
				if err := a.addDrop(w); err != nil {
					return err
				}
			}
		}
	}
	return a.add(e)
}

// postedOf lists the wire types an async call posts back.
func (a *abi) postedOf(f *mir.Func) []*wireType {
	out := []*wireType{a.t.of(f.Ret.Type)}
	if f.Err != nil {
		out = append(out, a.t.of(f.Err.Type))
	}
	return out
}

// addDrop registers the disposer of w once. Only values owning heap data
// get one; flat values never reach here.
func (a *abi) addDrop(w *wireType) error {
	if _, ok := a.drops[w.id]; ok {
		return nil
	}
	e := &entry{
		symbol:  "frbgen_" + w.crate + "_drop_" + w.slug,
		kind:    entryDrop,
		params:  []slot{wireSlot("ptr", w)},
		ret:     voidSlot,
		subject: w,
	}
	a.drops[w.id] = e
	return a.add(e)
}

// addAlloc registers the allocator the managed side uses to build w.
func (a *abi) addAlloc(w *wireType) error {
	tt := a.t.in.MustLookup(w.id)
	e := &entry{kind: entryAlloc, subject: w, ret: wireSlot("", w)}
	switch {
	case w.kind != wirePointer:
		return nil
	case w.boxed != nil:
		e.symbol = "frbgen_" + a.t.ns + "_cst_new_box_" + w.boxed.slug
	case tt.Kind == types.KindOptional:
		// shares the element's pointer
		return nil
	case tt.Kind == types.KindRecord || tt.Kind == types.KindEnum:
		e.symbol = "frbgen_" + w.crate + "_cst_new_box_" + w.slug
	default:
		e.symbol = "frbgen_" + a.t.ns + "_cst_new_" + strings.TrimPrefix(w.structName, "wire_cst_")
		e.params = []slot{lenSlot}
	}
	if a.symbols[e.symbol] {
		// String and Vec<u8> share one list layout
		for _, h := range a.helpers {
			if h.symbol == e.symbol {
				a.allocs[w.id] = h
			}
		}
		return nil
	}
	a.allocs[w.id] = e
	return a.add(e)
}

// paramName keeps parameter names valid in every target language.
func paramName(name string) string {
	if rustKeywords[name] || dartKeywords[name] {
		return name + "_"
	}
	return name
}

// entries returns every exported symbol: calls in identifier order, then
// helpers by symbol.
func (a *abi) entries() []*entry {
	return append(slices.Clone(a.calls), a.helpers...)
}

// structs returns the generated C structs in definition order.
func (a *abi) structs() []*cStruct { return a.t.structs }
