package mir

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"bridgegen/internal/diag"
	"bridgegen/internal/hir"
	"bridgegen/internal/raw"
	"bridgegen/internal/types"
)

// Options configures Lower.
type Options struct {
	// Crates restricts lowering to these primary crates; empty means all.
	Crates []string
}

type lowered struct {
	id     types.TypeID
	own    Ownership
	native string
}

func (v lowered) value() Value { return Value{Type: v.id, Own: v.own, Native: v.native} }

type memoKey struct {
	scope hir.ModuleRef
	text  string
	env   string
}

// env is the generic environment a type expression is lowered in.
type env struct {
	scope hir.ModuleRef
	args  map[string]lowered
	// free are declared generic parameters without an instantiation.
	free []string
	self *hir.Item
	key  string
}

func newEnv(scope hir.ModuleRef, params []string, args []lowered, free []string, self *hir.Item) *env {
	e := &env{scope: scope, free: free, self: self}
	var sb strings.Builder
	if len(params) > 0 {
		e.args = make(map[string]lowered, len(params))
		for i, p := range params {
			e.args[p] = args[i]
			fmt.Fprintf(&sb, "%s=%d;", p, args[i].id)
		}
	}
	if len(free) > 0 {
		sb.WriteString("free=" + strings.Join(free, ",") + ";")
	}
	if self != nil {
		sb.WriteString("self=" + self.Path.String())
	}
	e.key = sb.String()
	return e
}

type lowerer struct {
	pack *hir.Pack
	in   *types.Interner
	doc  *Document
	memo map[memoKey]lowered
	// pending marks nominal types whose members are being lowered.
	pending map[types.TypeID]bool
	ownOf   map[types.TypeID]Ownership
	// item is the canonical path reported by errors.
	item      string
	typeCands []identCandidate
}

// Lower builds the Document for the bridged functions of pack.
func Lower(pack *hir.Pack, opts Options) (*Document, error) {
	in := types.NewInterner()
	l := &lowerer{
		pack:    pack,
		in:      in,
		doc:     &Document{Types: in},
		memo:    make(map[memoKey]lowered),
		pending: make(map[types.TypeID]bool),
		ownOf:   make(map[types.TypeID]Ownership),
	}
	for _, c := range pack.Crates() {
		if c.Primary && (len(opts.Crates) == 0 || slices.Contains(opts.Crates, c.Name)) {
			l.doc.Crates = append(l.doc.Crates, c.Name)
		}
	}

	var fns []*hir.Item
	for _, it := range pack.BridgedFunctions() {
		if slices.Contains(l.doc.Crates, it.Path.Crate) {
			fns = append(fns, it)
		}
	}
	// lower in identifier order so TypeIDs do not depend on declaration order
	slices.SortStableFunc(fns, func(a, b *hir.Item) int {
		return cmp.Or(
			strings.Compare(shortKey(a.Path), shortKey(b.Path)),
			strings.Compare(a.Path.Module, b.Path.Module),
		)
	})

	var fnCands []identCandidate
	for _, it := range fns {
		fn, err := l.lowerFunc(it)
		if err != nil {
			return nil, err
		}
		l.doc.Funcs = append(l.doc.Funcs, fn)
		fnCands = append(fnCands, identCandidate{
			crate:  it.Path.Crate,
			module: splitModule(it.Path.Module),
			owner:  it.Path.Owner,
			name:   it.Name,
			assign: func(id Ident) { fn.Ident = id },
		})
	}
	if err := l.assign(fnCands); err != nil {
		return nil, err
	}
	if err := l.assign(l.typeCands); err != nil {
		return nil, err
	}
	l.doc.finish()
	if err := Validate(l.doc); err != nil {
		return nil, &LoweringError{Code: diag.LowInvariant, Item: strings.Join(l.doc.Crates, ","), Detail: err.Error()}
	}
	return l.doc, nil
}

func shortKey(p hir.ItemPath) string {
	if p.Owner != "" {
		return p.Crate + "::" + p.Owner + "::" + p.Name
	}
	return p.Crate + "::" + p.Name
}

func splitModule(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func (l *lowerer) assign(cands []identCandidate) error {
	qualified, dup := assignIdents(cands)
	if dup != "" {
		return &LoweringError{Code: diag.LowDuplicateIdentifier, Item: dup, Detail: "two bridged items share this identifier"}
	}
	for _, key := range qualified {
		l.doc.Diagnostics = append(l.doc.Diagnostics, diag.NewInfo(diag.LowDisambiguated,
			diag.Location{Item: key}, "identifier collides; module path added"))
	}
	return nil
}

// finish sorts every list by identifier and builds the lookup maps.
func (d *Document) finish() {
	byKey := func(a, b Ident) int { return strings.Compare(a.Key, b.Key) }
	slices.SortFunc(d.Funcs, func(a, b *Func) int { return byKey(a.Ident, b.Ident) })
	slices.SortFunc(d.Records, func(a, b *Record) int { return byKey(a.Ident, b.Ident) })
	slices.SortFunc(d.Enums, func(a, b *Enum) int { return byKey(a.Ident, b.Ident) })
	slices.SortFunc(d.Opaques, func(a, b *Opaque) int { return byKey(a.Ident, b.Ident) })
	d.records = make(map[types.TypeID]*Record, len(d.Records))
	for _, r := range d.Records {
		d.records[r.Type] = r
	}
	d.enums = make(map[types.TypeID]*Enum, len(d.Enums))
	for _, e := range d.Enums {
		d.enums[e.Type] = e
	}
	d.opaques = make(map[types.TypeID]*Opaque, len(d.Opaques))
	for _, o := range d.Opaques {
		d.opaques[o.Type] = o
	}
	diag.SortDiagnostics(d.Diagnostics)
}

func (l *lowerer) fail(code diag.Code, construct, format string, args ...any) *LoweringError {
	return &LoweringError{Code: code, Item: l.item, Construct: construct, Detail: fmt.Sprintf(format, args...)}
}

func (l *lowerer) lowerFunc(it *hir.Item) (*Func, error) {
	f := it.Func
	l.item = it.Path.String()
	fn := &Func{
		Crate:  it.Path.Crate,
		Name:   it.Name,
		Path:   it.Path.String(),
		Source: it.Path,
		Mode:   f.Mode,
	}
	var self *hir.Item
	if f.Owner != nil {
		self = l.pack.Item(*f.Owner)
		if self == nil {
			return nil, l.fail(diag.LowInvariant, f.Owner.String(), "method owner vanished")
		}
		fn.Path = f.Owner.String() + "::" + it.Name
	}
	e := newEnv(it.Path.Scope(), nil, nil, f.Generics, self)

	if self != nil {
		owner, err := l.lowerItem(e, self, nil, self.Name)
		if err != nil {
			return nil, err
		}
		fn.Owner = owner.id
		if f.Receiver != raw.RecvNone {
			recv := owner
			switch f.Receiver {
			case raw.RecvValue:
				fn.Receiver = RecvValue
			case raw.RecvRef, raw.RecvRefMut:
				fn.Receiver = RecvRef
				if owner.own != Handle {
					if f.Receiver == raw.RecvRefMut {
						return nil, l.fail(diag.LowConflictingOwnership, string(f.Receiver), "&mut self requires an opaque owner")
					}
					recv.own = Borrowed
				}
				recv.native = string(f.Receiver)[:len(f.Receiver)-len("self")] + owner.native
			}
			fn.Params = append(fn.Params, Param{Name: "that", Value: recv.value()})
		}
	}

	for _, p := range f.Params {
		v, err := l.lowerType(e, p.Type)
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, Param{Name: p.Name, Value: v.value()})
	}

	fn.Ret = Value{Type: l.in.Builtins().Unit, Native: "()"}
	if f.Ret != nil {
		v, err := l.lowerType(e, f.Ret)
		if err != nil {
			return nil, err
		}
		fn.Ret = v.value()
	}
	if f.Fallible {
		errVal := Value{Type: l.in.Builtins().String, Native: "String"}
		if f.Err != nil && !isOpaqueError(f.Err) {
			v, err := l.lowerType(e, f.Err)
			if err != nil {
				return nil, err
			}
			errVal = v.value()
		}
		fn.Err = &errVal
	}
	return fn, nil
}

// isOpaqueError reports error types that cross the boundary as their
// display string, such as anyhow::Error.
func isOpaqueError(te *raw.TypeExpr) bool {
	if te.Kind != raw.TypePath {
		return false
	}
	names := te.Path.Names()
	return len(names) == 2 && names[0] == "anyhow" && names[1] == "Error"
}
