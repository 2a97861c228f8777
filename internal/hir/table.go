package hir

import (
	"errors"
	"fmt"
	"strings"

	"bridgegen/internal/project"
	"bridgegen/internal/raw"
)

type namespace uint8

const (
	nsType namespace = iota // struct, enum, alias, mod
	nsValue                 // fn
)

func (n namespace) String() string {
	if n == nsValue {
		return "value"
	}
	return "type"
}

func namespaceOf(k raw.ItemKind) (namespace, bool) {
	switch k {
	case raw.ItemStruct, raw.ItemEnum, raw.ItemType, raw.ItemMod:
		return nsType, true
	case raw.ItemFn:
		return nsValue, true
	}
	return 0, false
}

// tableEntry is what the Table knows about a name before items are built.
type tableEntry struct {
	kind     raw.ItemKind
	declared Vis
	vis      Vis    // effective
	child    string // module path, for mod entries
	ignored  bool
	// bridge is set when the item carries #[bridge] without ignore.
	bridge bool
}

type useEdge struct {
	decl raw.UseDecl
	vis  Vis
}

type modTable struct {
	crate  string
	path   string
	parent string
	root   bool
	vis    Vis
	names  [2]map[string]tableEntry
	uses   []useEdge
	globs  []useEdge
}

type crateTable struct {
	name    string
	modules map[string]*modTable
}

// Table is the read-only crate lookup table built before the module walk.
// Workers share it without locking.
type Table struct {
	crates map[string]*crateTable
}

// NewTable indexes every crate of the pack. The first declaration of a name
// wins; duplicates are reported by the module walk.
func NewTable(pack *raw.Pack) *Table {
	t := &Table{crates: make(map[string]*crateTable, len(pack.Crates))}
	for _, name := range pack.Names() {
		ct := &crateTable{name: name, modules: make(map[string]*modTable)}
		root := newModTable(name, "", "", true, VisPublic)
		ct.modules[""] = root
		indexItems(ct, root, pack.Crates[name].Items)
		t.crates[name] = ct
	}
	return t
}

func newModTable(crate, path, parent string, root bool, vis Vis) *modTable {
	return &modTable{
		crate:  crate,
		path:   path,
		parent: parent,
		root:   root,
		vis:    vis,
		names:  [2]map[string]tableEntry{make(map[string]tableEntry), make(map[string]tableEntry)},
	}
}

func joinModPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func indexItems(ct *crateTable, mt *modTable, items []raw.Item) {
	for i := range items {
		it := &items[i]
		if it.Kind == raw.ItemUse {
			vis := ParseVis(it.Vis)
			for _, d := range it.Use {
				if d.Glob {
					mt.globs = append(mt.globs, useEdge{decl: d, vis: vis})
				} else {
					mt.uses = append(mt.uses, useEdge{decl: d, vis: vis})
				}
			}
			continue
		}
		ns, ok := namespaceOf(it.Kind)
		if !ok || it.Name == "" {
			continue
		}
		if _, dup := mt.names[ns][it.Name]; dup {
			continue
		}
		declared := ParseVis(it.Vis)
		opts := it.Bridge()
		e := tableEntry{
			kind:     it.Kind,
			declared: declared,
			vis:      minVis(declared, mt.vis),
			ignored:  opts.Ignore,
			bridge:   opts.Present && !opts.Ignore,
		}
		if it.Kind == raw.ItemMod {
			if it.Name == project.ThirdPartyDirName {
				continue
			}
			e.child = joinModPath(mt.path, it.Name)
			if _, exists := ct.modules[e.child]; !exists {
				child := newModTable(ct.name, e.child, mt.path, false, e.vis)
				ct.modules[e.child] = child
				indexItems(ct, child, it.Items)
			}
		}
		mt.names[ns][it.Name] = e
	}
}

func (t *Table) module(ref ModuleRef) *modTable {
	ct := t.crates[ref.Crate]
	if ct == nil {
		return nil
	}
	return ct.modules[ref.Module]
}

// HasCrate reports whether name is a crate of the pack.
func (t *Table) HasCrate(name string) bool {
	_, ok := t.crates[name]
	return ok
}

// canSee applies Rust privacy: private names are visible inside the
// declaring module and its descendants.
func canSee(from ModuleRef, owner *modTable, vis Vis) bool {
	switch vis {
	case VisPublic:
		return true
	case VisCrate:
		return from.Crate == owner.crate
	}
	if from.Crate != owner.crate {
		return false
	}
	return owner.path == "" || from.Module == owner.path || strings.HasPrefix(from.Module, owner.path+".")
}

// target is the result of resolving a path through the Table.
type target struct {
	external bool
	extPath  string

	isModule bool
	module   ModuleRef // the module itself, or the module owning the entry

	name  string
	entry tableEntry
	// assoc is set when the path continues past a type: Owner::name.
	assoc string
}

func (tg target) itemPath() ItemPath {
	if tg.assoc != "" {
		return ItemPath{Crate: tg.module.Crate, Module: tg.module.Module, Owner: tg.name, Name: tg.assoc}
	}
	return ItemPath{Crate: tg.module.Crate, Module: tg.module.Module, Name: tg.name}
}

type activeKey struct {
	crate, module, name string
	ns                  namespace
}

// resolver walks the Table. It is single-use per top-level lookup.
type resolver struct {
	t      *Table
	active map[activeKey]bool
	// anyVis skips privacy checks; mirror targets and impl self types may
	// name items the requester could not otherwise see.
	anyVis bool
}

func newResolver(t *Table) *resolver {
	return &resolver{t: t, active: make(map[activeKey]bool)}
}

type lookupErr struct {
	kind   error // ErrNotFound, ErrPrivate, ErrCyclicReexport
	detail string
}

func (e *lookupErr) Error() string { return e.detail }
func (e *lookupErr) Unwrap() error { return e.kind }

func notFound(format string, args ...any) error {
	return &lookupErr{kind: ErrNotFound, detail: fmt.Sprintf(format, args...)}
}

// resolvePath resolves segs as seen from module `from`. viaUse marks paths
// that come from a use edge, which makes revisiting an active name a cycle.
func (r *resolver) resolvePath(from ModuleRef, global bool, segs []string, ns namespace, viaUse bool) (target, error) {
	if len(segs) == 0 {
		return target{}, notFound("empty path")
	}
	cur := from
	i := 0
	switch {
	case global:
		if !r.t.HasCrate(segs[0]) {
			return target{external: true, extPath: "::" + strings.Join(segs, "::")}, nil
		}
		cur = ModuleRef{Crate: segs[0]}
		i = 1
	case segs[0] == "crate":
		cur = ModuleRef{Crate: from.Crate}
		i = 1
	case segs[0] == "self":
		i = 1
	case segs[0] == "super":
		for i < len(segs) && segs[i] == "super" {
			mt := r.t.module(cur)
			if mt == nil || mt.root {
				return target{}, notFound("super of crate root in %s", from)
			}
			cur = ModuleRef{Crate: cur.Crate, Module: mt.parent}
			i++
		}
	default:
		// a local name shadows a crate of the same name
		switch {
		case r.t.boundLocally(cur, segs[0], firstNs(segs, ns)):
		case r.t.HasCrate(segs[0]):
			cur = ModuleRef{Crate: segs[0]}
			i = 1
		case len(segs) > 1 || viaUse:
			return target{external: true, extPath: strings.Join(segs, "::")}, nil
		}
	}
	if i == len(segs) {
		if r.t.module(cur) == nil {
			return target{}, notFound("module %s", cur)
		}
		return target{isModule: true, module: cur}, nil
	}
	for j := i; j < len(segs); j++ {
		last := j == len(segs)-1
		want := nsType
		if last {
			want = ns
		}
		mt := r.t.module(cur)
		if mt == nil {
			return target{}, notFound("module %s", cur)
		}
		tg, err := r.resolveName(mt, segs[j], want, from, viaUse)
		if err != nil {
			return target{}, err
		}
		if tg.external {
			rest := segs[j+1:]
			if len(rest) > 0 {
				tg.extPath += "::" + strings.Join(rest, "::")
			}
			return tg, nil
		}
		if last {
			return tg, nil
		}
		switch {
		case tg.isModule:
			cur = tg.module
		case tg.entry.kind == raw.ItemMod:
			cur = ModuleRef{Crate: tg.module.Crate, Module: tg.entry.child}
		case (tg.entry.kind == raw.ItemStruct || tg.entry.kind == raw.ItemEnum) && j+1 == len(segs)-1:
			tg.assoc = segs[j+1]
			return tg, nil
		default:
			return target{}, notFound("%s is not a module", segs[j])
		}
	}
	return target{}, notFound("unreachable")
}

func firstNs(segs []string, ns namespace) namespace {
	if len(segs) == 1 {
		return ns
	}
	return nsType
}

// boundLocally reports whether name is declared or imported in module ref.
// A `use name;` edge does not count: it names a crate.
func (t *Table) boundLocally(ref ModuleRef, name string, ns namespace) bool {
	mt := t.module(ref)
	if mt == nil {
		return false
	}
	if _, ok := mt.names[ns][name]; ok {
		return true
	}
	for _, u := range mt.uses {
		if u.decl.Name() == name && !(len(u.decl.Path) == 1 && u.decl.Path[0] == name) {
			return true
		}
	}
	return false
}

func (r *resolver) visible(from ModuleRef, owner *modTable, vis Vis) bool {
	return r.anyVis || canSee(from, owner, vis)
}

// resolveName finds name in module mt: local items, then explicit use
// edges, then glob imports.
func (r *resolver) resolveName(mt *modTable, name string, ns namespace, from ModuleRef, viaUse bool) (target, error) {
	key := activeKey{crate: mt.crate, module: mt.path, name: name, ns: ns}
	if r.active[key] {
		if viaUse {
			return target{}, &lookupErr{kind: ErrCyclicReexport, detail: fmt.Sprintf("%s::%s", ModuleRef{Crate: mt.crate, Module: mt.path}, name)}
		}
		return target{}, notFound("%s", name)
	}
	r.active[key] = true
	defer delete(r.active, key)

	here := ModuleRef{Crate: mt.crate, Module: mt.path}
	if e, ok := mt.names[ns][name]; ok {
		if !r.visible(from, mt, e.declared) {
			return target{}, &lookupErr{kind: ErrPrivate, detail: fmt.Sprintf("%s::%s is private", here, name)}
		}
		if e.kind == raw.ItemMod {
			return target{isModule: true, module: ModuleRef{Crate: mt.crate, Module: e.child}, name: name, entry: e}, nil
		}
		return target{module: here, name: name, entry: e}, nil
	}

	var firstErr error
	for _, u := range mt.uses {
		if u.decl.Name() != name || !r.visible(from, mt, u.vis) {
			continue
		}
		tg, err := r.resolvePath(here, false, u.decl.Path, ns, true)
		if err == nil {
			return tg, nil
		}
		var le *lookupErr
		if errors.As(err, &le) && le.kind == ErrNotFound {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return target{}, err
	}
	for _, g := range mt.globs {
		if !r.visible(from, mt, g.vis) {
			continue
		}
		src, err := r.resolvePath(here, false, g.decl.Path, nsType, viaUse)
		if err != nil {
			var le *lookupErr
			if errors.As(err, &le) && le.kind == ErrCyclicReexport {
				return target{}, err
			}
			continue
		}
		if src.external || !src.isModule {
			continue
		}
		smt := r.t.module(src.module)
		if smt == nil {
			continue
		}
		// glob imports only bring in names visible to the importing module
		tg, err := r.resolveName(smt, name, ns, here, false)
		if err == nil {
			return tg, nil
		}
		var le *lookupErr
		if errors.As(err, &le) && le.kind == ErrCyclicReexport {
			return target{}, err
		}
	}
	if firstErr != nil {
		return target{}, firstErr
	}
	return target{}, notFound("%s::%s", here, name)
}
