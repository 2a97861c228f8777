package hir

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"bridgegen/internal/diag"
	"bridgegen/internal/project"
	"bridgegen/internal/raw"
	"bridgegen/internal/trace"
)

// Config selects which crates are bridged and where.
type Config struct {
	Primary      []string
	Dependencies []string
	// BridgeModules are crate-qualified dotted module paths, "app::api.inner".
	BridgeModules []string
	// Jobs bounds the per-crate walk; 0 means GOMAXPROCS.
	Jobs int
}

// ConfigFromProject derives the resolver configuration from a manifest.
func ConfigFromProject(cfg *project.Config, jobs int) Config {
	return Config{
		Primary:       cfg.Primary(),
		Dependencies:  cfg.Dependencies(),
		BridgeModules: cfg.BridgeModules(),
		Jobs:          jobs,
	}
}

// maxDiagnostics bounds the non-fatal findings kept per crate.
const maxDiagnostics = 4096

type crateResult struct {
	crate   *Crate
	bag     *diag.Bag
	mirrors []ItemPath
}

// Build resolves pack into a Pack. Crates that appear in the pack but in
// neither Config list are treated as dependencies.
func Build(ctx context.Context, cfg Config, pack *raw.Pack) (*Pack, error) {
	if pack == nil {
		pack = raw.NewPack()
	}
	primary := make(map[string]bool, len(cfg.Primary))
	for _, name := range cfg.Primary {
		if pack.Crates[name] == nil {
			return nil, resolutionErr(diag.ResUnknownCrate, name, "", "", "primary crate is missing from the raw pack")
		}
		primary[name] = true
	}
	bags := diag.NewBag(maxDiagnostics)
	for _, name := range cfg.Dependencies {
		if pack.Crates[name] == nil {
			bags.Add(diag.New(diag.SevWarning, diag.ResUnknownCrate, diag.Location{Crate: name},
				"dependency crate is missing from the raw pack; its paths are treated as external"))
		}
	}

	span, _ := trace.StartSpan(ctx, trace.ScopeStage, "hir_table")
	table := NewTable(pack)
	span.End(fmt.Sprintf("crates=%d", len(table.crates)))

	names := pack.Names()
	results := make([]crateResult, len(names))
	errs := make([]error, len(names))
	jobs := cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cspan, _ := trace.StartSpan(gctx, trace.ScopeCrate, "hir_walk")
			cspan.WithExtra("crate", name)
			w := newWalker(table, cfg, name, primary[name])
			err := w.walk(pack.Crates[name])
			if err != nil {
				errs[i] = err
				cspan.End("failed")
				return err
			}
			results[i] = crateResult{crate: w.c, bag: w.bag, mirrors: w.mirrors}
			cspan.End(fmt.Sprintf("modules=%d", len(w.c.Order)))
			return nil
		})
	}
	waitErr := g.Wait()
	// report the failure of the first crate in name order, not the first to finish
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, err
		}
	}
	if waitErr != nil {
		return nil, waitErr
	}

	p := &Pack{
		crates:        make(map[string]*Crate, len(names)),
		names:         names,
		table:         table,
		mirrorTargets: make(map[ItemPath]bool),
		config:        cfg,
		diags:         bags,
	}
	for _, res := range results {
		p.crates[res.crate.Name] = res.crate
		p.diags.Merge(res.bag)
		for _, m := range res.mirrors {
			p.mirrorTargets[m] = true
		}
	}

	vspan, _ := trace.StartSpan(ctx, trace.ScopeStage, "hir_validate")
	for _, name := range names {
		if err := p.validateReexports(p.crates[name], primary[name]); err != nil {
			vspan.End("failed")
			return nil, err
		}
	}
	vspan.End("")
	for _, name := range names {
		p.settleBridged(p.crates[name])
	}
	p.diags.Sort()
	p.diags.Dedup()
	return p, nil
}

// walker builds one crate. It reads only the shared Table.
type walker struct {
	t          *Table
	crate      string
	primary    bool
	bridgeMods []string
	c          *Crate
	bag        *diag.Bag
	rep        diag.Reporter
	mirrors    []ItemPath
}

func newWalker(t *Table, cfg Config, crate string, primary bool) *walker {
	w := &walker{
		t:       t,
		crate:   crate,
		primary: primary,
		c:       &Crate{Name: crate, Primary: primary, Modules: make(map[string]*Module)},
		bag:     diag.NewBag(maxDiagnostics),
	}
	w.rep = diag.NewDedupReporter(diag.BagReporter{Bag: w.bag})
	for _, bm := range cfg.BridgeModules {
		c, mod, ok := strings.Cut(bm, "::")
		if ok && c == crate {
			w.bridgeMods = append(w.bridgeMods, project.NormalizeModulePath(mod))
		}
	}
	return w
}

func (w *walker) walk(f *raw.File) error {
	return w.walkModule("", VisPublic, f.Items)
}

func (w *walker) inBridgeModule(path string) bool {
	for _, bm := range w.bridgeMods {
		if path == bm || strings.HasPrefix(path, bm+".") {
			return true
		}
	}
	return false
}

func (w *walker) info(code diag.Code, module, item, format string, args ...any) {
	diag.ReportInfo(w.rep, code, diag.Location{Crate: w.crate, Module: module, Item: item}, fmt.Sprintf(format, args...)).Emit()
}

func (w *walker) walkModule(path string, vis Vis, items []raw.Item) error {
	m := &Module{
		Crate:    w.crate,
		Path:     path,
		Vis:      vis,
		Children: make(map[string]string),
		byName:   make(map[itemKey]*Item),
	}
	w.c.Modules[path] = m
	w.c.Order = append(w.c.Order, path)

	declared := make(map[itemKey]int) // key -> line of first declaration
	claim := func(name string, ns namespace, line int) error {
		key := itemKey{name: name, ns: ns}
		if first, dup := declared[key]; dup {
			return resolutionErr(diag.ResDuplicateItem, w.crate, path, name,
				"%s namespace already declares %q (line %d)", ns, name, first)
		}
		declared[key] = line
		return nil
	}

	var impls []*raw.Item
	for i := range items {
		it := &items[i]
		switch it.Kind {
		case raw.ItemUse:
			v := ParseVis(it.Vis)
			for _, d := range it.Use {
				re := Reexport{Decl: d, Vis: v}
				if v > VisPrivate {
					m.Reexports = append(m.Reexports, re)
				} else {
					m.Imports = append(m.Imports, re)
				}
			}
		case raw.ItemMod:
			if it.Name == project.ThirdPartyDirName {
				w.info(diag.ResThirdPartySkipped, path, it.Name, "vendored module skipped")
				continue
			}
			if err := claim(it.Name, nsType, it.Line); err != nil {
				return err
			}
			child := joinModPath(path, it.Name)
			m.Children[it.Name] = child
			if err := w.walkModule(child, minVis(ParseVis(it.Vis), vis), it.Items); err != nil {
				return err
			}
		case raw.ItemFn, raw.ItemStruct, raw.ItemEnum, raw.ItemType:
			ns, _ := namespaceOf(it.Kind)
			if err := claim(it.Name, ns, it.Line); err != nil {
				return err
			}
			if it.Bridge().Ignore {
				w.info(diag.ResIgnoredItem, path, it.Name, "%s ignored by #[bridge(ignore)]", it.Kind)
				continue
			}
			item, err := w.newItem(m, it)
			if err != nil {
				return err
			}
			m.Items = append(m.Items, item)
			m.byName[itemKey{name: item.Name, ns: ns}] = item
		case raw.ItemImpl:
			impls = append(impls, it)
		default:
			w.info(diag.ResIgnoredItem, path, it.Name, "%s items are not bridged", it.Kind)
		}
	}
	for _, it := range impls {
		if err := w.implMethods(m, it); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) newItem(m *Module, it *raw.Item) (*Item, error) {
	declared := ParseVis(it.Vis)
	item := &Item{
		Name:        it.Name,
		Path:        ItemPath{Crate: w.crate, Module: m.Path, Name: it.Name},
		DeclaredVis: declared,
		Vis:         minVis(declared, m.Vis),
		Attrs:       it.Attrs,
		Options:     it.Bridge(),
		Line:        it.Line,
	}
	switch it.Kind {
	case raw.ItemFn:
		item.Kind = KindFunction
		item.Func = newFunction(it, nil)
		item.selected = w.primary && (w.inBridgeModule(m.Path) || item.Options.Present)
	case raw.ItemStruct, raw.ItemEnum:
		item.Kind = KindStructOrEnum
		data, err := w.newData(m, it)
		if err != nil {
			return nil, err
		}
		item.Data = data
		if err := w.linkMirror(m, item); err != nil {
			return nil, err
		}
	case raw.ItemType:
		item.Kind = KindTypeAlias
		item.Alias = &TypeAlias{Generics: it.Generics, Target: it.Target}
	}
	return item, nil
}

func newFunction(it *raw.Item, owner *ItemPath) *Function {
	sig := it.Fn
	f := &Function{Generics: it.Generics, Owner: owner, Receiver: sig.Receiver}
	for _, p := range sig.Params {
		f.Params = append(f.Params, Param{Name: p.Name, Type: p.Type})
	}
	switch {
	case sig.Async:
		f.Mode = ExecAsync
	case it.Bridge().Sync:
		f.Mode = ExecSync
	}
	ret := sig.Ret
	if ret != nil && ret.Kind == raw.TypePath {
		last := ret.Path.Last()
		if last.Name == "Result" && len(last.Args) >= 1 && len(last.Args) <= 2 {
			f.Fallible = true
			ret = last.Args[0]
			if len(last.Args) == 2 {
				f.Err = last.Args[1]
			}
		}
	}
	if ret != nil && !ret.IsUnit() {
		f.Ret = ret
	}
	return f
}

func (w *walker) newData(m *Module, it *raw.Item) (*StructOrEnum, error) {
	dupMember := func(format string, args ...any) error {
		return resolutionErr(diag.ResDuplicateMember, w.crate, m.Path, it.Name, format, args...)
	}
	data := &StructOrEnum{IsEnum: it.Kind == raw.ItemEnum, Generics: it.Generics}
	if !data.IsEnum {
		data.Shape = shapeOf(it.Shape, it.Fields)
		fields, dup := convertFields(it.Fields)
		if dup != "" {
			return nil, dupMember("field %q declared twice", dup)
		}
		data.Fields = fields
		return data, nil
	}
	seen := make(map[string]bool, len(it.Variants))
	for _, v := range it.Variants {
		if seen[v.Name] {
			return nil, dupMember("variant %q declared twice", v.Name)
		}
		seen[v.Name] = true
		fields, dup := convertFields(v.Fields)
		if dup != "" {
			return nil, dupMember("field %q of variant %s declared twice", dup, v.Name)
		}
		data.Variants = append(data.Variants, Variant{Name: v.Name, Shape: shapeOf(v.Shape, v.Fields), Fields: fields})
	}
	return data, nil
}

// convertFields returns the fields and the first duplicated name, if any.
func convertFields(in []raw.Field) ([]Field, string) {
	out := make([]Field, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, f := range in {
		field := Field{Name: f.Name, Vis: ParseVis(f.Vis), Type: f.Type}
		if f.Name == "" {
			field.Name = strconv.Itoa(i)
			field.Positional = true
		}
		if seen[field.Name] {
			return nil, field.Name
		}
		seen[field.Name] = true
		out = append(out, field)
	}
	return out, ""
}

// linkMirror resolves #[bridge(mirror(...))]. Every listed target must be a
// struct or enum of the pack; the first one becomes Item.Mirror.
func (w *walker) linkMirror(m *Module, item *Item) error {
	for _, text := range item.Options.Mirrors {
		fail := func(detail string) error {
			return resolutionErr(diag.ResUnknownMirrorTarget, w.crate, m.Path, item.Name, "mirror(%s): %s", text, detail)
		}
		te, err := raw.ParseType(text)
		if err != nil || te.Kind != raw.TypePath {
			return fail("not a path")
		}
		r := newResolver(w.t)
		r.anyVis = true
		tg, err := r.resolvePath(m.Ref(), te.Path.Global, te.Path.Names(), nsType, false)
		switch {
		case err != nil:
			return fail(err.Error())
		case tg.external:
			return fail("target is outside the crate pack")
		case tg.isModule || tg.assoc != "" || (tg.entry.kind != raw.ItemStruct && tg.entry.kind != raw.ItemEnum):
			return fail("target is not a struct or enum")
		}
		target := tg.itemPath()
		if item.Mirror == nil {
			item.Mirror = &target
			item.MirrorText = text
		}
		w.mirrors = append(w.mirrors, target)
	}
	return nil
}

func (w *walker) implMethods(m *Module, impl *raw.Item) error {
	if impl.Impl == nil {
		return nil
	}
	self := impl.Impl.Self
	selfText := "<unknown>"
	if self != nil {
		selfText = self.String()
	}
	if impl.Impl.Trait != "" {
		w.info(diag.ResIgnoredItem, m.Path, selfText, "trait impl %s is not bridged", impl.Impl.Trait)
		return nil
	}
	if impl.Bridge().Ignore {
		w.info(diag.ResIgnoredItem, m.Path, selfText, "impl ignored by #[bridge(ignore)]")
		return nil
	}
	if self == nil || self.Kind != raw.TypePath {
		w.info(diag.ResMethodOwnerMissing, m.Path, selfText, "impl self type is not a path")
		return nil
	}
	r := newResolver(w.t)
	r.anyVis = true
	tg, err := r.resolvePath(m.Ref(), self.Path.Global, self.Path.Names(), nsType, false)
	if err != nil || tg.external || tg.isModule || tg.assoc != "" ||
		tg.module.Crate != w.crate || (tg.entry.kind != raw.ItemStruct && tg.entry.kind != raw.ItemEnum) {
		w.info(diag.ResMethodOwnerMissing, m.Path, selfText, "impl target is not a struct or enum of this crate")
		return nil
	}
	owner := tg.itemPath()
	implBridged := w.inBridgeModule(m.Path) || tg.entry.bridge

	seen := make(map[string]bool)
	for i := range impl.Impl.Items {
		it := &impl.Impl.Items[i]
		if it.Kind != raw.ItemFn {
			w.info(diag.ResIgnoredItem, m.Path, owner.Name+"::"+it.Name, "associated %s items are not bridged", it.Kind)
			continue
		}
		if it.Bridge().Ignore {
			w.info(diag.ResIgnoredItem, m.Path, owner.Name+"::"+it.Name, "method ignored by #[bridge(ignore)]")
			continue
		}
		key := itemKey{owner: owner.Name, name: it.Name, ns: nsValue}
		if seen[it.Name] || m.byName[key] != nil {
			return resolutionErr(diag.ResDuplicateItem, w.crate, m.Path, owner.Name+"::"+it.Name, "method declared twice")
		}
		seen[it.Name] = true
		declared := ParseVis(it.Vis)
		ownerCopy := owner
		item := &Item{
			Kind:        KindFunction,
			Name:        it.Name,
			Path:        ItemPath{Crate: w.crate, Module: m.Path, Owner: owner.Name, Name: it.Name},
			DeclaredVis: declared,
			Vis:         minVis(declared, tg.entry.vis),
			Attrs:       it.Attrs,
			Options:     it.Bridge(),
			Line:        it.Line,
			Func:        newFunction(it, &ownerCopy),
		}
		item.selected = w.primary && (implBridged || item.Options.Present)
		m.Items = append(m.Items, item)
		m.byName[key] = item
	}
	return nil
}

// validateReexports resolves every use edge of c. In strict mode public
// and crate-visible edges must resolve; private imports and dependency
// edges are filled in when they can be.
func (p *Pack) validateReexports(c *Crate, strict bool) error {
	for _, path := range c.Order {
		m := c.Modules[path]
		for i := range m.Reexports {
			if err := p.resolveEdge(m, &m.Reexports[i]); err != nil && strict {
				return err
			}
		}
		for i := range m.Imports {
			_ = p.resolveEdge(m, &m.Imports[i])
		}
	}
	return nil
}

// settleBridged marks the selected functions that ended up public. A
// selected free function that stayed private is reported.
func (p *Pack) settleBridged(c *Crate) {
	for _, path := range c.Order {
		for _, it := range c.Modules[path].Items {
			if it.Kind != KindFunction || !it.selected {
				continue
			}
			it.Bridged = it.Vis == VisPublic
			if !it.Bridged && it.Path.Owner == "" {
				loc := diag.Location{Crate: c.Name, Module: path, Item: it.Name}
				p.diags.Add(diag.New(diag.SevInfo, diag.ResUnbridgedItem, loc,
					fmt.Sprintf("fn is %s and not reachable from outside the crate", it.Vis)))
			}
		}
	}
}

// raise widens the effective visibility of the item an edge re-exports,
// so `pub use inner::Item` from a public module makes Item reachable.
func (p *Pack) raise(m *Module, re *Reexport) {
	if re.Target == nil {
		return
	}
	it := p.Item(*re.Target)
	if it == nil {
		return
	}
	v := minVis(re.Vis, m.Vis)
	if v <= it.Vis {
		return
	}
	it.Vis = minVis(v, it.DeclaredVis)
	if it.Kind == KindStructOrEnum {
		for _, meth := range p.Methods(it.Path) {
			meth.Vis = minVis(meth.DeclaredVis, it.Vis)
		}
	}
}

func (p *Pack) resolveEdge(m *Module, re *Reexport) error {
	d := re.Decl
	fail := func(code diag.Code, err error) error {
		return resolutionErr(code, m.Crate, m.Path, d.String(), "%v", err)
	}
	if d.Glob {
		r := newResolver(p.table)
		tg, err := r.resolvePath(m.Ref(), false, d.Path, nsType, true)
		switch {
		case errors.Is(err, ErrCyclicReexport):
			return fail(diag.ResCyclicReexport, err)
		case err != nil:
			return fail(diag.ResUnknownReexportTarget, err)
		case tg.external:
			re.External = true
		}
		return nil
	}

	mt := p.table.module(m.Ref())
	var firstErr error
	for _, ns := range []namespace{nsType, nsValue} {
		r := newResolver(p.table)
		// the edge's own binding is active so a chain back to it is a cycle
		r.active[activeKey{crate: mt.crate, module: mt.path, name: d.Name(), ns: ns}] = true
		tg, err := r.resolvePath(m.Ref(), false, d.Path, ns, true)
		if err != nil {
			if errors.Is(err, ErrCyclicReexport) {
				return fail(diag.ResCyclicReexport, err)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if tg.external {
			re.External = true
			return nil
		}
		if !tg.isModule {
			target := tg.itemPath()
			re.Target = &target
			p.raise(m, re)
		}
		return nil
	}
	return fail(diag.ResUnknownReexportTarget, firstErr)
}

// Lookup resolves a `crate::path::Item` string as seen from that crate's
// root module. Methods are addressed as `crate::Type::method`.
func (p *Pack) Lookup(path string) (*Item, error) {
	segs := strings.Split(strings.TrimPrefix(path, "::"), "::")
	if len(segs) < 2 || !p.table.HasCrate(segs[0]) {
		return nil, notFound("%s", path)
	}
	r := newResolver(p.table)
	var tg target
	var err error
	for _, ns := range []namespace{nsType, nsValue} {
		tg, err = r.resolvePath(ModuleRef{Crate: segs[0]}, true, segs, ns, false)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return p.itemAt(tg, path)
}

// Resolution is the outcome of ResolveType.
type Resolution struct {
	// Item is the resolved struct, enum or alias; nil for external paths.
	Item *Item
	// External is the path text for types outside the crate pack.
	External string
}

// ResolveType resolves a type path written in module scope. Private items
// are reported as ErrPrivate unless they are mirror targets.
func (p *Pack) ResolveType(scope ModuleRef, path raw.Path) (Resolution, error) {
	r := newResolver(p.table)
	tg, err := r.resolvePath(scope, path.Global, path.Names(), nsType, false)
	if err != nil {
		return Resolution{}, err
	}
	if tg.external {
		return Resolution{External: tg.extPath}, nil
	}
	it, err := p.itemAt(tg, path.String())
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Item: it}, nil
}

func (p *Pack) itemAt(tg target, text string) (*Item, error) {
	if tg.external || tg.isModule {
		return nil, notFound("%s does not name an item", text)
	}
	var it *Item
	if tg.assoc != "" {
		it = p.method(ItemPath{Crate: tg.module.Crate, Module: tg.module.Module, Name: tg.name}, tg.assoc)
	} else {
		it = p.Item(tg.itemPath())
	}
	if it == nil {
		return nil, notFound("%s is not a bridgeable item", text)
	}
	if it.Vis == VisPrivate && !p.mirrorTargets[it.Path] {
		return nil, &lookupErr{kind: ErrPrivate, detail: it.Path.String() + " is private"}
	}
	return it, nil
}

func (p *Pack) method(owner ItemPath, name string) *Item {
	methods := p.Methods(owner)
	i := slices.IndexFunc(methods, func(it *Item) bool { return it.Name == name })
	if i < 0 {
		return nil
	}
	return methods[i]
}
