package hir

import (
	"slices"

	"bridgegen/internal/diag"
	"bridgegen/internal/raw"
)

// Reexport is a `use` edge. It is resolved by name on demand; Target and
// External are filled by validation for primary crates.
type Reexport struct {
	Decl raw.UseDecl
	Vis  Vis
	// Target is the canonical path the edge resolves to, when it is an item.
	Target *ItemPath
	// External marks edges into crates outside the pack.
	External bool
}

// Module owns its items in declaration order.
type Module struct {
	Crate    string
	Path     string // dotted, "" for the crate root
	Vis      Vis    // effective
	Items    []*Item
	Children map[string]string // segment -> module path
	// Reexports holds pub and pub(crate) use edges, Imports the private ones.
	Reexports []Reexport
	Imports   []Reexport

	byName map[itemKey]*Item
}

type itemKey struct {
	owner string
	name  string
	ns    namespace
}

// Ref returns the module's reference.
func (m *Module) Ref() ModuleRef { return ModuleRef{Crate: m.Crate, Module: m.Path} }

// Type finds a struct, enum or alias by name.
func (m *Module) Type(name string) *Item { return m.byName[itemKey{name: name, ns: nsType}] }

// Func finds a free function by name.
func (m *Module) Func(name string) *Item { return m.byName[itemKey{name: name, ns: nsValue}] }

// Method finds a method of owner declared in this module.
func (m *Module) Method(owner, name string) *Item {
	return m.byName[itemKey{owner: owner, name: name, ns: nsValue}]
}

// Crate is one resolved crate.
type Crate struct {
	Name    string
	Primary bool
	Modules map[string]*Module
	// Order lists module paths in walk order (parents before children,
	// declaration order among siblings).
	Order []string
}

// Module returns the module at the dotted path.
func (c *Crate) Module(path string) *Module { return c.Modules[path] }

// Pack is the resolved HIR for one generation run.
type Pack struct {
	crates        map[string]*Crate
	names         []string
	table         *Table
	mirrorTargets map[ItemPath]bool
	config        Config
	diags         *diag.Bag
}

// Crates returns all crates sorted by name.
func (p *Pack) Crates() []*Crate {
	out := make([]*Crate, len(p.names))
	for i, n := range p.names {
		out[i] = p.crates[n]
	}
	return out
}

// Crate returns the crate by name, or nil.
func (p *Pack) Crate(name string) *Crate { return p.crates[name] }

// Config returns the configuration the pack was built with.
func (p *Pack) Config() Config { return p.config }

// Diagnostics returns the non-fatal findings of Build, sorted.
func (p *Pack) Diagnostics() []diag.Diagnostic { return p.diags.Items() }

// IsMirrorTarget reports whether some item mirrors path.
func (p *Pack) IsMirrorTarget(path ItemPath) bool { return p.mirrorTargets[path] }

// Item returns the item at a canonical path.
func (p *Pack) Item(path ItemPath) *Item {
	c := p.crates[path.Crate]
	if c == nil {
		return nil
	}
	m := c.Modules[path.Module]
	if m == nil {
		return nil
	}
	if path.Owner != "" {
		return m.Method(path.Owner, path.Name)
	}
	if it := m.Type(path.Name); it != nil {
		return it
	}
	return m.Func(path.Name)
}

// BridgedFunctions returns every bridged function across primary crates,
// crate by crate in walk order.
func (p *Pack) BridgedFunctions() []*Item {
	var out []*Item
	for _, c := range p.Crates() {
		if !c.Primary {
			continue
		}
		for _, path := range c.Order {
			for _, it := range c.Modules[path].Items {
				if it.Kind == KindFunction && it.Bridged {
					out = append(out, it)
				}
			}
		}
	}
	return out
}

// Methods returns the methods declared for owner anywhere in its crate.
func (p *Pack) Methods(owner ItemPath) []*Item {
	c := p.crates[owner.Crate]
	if c == nil {
		return nil
	}
	var out []*Item
	for _, path := range c.Order {
		for _, it := range c.Modules[path].Items {
			if it.Func != nil && it.Func.Owner != nil && *it.Func.Owner == owner {
				out = append(out, it)
			}
		}
	}
	return out
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
