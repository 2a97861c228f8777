// Package raw holds the unresolved syntax-level model of the native crates.
//
// A raw.Pack is what the external syntax dumper hands back after macro
// expansion: one File per crate, a tree of items that still refer to each
// other by textual paths. Nothing here is resolved; package hir owns that.
package raw

import (
	"slices"
	"strings"
)

// Pack maps crate names to their expanded syntax trees (the raw HIR pack).
type Pack struct {
	Crates map[string]*File
}

// NewPack returns an empty pack.
func NewPack() *Pack {
	return &Pack{Crates: make(map[string]*File)}
}

// Add registers a crate file under its crate name.
func (p *Pack) Add(f *File) {
	if p.Crates == nil {
		p.Crates = make(map[string]*File)
	}
	p.Crates[f.Crate] = f
}

// Names returns crate names in sorted order.
func (p *Pack) Names() []string {
	names := make([]string, 0, len(p.Crates))
	for name := range p.Crates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// File is the root module of one crate.
type File struct {
	Crate string `json:"crate"`
	Items []Item `json:"items"`
}

// ItemKind classifies raw items by the keyword that introduced them.
type ItemKind string

const (
	ItemFn     ItemKind = "fn"
	ItemStruct ItemKind = "struct"
	ItemEnum   ItemKind = "enum"
	ItemType   ItemKind = "type"
	ItemMod    ItemKind = "mod"
	ItemUse    ItemKind = "use"
	ItemImpl   ItemKind = "impl"
	ItemConst  ItemKind = "const"
	ItemStatic ItemKind = "static"
	ItemTrait  ItemKind = "trait"
	ItemMacro  ItemKind = "macro"
	ItemOther  ItemKind = "other"
)

// Vis is the declared visibility exactly as written ("", "pub", "pub(crate)", ...).
type Vis string

// Item is a single declaration inside a module or impl block.
type Item struct {
	Kind     ItemKind  `json:"kind"`
	Name     string    `json:"name,omitempty"`
	Vis      Vis       `json:"vis,omitempty"`
	Attrs    []Attr    `json:"attrs,omitempty"`
	Generics []string  `json:"generics,omitempty"`
	Fn       *FnSig    `json:"fn,omitempty"`
	Shape    Shape     `json:"shape,omitempty"`
	Fields   []Field   `json:"fields,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
	Target   *TypeExpr `json:"target,omitempty"`
	Items    []Item    `json:"items,omitempty"`
	Use      UseTree   `json:"use,omitempty"`
	Impl     *Impl     `json:"impl,omitempty"`
	Line     int       `json:"line,omitempty"`
}

// Attr is an outer attribute, e.g. #[bridge(opaque)] => {Path: "bridge", Args: ["opaque"]}.
type Attr struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

// Shape distinguishes struct and variant bodies.
type Shape string

const (
	ShapeUnit  Shape = "unit"
	ShapeTuple Shape = "tuple"
	ShapeNamed Shape = "named"
)

// Field is a struct or variant field. Name is empty for positional fields.
type Field struct {
	Name  string    `json:"name,omitempty"`
	Vis   Vis       `json:"vis,omitempty"`
	Type  *TypeExpr `json:"type"`
	Attrs []Attr    `json:"attrs,omitempty"`
}

// Variant is one enum variant.
type Variant struct {
	Name   string  `json:"name"`
	Shape  Shape   `json:"shape,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// Receiver is the self parameter of a method.
type Receiver string

const (
	RecvNone   Receiver = ""
	RecvValue  Receiver = "self"
	RecvRef    Receiver = "&self"
	RecvRefMut Receiver = "&mut self"
)

// FnSig is the signature of a free function or method.
type FnSig struct {
	Async    bool      `json:"async,omitempty"`
	Unsafe   bool      `json:"unsafe,omitempty"`
	Receiver Receiver  `json:"receiver,omitempty"`
	Params   []Param   `json:"params,omitempty"`
	Ret      *TypeExpr `json:"ret,omitempty"`
}

// Param is a named function parameter.
type Param struct {
	Name string    `json:"name"`
	Type *TypeExpr `json:"type"`
}

// Impl is an inherent or trait impl block.
type Impl struct {
	Self  *TypeExpr `json:"self"`
	Trait string    `json:"trait,omitempty"`
	Items []Item    `json:"items,omitempty"`
}

// HasAttr reports whether the item carries an attribute with the given path.
func (it *Item) HasAttr(path string) bool {
	for _, a := range it.Attrs {
		if a.Path == path {
			return true
		}
	}
	return false
}

// BridgeOptions is the decoded form of every #[bridge(...)] attribute on an item.
type BridgeOptions struct {
	Present  bool
	Ignore   bool
	Opaque   bool
	Borrowed bool
	Sync     bool
	Mirrors  []string
}

// BridgeAttrName is the attribute path recognised on bridged items.
const BridgeAttrName = "bridge"

// Bridge collects #[bridge] options. Unknown options are ignored.
func (it *Item) Bridge() BridgeOptions {
	var opts BridgeOptions
	for _, a := range it.Attrs {
		if a.Path != BridgeAttrName {
			continue
		}
		opts.Present = true
		for _, arg := range a.Args {
			arg = strings.TrimSpace(arg)
			switch {
			case arg == "ignore":
				opts.Ignore = true
			case arg == "opaque":
				opts.Opaque = true
			case arg == "borrowed":
				opts.Borrowed = true
			case arg == "sync":
				opts.Sync = true
			case strings.HasPrefix(arg, "mirror(") && strings.HasSuffix(arg, ")"):
				inner := strings.TrimSuffix(strings.TrimPrefix(arg, "mirror("), ")")
				for _, target := range strings.Split(inner, ",") {
					if target = strings.TrimSpace(target); target != "" {
						opts.Mirrors = append(opts.Mirrors, target)
					}
				}
			}
		}
	}
	return opts
}
