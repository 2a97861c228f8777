package hir

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshot types mirror the Pack with plain values only. Type expressions
// are stored as canonical text.
type (
	crateSnapshot struct {
		Name    string           `msgpack:"name"`
		Primary bool             `msgpack:"primary"`
		Modules []moduleSnapshot `msgpack:"modules"`
	}
	moduleSnapshot struct {
		Path      string         `msgpack:"path"`
		Vis       string         `msgpack:"vis"`
		Reexports []edgeSnapshot `msgpack:"reexports,omitempty"`
		Imports   []edgeSnapshot `msgpack:"imports,omitempty"`
		Items     []itemSnapshot `msgpack:"items,omitempty"`
	}
	edgeSnapshot struct {
		Use      string `msgpack:"use"`
		Vis      string `msgpack:"vis"`
		Target   string `msgpack:"target,omitempty"`
		External bool   `msgpack:"external,omitempty"`
	}
	itemSnapshot struct {
		Kind    string            `msgpack:"kind"`
		Path    string            `msgpack:"path"`
		Vis     string            `msgpack:"vis"`
		Bridged bool              `msgpack:"bridged,omitempty"`
		Mirror  string            `msgpack:"mirror,omitempty"`
		Params  map[string]string `msgpack:"params,omitempty"`
		Order   []string          `msgpack:"order,omitempty"`
		Ret     string            `msgpack:"ret,omitempty"`
		Err     string            `msgpack:"err,omitempty"`
		Mode    string            `msgpack:"mode,omitempty"`
		Members []string          `msgpack:"members,omitempty"`
		Target  string            `msgpack:"target,omitempty"`
	}
)

// Encode writes a msgpack snapshot of the pack. Map keys are sorted so
// equal packs encode to equal bytes.
func Encode(w io.Writer, pack *Pack) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return enc.Encode(snapshot(pack))
}

func snapshot(pack *Pack) []crateSnapshot {
	out := make([]crateSnapshot, 0, len(pack.names))
	for _, c := range pack.Crates() {
		cs := crateSnapshot{Name: c.Name, Primary: c.Primary}
		for _, path := range c.Order {
			m := c.Modules[path]
			ms := moduleSnapshot{Path: m.Path, Vis: m.Vis.String()}
			for _, re := range m.Reexports {
				ms.Reexports = append(ms.Reexports, edgeOf(re))
			}
			for _, re := range m.Imports {
				ms.Imports = append(ms.Imports, edgeOf(re))
			}
			for _, it := range m.Items {
				ms.Items = append(ms.Items, itemOf(it))
			}
			cs.Modules = append(cs.Modules, ms)
		}
		out = append(out, cs)
	}
	return out
}

func edgeOf(re Reexport) edgeSnapshot {
	es := edgeSnapshot{Use: re.Decl.String(), Vis: re.Vis.String(), External: re.External}
	if re.Target != nil {
		es.Target = re.Target.String()
	}
	return es
}

func itemOf(it *Item) itemSnapshot {
	s := itemSnapshot{Kind: it.Kind.String(), Path: it.Path.String(), Vis: it.Vis.String(), Bridged: it.Bridged}
	if it.Mirror != nil {
		s.Mirror = it.Mirror.String()
	}
	switch {
	case it.Func != nil:
		s.Params = make(map[string]string, len(it.Func.Params))
		for _, p := range it.Func.Params {
			s.Params[p.Name] = p.Type.String()
			s.Order = append(s.Order, p.Name)
		}
		if it.Func.Ret != nil {
			s.Ret = it.Func.Ret.String()
		}
		if it.Func.Err != nil {
			s.Err = it.Func.Err.String()
		}
		s.Mode = it.Func.Mode.String()
	case it.Data != nil:
		for _, f := range it.Data.Fields {
			s.Members = append(s.Members, f.Name+": "+f.Type.String())
		}
		for _, v := range it.Data.Variants {
			s.Members = append(s.Members, v.Name+"/"+v.Shape.String())
		}
	case it.Alias != nil:
		s.Target = it.Alias.Target.String()
	}
	return s
}
