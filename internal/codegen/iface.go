package codegen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InterfaceVersion is bumped whenever the description layout changes.
const InterfaceVersion = 1

// Interface is the machine-readable description of the exported C surface.
// Header generators consume it to produce the C declarations.
type Interface struct {
	Version   int          `json:"version"`
	Namespace string       `json:"namespace"`
	Crates    []string     `json:"crates"`
	Types     []CType      `json:"types"`
	Functions []EntryPoint `json:"functions"`
}

// CType is a generated struct or union, listed after every type it embeds.
type CType struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Fields []CParam `json:"fields"`
}

// CParam is a named C-typed slot.
type CParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EntryPoint is one exported symbol.
type EntryPoint struct {
	Symbol string `json:"symbol"`
	Kind   string `json:"kind"`
	// Ident is the identifier key of the bridged function behind a call.
	Ident  string   `json:"ident,omitempty"`
	Mode   string   `json:"mode,omitempty"`
	Params []CParam `json:"params"`
	Return string   `json:"return"`
}

func (a *abi) describe() *Interface {
	in := &Interface{
		Version:   InterfaceVersion,
		Namespace: a.t.ns,
		Crates:    a.doc.Crates,
		Types:     []CType{},
		Functions: []EntryPoint{},
	}
	for _, st := range a.structs() {
		ct := CType{Name: st.name, Kind: "struct", Fields: []CParam{}}
		if st.union {
			ct.Kind = "union"
		}
		for _, f := range st.fields {
			ct.Fields = append(ct.Fields, CParam{Name: f.name, Type: f.c})
		}
		in.Types = append(in.Types, ct)
	}
	for _, e := range a.entries() {
		ep := EntryPoint{Symbol: e.symbol, Kind: e.kind.String(), Params: []CParam{}, Return: e.ret.c}
		if e.kind == entryCall {
			ep.Ident = e.fn.Ident.Key
			ep.Mode = e.fn.Mode.String()
		}
		for _, p := range e.params {
			ep.Params = append(ep.Params, CParam{Name: p.name, Type: p.c})
		}
		in.Functions = append(in.Functions, ep)
	}
	return in
}

// Marshal encodes the description with stable indentation.
func (in *Interface) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ParseInterface decodes a description produced by Marshal.
func ParseInterface(data []byte) (*Interface, error) {
	var in Interface
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("interface description: %w", err)
	}
	if in.Version != InterfaceVersion {
		return nil, fmt.Errorf("interface description: version %d, want %d", in.Version, InterfaceVersion)
	}
	return &in, nil
}

// Symbols lists the exported symbol names in declaration order.
func (in *Interface) Symbols() []string {
	out := make([]string, len(in.Functions))
	for i, f := range in.Functions {
		out[i] = f.Symbol
	}
	return out
}

func declare(c, name string) string {
	if strings.HasSuffix(c, "*") {
		return c + name
	}
	return c + " " + name
}

// RenderHeader writes the C header for a description.
func RenderHeader(in *Interface) []byte {
	e := &emitter{unit: "  "}
	guard := "BRIDGEGEN_" + strings.ToUpper(sanitize(in.Namespace)) + "_H"
	e.line("// Code generated by bridgegen. DO NOT EDIT.")
	e.line("")
	e.linef("#ifndef %s", guard)
	e.linef("#define %s", guard)
	e.line("")
	e.line("#include <stdbool.h>")
	e.line("#include <stdint.h>")
	e.line("#include <stdlib.h>")
	if len(in.Types) > 0 {
		e.line("")
		for _, t := range in.Types {
			e.linef("typedef %s %s %s;", t.Kind, t.Name, t.Name)
		}
	}
	for _, t := range in.Types {
		e.line("")
		e.openf("%s %s {", t.Kind, t.Name)
		for _, f := range t.Fields {
			e.line(declare(f.Type, f.Name) + ";")
		}
		e.close("};")
	}
	e.line("")
	for _, f := range in.Functions {
		params := make([]string, len(f.Params))
		for i, p := range f.Params {
			params[i] = declare(p.Type, p.Name)
		}
		if len(params) == 0 {
			params = []string{"void"}
		}
		e.line(declare(f.Return, f.Symbol) + "(" + strings.Join(params, ", ") + ");")
	}
	e.line("")
	e.linef("#endif // %s", guard)
	return e.bytes()
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, s)
}
