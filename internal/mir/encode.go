package mir

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"bridgegen/internal/types"
)

type (
	identSnapshot struct {
		Key    string `msgpack:"key"`
		Symbol string `msgpack:"symbol"`
		Hash   uint64 `msgpack:"hash"`
	}
	valueSnapshot struct {
		Name   string `msgpack:"name,omitempty"`
		Type   string `msgpack:"type"`
		ID     uint32 `msgpack:"id"`
		Own    string `msgpack:"own"`
		Native string `msgpack:"native"`
	}
	funcSnapshot struct {
		Ident  identSnapshot   `msgpack:"ident"`
		Path   string          `msgpack:"path"`
		Mode   string          `msgpack:"mode"`
		Params []valueSnapshot `msgpack:"params"`
		Ret    valueSnapshot   `msgpack:"ret"`
		Err    *valueSnapshot  `msgpack:"err,omitempty"`
	}
	dataSnapshot struct {
		Ident    identSnapshot     `msgpack:"ident"`
		Kind     string            `msgpack:"kind"`
		Native   string            `msgpack:"native"`
		Own      string            `msgpack:"own"`
		Fields   []valueSnapshot   `msgpack:"fields,omitempty"`
		Variants []variantSnapshot `msgpack:"variants,omitempty"`
	}
	variantSnapshot struct {
		Name   string          `msgpack:"name"`
		Shape  string          `msgpack:"shape"`
		Fields []valueSnapshot `msgpack:"fields,omitempty"`
	}
	documentSnapshot struct {
		Crates []string       `msgpack:"crates"`
		Funcs  []funcSnapshot `msgpack:"funcs"`
		Types  []dataSnapshot `msgpack:"types"`
	}
)

// Encode writes a msgpack snapshot of the document. TypeIDs are included:
// lowering order is fixed, so they are part of the stable output.
func Encode(w io.Writer, d *Document) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return enc.Encode(snapshotOf(d))
}

func snapshotOf(d *Document) documentSnapshot {
	val := func(name string, v Value) valueSnapshot {
		return valueSnapshot{Name: name, Type: types.Label(d.Types, v.Type), ID: uint32(v.Type), Own: v.Own.String(), Native: v.Native}
	}
	fields := func(in []Field) []valueSnapshot {
		out := make([]valueSnapshot, len(in))
		for i, f := range in {
			out[i] = val(f.Name, f.Value)
		}
		return out
	}
	ident := func(id Ident) identSnapshot { return identSnapshot{Key: id.Key, Symbol: id.Symbol, Hash: id.Hash} }

	s := documentSnapshot{Crates: d.Crates}
	for _, f := range d.Funcs {
		fs := funcSnapshot{Ident: ident(f.Ident), Path: f.Path, Mode: f.Mode.String(), Ret: val("", f.Ret)}
		for _, p := range f.Params {
			fs.Params = append(fs.Params, val(p.Name, p.Value))
		}
		if f.Err != nil {
			e := val("", *f.Err)
			fs.Err = &e
		}
		s.Funcs = append(s.Funcs, fs)
	}
	for _, r := range d.Records {
		s.Types = append(s.Types, dataSnapshot{Ident: ident(r.Ident), Kind: "record", Native: r.Native, Own: r.Own.String(), Fields: fields(r.Fields)})
	}
	for _, e := range d.Enums {
		ds := dataSnapshot{Ident: ident(e.Ident), Kind: "enum", Native: e.Native, Own: e.Own.String()}
		for _, v := range e.Variants {
			ds.Variants = append(ds.Variants, variantSnapshot{Name: v.Name, Shape: v.Shape.String(), Fields: fields(v.Fields)})
		}
		s.Types = append(s.Types, ds)
	}
	for _, o := range d.Opaques {
		s.Types = append(s.Types, dataSnapshot{Ident: ident(o.Ident), Kind: "opaque", Native: o.Native, Own: Handle.String()})
	}
	return s
}
