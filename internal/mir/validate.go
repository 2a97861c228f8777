package mir

import (
	"errors"
	"fmt"

	"bridgegen/internal/types"
)

// Validate checks Document invariants.
// Returns error if any invariant is violated.
func Validate(d *Document) error {
	if d == nil {
		return nil
	}
	var errs []error

	// 1. Every referenced TypeID is valid and nominal types are lowered
	if err := validateClosure(d); err != nil {
		errs = append(errs, err)
	}

	// 2. Identifiers are set and unique per kind
	if err := validateIdents(d); err != nil {
		errs = append(errs, err)
	}

	// 3. Handles only point at types reaching an opaque object
	if err := validateHandles(d); err != nil {
		errs = append(errs, err)
	}

	// 4. Records and enums are either plain or disposable
	if err := validateDisposal(d); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// values calls fn for every typed position of the document.
func (d *Document) values(fn func(where string, v Value)) {
	for _, f := range d.Funcs {
		for _, p := range f.Params {
			fn(fmt.Sprintf("%s param %s", f.Ident.Key, p.Name), p.Value)
		}
		fn(f.Ident.Key+" return", f.Ret)
		if f.Err != nil {
			fn(f.Ident.Key+" error", *f.Err)
		}
	}
	for _, r := range d.Records {
		for _, fl := range r.Fields {
			fn(fmt.Sprintf("%s.%s", r.Ident.Key, fl.Name), fl.Value)
		}
	}
	for _, e := range d.Enums {
		for _, v := range e.Variants {
			for _, fl := range v.Fields {
				fn(fmt.Sprintf("%s::%s.%s", e.Ident.Key, v.Name, fl.Name), fl.Value)
			}
		}
	}
}

func validateClosure(d *Document) error {
	var errs []error
	var check func(where string, id types.TypeID, depth int)
	check = func(where string, id types.TypeID, depth int) {
		if depth > 64 {
			return
		}
		tt, ok := d.Types.Lookup(id)
		if !ok || tt.Kind == types.KindInvalid {
			errs = append(errs, fmt.Errorf("%s: invalid type %d", where, id))
			return
		}
		switch tt.Kind {
		case types.KindOptional, types.KindList:
			check(where, tt.Elem, depth+1)
		case types.KindMap:
			check(where, tt.Elem, depth+1)
			check(where, tt.Value, depth+1)
		case types.KindRecord:
			if d.Record(id) == nil {
				errs = append(errs, fmt.Errorf("%s: record %s was not lowered", where, types.Label(d.Types, id)))
			}
		case types.KindEnum:
			if d.Enum(id) == nil {
				errs = append(errs, fmt.Errorf("%s: enum %s was not lowered", where, types.Label(d.Types, id)))
			}
		case types.KindOpaque:
			if d.Opaque(id) == nil {
				errs = append(errs, fmt.Errorf("%s: opaque %s was not lowered", where, types.Label(d.Types, id)))
			}
		}
	}
	d.values(func(where string, v Value) { check(where, v.Type, 0) })
	for _, f := range d.Funcs {
		if f.Owner != types.NoTypeID {
			check(f.Ident.Key+" owner", f.Owner, 0)
		}
	}
	return errors.Join(errs...)
}

func validateIdents(d *Document) error {
	var errs []error
	check := func(kind string, ids []Ident) {
		seen := make(map[string]bool, len(ids))
		symbols := make(map[string]bool, len(ids))
		for _, id := range ids {
			switch {
			case id.Key == "" || id.Symbol == "":
				errs = append(errs, fmt.Errorf("%s without identifier", kind))
			case seen[id.Key]:
				errs = append(errs, fmt.Errorf("%s %s: duplicate identifier", kind, id.Key))
			case symbols[id.Symbol]:
				errs = append(errs, fmt.Errorf("%s %s: duplicate symbol %s", kind, id.Key, id.Symbol))
			}
			seen[id.Key] = true
			symbols[id.Symbol] = true
		}
	}
	fns := make([]Ident, len(d.Funcs))
	for i, f := range d.Funcs {
		fns[i] = f.Ident
	}
	check("function", fns)

	var tys []Ident
	for _, r := range d.Records {
		tys = append(tys, r.Ident)
	}
	for _, e := range d.Enums {
		tys = append(tys, e.Ident)
	}
	for _, o := range d.Opaques {
		tys = append(tys, o.Ident)
	}
	check("type", tys)
	return errors.Join(errs...)
}

func validateHandles(d *Document) error {
	var errs []error
	d.values(func(where string, v Value) {
		tt, ok := d.Types.Lookup(v.Type)
		if !ok {
			return
		}
		reaches := OwnershipOf(d, v.Type) == Handle
		if v.Own == Handle && !reaches || tt.Kind == types.KindOpaque && v.Own != Handle {
			errs = append(errs, fmt.Errorf("%s: %s value of kind %s", where, v.Own, tt.Kind))
		}
	})
	return errors.Join(errs...)
}

func validateDisposal(d *Document) error {
	var errs []error
	for _, r := range d.Records {
		if r.Own != ByValue && r.Own != Owned {
			errs = append(errs, fmt.Errorf("record %s: data ownership %s", r.Ident.Key, r.Own))
		}
	}
	for _, e := range d.Enums {
		if e.Own != ByValue && e.Own != Owned {
			errs = append(errs, fmt.Errorf("enum %s: data ownership %s", e.Ident.Key, e.Own))
		}
	}
	return errors.Join(errs...)
}
