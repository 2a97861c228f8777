package mir

import (
	"errors"
	"slices"
	"strings"

	"bridgegen/internal/diag"
	"bridgegen/internal/hir"
	"bridgegen/internal/raw"
	"bridgegen/internal/types"
)

// lowerType maps a native type expression onto the algebra. Results are
// memoised per scope, canonical text and generic environment.
func (l *lowerer) lowerType(e *env, te *raw.TypeExpr) (lowered, error) {
	if te == nil {
		return lowered{id: l.in.Builtins().Unit, native: "()"}, nil
	}
	key := memoKey{scope: e.scope, text: te.String(), env: e.key}
	if v, ok := l.memo[key]; ok {
		return v, nil
	}
	v, err := l.lowerTypeUncached(e, te)
	if err != nil {
		return lowered{}, err
	}
	l.memo[key] = v
	return v, nil
}

func (l *lowerer) lowerTypeUncached(e *env, te *raw.TypeExpr) (lowered, error) {
	text := te.String()
	switch te.Kind {
	case raw.TypePath:
		return l.lowerPath(e, te)
	case raw.TypeRef:
		inner, err := l.lowerType(e, te.Elem)
		if err != nil {
			return lowered{}, err
		}
		prefix := "&"
		if te.Mutable {
			prefix = "&mut "
		}
		if l.isOpaque(inner.id) {
			return lowered{id: inner.id, own: Handle, native: prefix + inner.native}, nil
		}
		if te.Mutable {
			return lowered{}, l.fail(diag.LowConflictingOwnership, text, "&mut is only supported for opaque types")
		}
		return lowered{id: inner.id, own: Borrowed, native: prefix + inner.native}, nil
	case raw.TypePtr:
		inner, err := l.lowerType(e, te.Elem)
		if err != nil {
			return lowered{}, err
		}
		if !l.isOpaque(inner.id) {
			return lowered{}, l.fail(diag.LowUnsupportedType, text, "raw pointers are only supported to opaque types")
		}
		return lowered{id: inner.id, own: Handle, native: text}, nil
	case raw.TypeSlice:
		elem, err := l.lowerType(e, te.Elem)
		if err != nil {
			return lowered{}, err
		}
		return l.sequence(elem, "["+elem.native+"]"), nil
	case raw.TypeArray:
		elem, err := l.lowerType(e, te.Elem)
		if err != nil {
			return lowered{}, err
		}
		return lowered{id: l.in.Intern(types.MakeList(elem.id)), own: elem.own, native: "[" + elem.native + "; " + te.Len + "]"}, nil
	case raw.TypeTuple:
		if len(te.Elems) == 0 {
			return lowered{id: l.in.Builtins().Unit, native: "()"}, nil
		}
		return lowered{}, l.fail(diag.LowUnsupportedType, text, "tuples cannot cross the boundary")
	}
	return lowered{}, l.fail(diag.LowUnsupportedType, text, "%s types cannot cross the boundary", te.Kind)
}

// sequence lowers a growable sequence; u8 sequences are Bytes.
func (l *lowerer) sequence(elem lowered, native string) lowered {
	if elem.id == l.in.Builtins().Prim(types.PrimU8) {
		return lowered{id: l.in.Builtins().Bytes, native: native}
	}
	return lowered{id: l.in.Intern(types.MakeList(elem.id)), own: elem.own, native: native}
}

func (l *lowerer) isOpaque(id types.TypeID) bool {
	tt, ok := l.in.Lookup(id)
	return ok && tt.Kind == types.KindOpaque
}

func (l *lowerer) lowerPath(e *env, te *raw.TypeExpr) (lowered, error) {
	p := te.Path
	last := p.Last()
	if !p.Global && len(p.Segments) == 1 {
		name := last.Name
		if v, ok := e.args[name]; ok && len(last.Args) == 0 {
			return v, nil
		}
		if slices.Contains(e.free, name) {
			return lowered{}, l.fail(diag.LowUnresolvedGeneric, name, "generic parameter has no concrete instantiation")
		}
		if name == "Self" && e.self != nil {
			return l.lowerItem(e, e.self, nil, name)
		}
		if prim, ok := types.ParsePrim(name); ok && len(last.Args) == 0 {
			return lowered{id: l.in.Builtins().Prim(prim), native: name}, nil
		}
	}

	res, err := l.pack.ResolveType(e.scope, p)
	switch {
	case err == nil && res.Item != nil:
		return l.lowerItem(e, res.Item, last.Args, te.String())
	case errors.Is(err, hir.ErrPrivate):
		return lowered{}, l.fail(diag.LowUnsupportedType, te.String(), "type is private: %v", err)
	case err != nil && !errors.Is(err, hir.ErrNotFound):
		return lowered{}, l.fail(diag.LowUnsupportedType, te.String(), "%v", err)
	}
	v, ok, berr := l.builtin(e, te, res.External)
	if berr != nil {
		return lowered{}, berr
	}
	if !ok {
		return lowered{}, l.fail(diag.LowUnsupportedType, te.String(), "unknown type")
	}
	return v, nil
}

// canonicalPaths qualifies builtin names that are not in the prelude.
var canonicalPaths = map[string]string{
	"Cow":      "std::borrow::Cow",
	"VecDeque": "std::collections::VecDeque",
	"HashSet":  "std::collections::HashSet",
	"BTreeSet": "std::collections::BTreeSet",
	"HashMap":  "std::collections::HashMap",
	"BTreeMap": "std::collections::BTreeMap",
	"Bytes":    "bytes::Bytes",
}

// builtin lowers standard library and runtime types by their last segment.
// external is the resolved path text when the path left the crate pack.
func (l *lowerer) builtin(e *env, te *raw.TypeExpr, external string) (lowered, bool, error) {
	last := te.Path.Last()
	base := strings.TrimPrefix(external, "::")
	if base == "" {
		base = last.Name
		if canon, ok := canonicalPaths[base]; ok {
			base = canon
		}
	}
	args := make([]lowered, 0, len(last.Args))
	natives := make([]string, 0, len(last.Args))
	lowerArgs := func() error {
		for _, a := range last.Args {
			v, err := l.lowerType(e, a)
			if err != nil {
				return err
			}
			args = append(args, v)
			natives = append(natives, v.native)
		}
		return nil
	}
	native := func() string {
		if len(natives) == 0 {
			return base
		}
		return base + "<" + strings.Join(natives, ", ") + ">"
	}
	wantArgs := func(n int) error {
		if len(last.Args) != n {
			return l.fail(diag.LowUnsupportedType, te.String(), "%s takes %d type argument(s)", last.Name, n)
		}
		return nil
	}
	b := l.in.Builtins()

	switch last.Name {
	case "String", "str":
		return lowered{id: b.String, native: base}, true, nil
	case "Cow":
		if len(last.Args) != 1 || last.Args[0].String() != "str" {
			return lowered{}, false, l.fail(diag.LowUnsupportedType, te.String(), "only Cow<str> is supported")
		}
		return lowered{id: b.String, native: base + "<'static, str>"}, true, nil
	case "Bytes":
		return lowered{id: b.Bytes, native: base}, true, nil
	case "Vec", "VecDeque", "HashSet", "BTreeSet":
		if err := wantArgs(1); err != nil {
			return lowered{}, false, err
		}
		if err := lowerArgs(); err != nil {
			return lowered{}, false, err
		}
		if last.Name == "Vec" {
			return l.sequence(args[0], native()), true, nil
		}
		return lowered{id: l.in.Intern(types.MakeList(args[0].id)), own: args[0].own, native: native()}, true, nil
	case "Option":
		if err := wantArgs(1); err != nil {
			return lowered{}, false, err
		}
		if err := lowerArgs(); err != nil {
			return lowered{}, false, err
		}
		return lowered{id: l.in.Intern(types.MakeOptional(args[0].id)), own: args[0].own, native: native()}, true, nil
	case "HashMap", "BTreeMap":
		if err := wantArgs(2); err != nil {
			return lowered{}, false, err
		}
		if err := lowerArgs(); err != nil {
			return lowered{}, false, err
		}
		return lowered{
			id:     l.in.Intern(types.MakeMap(args[0].id, args[1].id)),
			own:    strongest(args[0].own, args[1].own),
			native: native(),
		}, true, nil
	case "Box":
		if err := wantArgs(1); err != nil {
			return lowered{}, false, err
		}
		if err := lowerArgs(); err != nil {
			return lowered{}, false, err
		}
		return lowered{id: args[0].id, own: strongest(Owned, args[0].own), native: native()}, true, nil
	case "Opaque", "RustOpaque":
		if err := wantArgs(1); err != nil {
			return lowered{}, false, err
		}
		v, err := l.opaqueOf(e, last.Args[0], base)
		return v, err == nil, err
	case "Result":
		return lowered{}, false, l.fail(diag.LowUnsupportedType, te.String(), "Result is only supported as a function's return type")
	}
	return lowered{}, false, nil
}

// opaqueOf lowers Opaque<T>: T is never inspected, only named.
func (l *lowerer) opaqueOf(e *env, inner *raw.TypeExpr, wrapper string) (lowered, error) {
	if inner.Kind != raw.TypePath {
		return lowered{}, l.fail(diag.LowUnsupportedType, inner.String(), "opaque payload must be a named type")
	}
	key, name, native := inner.String(), inner.Path.Last().Name, inner.String()
	crate, module := e.scope.Crate, []string(nil)
	if res, err := l.pack.ResolveType(e.scope, inner.Path); err == nil && res.Item != nil {
		key, name, native = res.Item.Path.String(), res.Item.Name, res.Item.Path.String()
		crate, module = res.Item.Path.Crate, splitModule(res.Item.Path.Module)
	} else if err == nil && res.External != "" {
		native = res.External
	}
	id, created := l.in.RegisterOpaque(key, name, nil)
	if created {
		o := &Opaque{Type: id, Native: native}
		l.doc.Opaques = append(l.doc.Opaques, o)
		l.typeCands = append(l.typeCands, identCandidate{
			crate: crate, module: module, name: name,
			assign: func(id Ident) { o.Ident = id },
		})
	}
	return lowered{id: id, own: Handle, native: wrapper + "<" + native + ">"}, nil
}

// lowerItem lowers a resolved alias, struct or enum with its type arguments.
func (l *lowerer) lowerItem(e *env, it *hir.Item, rawArgs []*raw.TypeExpr, construct string) (lowered, error) {
	args := make([]lowered, 0, len(rawArgs))
	for _, a := range rawArgs {
		v, err := l.lowerType(e, a)
		if err != nil {
			return lowered{}, err
		}
		args = append(args, v)
	}

	if it.Kind == hir.KindTypeAlias {
		if err := l.checkArity(construct, it.Alias.Generics, args); err != nil {
			return lowered{}, err
		}
		return l.lowerType(newEnv(it.Path.Scope(), it.Alias.Generics, args, nil, nil), it.Alias.Target)
	}
	if it.Kind != hir.KindStructOrEnum {
		return lowered{}, l.fail(diag.LowUnsupportedType, construct, "%s is not a type", it.Path)
	}

	opts := it.Options
	target := it
	if it.Mirror != nil {
		target = l.pack.Item(*it.Mirror)
		if target == nil || target.Data == nil {
			return lowered{}, l.fail(diag.LowInvariant, construct, "mirror target %s vanished", it.Mirror)
		}
		opts.Opaque = opts.Opaque || target.Options.Opaque
		opts.Borrowed = opts.Borrowed || target.Options.Borrowed
	}
	if opts.Opaque && opts.Borrowed {
		return lowered{}, l.fail(diag.LowConflictingOwnership, construct, "%s is annotated both opaque and borrowed", it.Name)
	}
	if err := l.checkArity(construct, target.Data.Generics, args); err != nil {
		return lowered{}, err
	}

	ids := make([]types.TypeID, len(args))
	natives := make([]string, len(args))
	for i, a := range args {
		ids[i], natives[i] = a.id, a.native
	}
	native := target.Path.String()
	suffix := ""
	if len(args) > 0 {
		native += "<" + strings.Join(natives, ", ") + ">"
		labels := make([]string, len(ids))
		for i, id := range ids {
			labels[i] = types.Label(l.in, id)
		}
		suffix = "<" + strings.Join(labels, ", ") + ">"
	}
	cand := identCandidate{
		crate:  target.Path.Crate,
		module: splitModule(target.Path.Module),
		name:   target.Name,
		suffix: suffix,
	}

	if opts.Opaque {
		id, created := l.in.RegisterOpaque(target.Path.String(), target.Name, ids)
		if created {
			o := &Opaque{Type: id, Native: native}
			l.doc.Opaques = append(l.doc.Opaques, o)
			cand.assign = func(id Ident) { o.Ident = id }
			l.typeCands = append(l.typeCands, cand)
		}
		return lowered{id: id, own: Handle, native: native}, nil
	}

	var (
		id      types.TypeID
		created bool
	)
	if target.Data.IsEnum {
		id, created = l.in.RegisterEnum(target.Path.String(), target.Name, ids)
	} else {
		id, created = l.in.RegisterRecord(target.Path.String(), target.Name, ids)
	}
	if created {
		if err := l.lowerMembers(id, target, args, native, cand); err != nil {
			return lowered{}, err
		}
	}
	own, done := l.ownOf[id]
	if !done {
		// recursive reference while the members are still being lowered
		own = Owned
	}
	if opts.Borrowed {
		own = Borrowed
	}
	return lowered{id: id, own: own, native: native}, nil
}

func (l *lowerer) checkArity(construct string, params []string, args []lowered) error {
	switch {
	case len(params) == len(args):
		return nil
	case len(args) == 0:
		return l.fail(diag.LowUnresolvedGeneric, construct, "generic type used without type arguments")
	}
	return l.fail(diag.LowUnsupportedType, construct, "expected %d type argument(s), got %d", len(params), len(args))
}

func (l *lowerer) lowerMembers(id types.TypeID, target *hir.Item, args []lowered, native string, cand identCandidate) error {
	l.pending[id] = true
	defer delete(l.pending, id)
	saved := l.item
	l.item = target.Path.String()
	defer func() { l.item = saved }()

	var self *hir.Item
	if len(target.Data.Generics) == 0 {
		self = target
	}
	e := newEnv(target.Path.Scope(), target.Data.Generics, args, nil, self)
	lowerFields := func(in []hir.Field) ([]Field, []types.Field, error) {
		out := make([]Field, 0, len(in))
		tf := make([]types.Field, 0, len(in))
		for _, f := range in {
			v, err := l.lowerType(e, f.Type)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, Field{Name: f.Name, Positional: f.Positional, Value: v.value()})
			tf = append(tf, types.Field{Name: f.Name, Type: v.id, Positional: f.Positional})
		}
		return out, tf, nil
	}

	data := target.Data
	if !data.IsEnum {
		fields, tf, err := lowerFields(data.Fields)
		if err != nil {
			return err
		}
		tuple := data.Shape == hir.ShapeTuple
		l.in.SetRecordFields(id, tf, tuple)
		rec := &Record{Type: id, Source: target.Path, Native: native, Fields: fields, Tuple: tuple}
		rec.Own = l.dataOwnership(fields)
		l.ownOf[id] = rec.Own
		l.doc.Records = append(l.doc.Records, rec)
		cand.assign = func(id Ident) { rec.Ident = id }
		l.typeCands = append(l.typeCands, cand)
		return nil
	}

	en := &Enum{Type: id, Source: target.Path, Native: native}
	var all []Field
	tv := make([]types.Variant, 0, len(data.Variants))
	for _, v := range data.Variants {
		fields, tf, err := lowerFields(v.Fields)
		if err != nil {
			return err
		}
		shape := types.Shape(v.Shape)
		en.Variants = append(en.Variants, Variant{Name: v.Name, Shape: shape, Fields: fields})
		tv = append(tv, types.Variant{Name: v.Name, Shape: shape, Fields: tf})
		all = append(all, fields...)
	}
	l.in.SetEnumVariants(id, tv)
	en.Own = l.dataOwnership(all)
	l.ownOf[id] = en.Own
	l.doc.Enums = append(l.doc.Enums, en)
	cand.assign = func(id Ident) { en.Ident = id }
	l.typeCands = append(l.typeCands, cand)
	return nil
}
