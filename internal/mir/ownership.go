package mir

import "bridgegen/internal/types"

// dataOwnership classifies a record or enum from its fields: plain data is
// copied by value, anything else is heap data with a disposer.
func (l *lowerer) dataOwnership(fields []Field) Ownership {
	for _, f := range fields {
		if f.Own != ByValue || !l.plain(f.Type) {
			return Owned
		}
	}
	return ByValue
}

// plain reports whether id is a primitive or an already classified plain
// record or enum. A type still being lowered is not plain.
func (l *lowerer) plain(id types.TypeID) bool {
	tt, ok := l.in.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case types.KindPrimitive:
		return true
	case types.KindRecord, types.KindEnum:
		own, done := l.ownOf[id]
		return done && own == ByValue
	}
	return false
}

// OwnershipOf returns the tag a bare value of type id carries in doc.
func OwnershipOf(doc *Document, id types.TypeID) Ownership {
	tt, ok := doc.Types.Lookup(id)
	if !ok {
		return ByValue
	}
	switch tt.Kind {
	case types.KindOpaque:
		return Handle
	case types.KindRecord:
		if r := doc.Record(id); r != nil {
			return r.Own
		}
	case types.KindEnum:
		if e := doc.Enum(id); e != nil {
			return e.Own
		}
	case types.KindOptional, types.KindList:
		return OwnershipOf(doc, tt.Elem)
	case types.KindMap:
		return strongest(OwnershipOf(doc, tt.Elem), OwnershipOf(doc, tt.Value))
	}
	return ByValue
}
