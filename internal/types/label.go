package types

import "strings"

// Label returns a readable rendering of a TypeID, e.g. "Vec<Option<i32>>".
func Label(in *Interner, id TypeID) string {
	return labelDepth(in, id, 0)
}

func labelDepth(in *Interner, id TypeID, depth int) string {
	if in == nil || id == NoTypeID {
		return "?"
	}
	if depth > 8 {
		return "..."
	}
	tt, ok := in.Lookup(id)
	if !ok {
		return "?"
	}
	switch tt.Kind {
	case KindPrimitive:
		return tt.Prim.String()
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	case KindOptional:
		return "Option<" + labelDepth(in, tt.Elem, depth+1) + ">"
	case KindList:
		return "Vec<" + labelDepth(in, tt.Elem, depth+1) + ">"
	case KindMap:
		return "Map<" + labelDepth(in, tt.Elem, depth+1) + ", " + labelDepth(in, tt.Value, depth+1) + ">"
	case KindRecord:
		info := in.recordInfo(id)
		return info.Name + labelArgs(in, info.Args, depth)
	case KindEnum:
		info := in.enumInfo(id)
		return info.Name + labelArgs(in, info.Args, depth)
	case KindOpaque:
		info := in.opaqueInfo(id)
		return "Opaque<" + info.Name + labelArgs(in, info.Args, depth) + ">"
	}
	return "?"
}

func labelArgs(in *Interner, args []TypeID, depth int) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = labelDepth(in, a, depth+1)
	}
	return "<" + strings.Join(parts, ", ") + ">"
}
