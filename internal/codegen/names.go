package codegen

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// words splits a symbol into its underscore separated words.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == '_' })
}

// upperCamel turns "page_i32" into "PageI32". Existing inner capitals stay.
func upperCamel(s string) string {
	// a Caser is stateful, so each call gets its own
	title := cases.Title(language.Und, cases.NoLower)
	var sb strings.Builder
	for _, w := range words(s) {
		sb.WriteString(title.String(w))
	}
	if sb.Len() == 0 {
		return "X"
	}
	return sb.String()
}

// lowerCamel turns "next_event" into "nextEvent" and "Point__norm" into
// "pointNorm".
func lowerCamel(s string) string {
	c := upperCamel(s)
	i := 0
	for i < len(c) && c[i] >= 'A' && c[i] <= 'Z' {
		i++
	}
	switch {
	case i == 0:
	case i == 1 || i == len(c):
		c = strings.ToLower(c[:i]) + c[i:]
	default:
		// keep the first letter of the next word: "HTTPServer" -> "httpServer"
		c = strings.ToLower(c[:i-1]) + c[i-1:]
	}
	return dartIdent(c)
}

var dartKeywords = map[string]bool{
	"assert": true, "break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "default": true, "do": true, "else": true, "enum": true, "extends": true,
	"false": true, "final": true, "finally": true, "for": true, "if": true, "in": true, "is": true,
	"new": true, "null": true, "rethrow": true, "return": true, "super": true, "switch": true,
	"this": true, "throw": true, "true": true, "try": true, "var": true, "void": true,
	"while": true, "with": true,
}

func dartIdent(s string) string {
	if dartKeywords[s] {
		return s + "_"
	}
	return s
}

var rustKeywords = map[string]bool{
	"as": true, "async": true, "await": true, "box": true, "break": true, "const": true,
	"continue": true, "crate": true, "dyn": true, "else": true, "enum": true, "extern": true,
	"false": true, "fn": true, "for": true, "if": true, "impl": true, "in": true, "let": true,
	"loop": true, "match": true, "mod": true, "move": true, "mut": true, "pub": true, "ref": true,
	"return": true, "static": true, "struct": true, "trait": true, "true": true, "type": true,
	"unsafe": true, "use": true, "where": true, "while": true,
}

// rustField is a native field access name: positional fields are numbers,
// keywords need the raw prefix.
func rustField(name string) string {
	if rustKeywords[name] {
		return "r#" + name
	}
	return name
}

// wireField is the field name inside wire structs, valid in every target
// language.
func wireField(name string, positional bool) string {
	if positional {
		return "field" + name
	}
	if rustKeywords[name] || dartKeywords[name] {
		return name + "_"
	}
	return name
}

// dartField is the Dart member name of a record field.
func dartField(name string, positional bool) string {
	if positional {
		return "field" + name
	}
	return lowerCamel(name)
}

// hostPath rewrites paths of the host crate to crate-relative paths, since
// the glue is compiled inside that crate.
func hostPath(native, host string) string {
	if host == "" {
		return native
	}
	prefix := host + "::"
	var sb strings.Builder
	for i := 0; i < len(native); {
		if strings.HasPrefix(native[i:], prefix) && (i == 0 || !isPathByte(native[i-1])) {
			sb.WriteString("crate::")
			i += len(prefix)
			continue
		}
		sb.WriteByte(native[i])
		i++
	}
	return sb.String()
}

func isPathByte(b byte) bool {
	return b == '_' || b == ':' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// exprPath turns a type path into an expression path: "a::Page<i32>"
// becomes "a::Page::<i32>".
func exprPath(native string) string {
	i := strings.IndexByte(native, '<')
	if i < 0 || i >= 2 && native[i-2:i] == "::" {
		return native
	}
	return native[:i] + "::" + native[i:]
}

// primSlug spells a primitive the way wire names do: i32 -> prim_i_32.
func primSlug(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] >= '0' && name[i] <= '9' {
			return "prim_" + name[:i] + "_" + name[i:]
		}
	}
	return "prim_" + name
}
