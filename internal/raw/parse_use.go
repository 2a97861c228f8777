package raw

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UseDecl is one flattened leaf of a use tree.
type UseDecl struct {
	Path  []string
	Alias string
	Glob  bool
}

// Name is the local name the declaration binds (empty for globs).
func (u UseDecl) Name() string {
	if u.Glob {
		return ""
	}
	if u.Alias != "" {
		return u.Alias
	}
	if len(u.Path) == 0 {
		return ""
	}
	return u.Path[len(u.Path)-1]
}

func (u UseDecl) String() string {
	s := strings.Join(u.Path, "::")
	switch {
	case u.Glob && s == "":
		return "*"
	case u.Glob:
		return s + "::*"
	case u.Alias != "" && (len(u.Path) == 0 || u.Alias != u.Path[len(u.Path)-1]):
		return s + " as " + u.Alias
	}
	return s
}

// UseTree is a flattened use tree. In JSON it is the use tree text.
type UseTree []UseDecl

// MarshalJSON writes each leaf as one use tree text joined into a group.
func (t UseTree) MarshalJSON() ([]byte, error) {
	parts := make([]string, len(t))
	for i, d := range t {
		parts[i] = d.String()
	}
	if len(parts) == 1 {
		return json.Marshal(parts[0])
	}
	return json.Marshal("{" + strings.Join(parts, ", ") + "}")
}

// UnmarshalJSON parses use tree text such as `crate::a::{b, c as d}`.
func (t *UseTree) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("use tree must be a string: %w", err)
	}
	decls, err := ParseUseTree(text)
	if err != nil {
		return err
	}
	*t = decls
	return nil
}

// ParseUseTree flattens a use tree into its leaves. A `self` leaf inside a
// group binds the group prefix itself.
func ParseUseTree(src string) (UseTree, error) {
	s, err := newTokStream(strings.TrimSuffix(strings.TrimSpace(src), ";"))
	if err != nil {
		return nil, err
	}
	s.accept("::")
	var out UseTree
	if err := s.parseUseTree(nil, &out); err != nil {
		return nil, err
	}
	if s.peek().kind != tokEOF {
		return nil, s.errorf("unexpected trailing input")
	}
	return out, nil
}

func (s *tokStream) parseUseTree(prefix []string, out *UseTree) error {
	switch {
	case s.accept("*"):
		*out = append(*out, UseDecl{Path: clonePath(prefix), Glob: true})
		return nil
	case s.is("{"):
		return s.parseUseGroup(prefix, out)
	}
	path := clonePath(prefix)
	for {
		t := s.peek()
		if t.kind != tokIdent {
			return s.errorf("expected identifier in use path")
		}
		s.next()
		if t.text == "self" && len(path) > 0 && len(path) == len(prefix) && !s.is("::") {
			// `a::{self}` binds `a`
			decl := UseDecl{Path: clonePath(path)}
			if s.accept("as") {
				decl.Alias = s.next().text
			}
			*out = append(*out, decl)
			return nil
		}
		path = append(path, t.text)
		if !s.accept("::") {
			break
		}
		if s.accept("*") {
			*out = append(*out, UseDecl{Path: path, Glob: true})
			return nil
		}
		if s.is("{") {
			return s.parseUseGroup(path, out)
		}
	}
	decl := UseDecl{Path: path}
	if s.accept("as") {
		alias := s.next()
		if alias.kind != tokIdent {
			return s.errorf("expected alias after as")
		}
		decl.Alias = alias.text
	}
	*out = append(*out, decl)
	return nil
}

func (s *tokStream) parseUseGroup(prefix []string, out *UseTree) error {
	if err := s.expect("{"); err != nil {
		return err
	}
	for !s.is("}") {
		if err := s.parseUseTree(prefix, out); err != nil {
			return err
		}
		if !s.accept(",") {
			break
		}
	}
	return s.expect("}")
}

func clonePath(p []string) []string {
	out := make([]string, len(p), len(p)+2)
	copy(out, p)
	return out
}
