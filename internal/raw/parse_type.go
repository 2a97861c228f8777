package raw

import "strings"

// ParseType parses a native type expression such as `Vec<Option<&'a str>>`.
// Lifetimes are accepted and dropped.
func ParseType(src string) (*TypeExpr, error) {
	s, err := newTokStream(src)
	if err != nil {
		return nil, err
	}
	t, err := s.parseType()
	if err != nil {
		return nil, err
	}
	if s.peek().kind != tokEOF {
		return nil, s.errorf("unexpected trailing input")
	}
	return t, nil
}

// MustParseType is ParseType for literals known to be valid.
func MustParseType(src string) *TypeExpr {
	t, err := ParseType(src)
	if err != nil {
		panic(err)
	}
	return t
}

func (s *tokStream) parseType() (*TypeExpr, error) {
	t := s.peek()
	switch {
	case t.kind == tokPunct && t.text == "!":
		s.next()
		return &TypeExpr{Kind: TypeNever}, nil
	case t.kind == tokPunct && t.text == "&":
		s.next()
		if s.peek().kind == tokLifetime {
			s.next()
		}
		mut := s.accept("mut")
		elem, err := s.parseType()
		if err != nil {
			return nil, err
		}
		return &TypeExpr{Kind: TypeRef, Elem: elem, Mutable: mut}, nil
	case t.kind == tokPunct && t.text == "*":
		s.next()
		mut := false
		switch {
		case s.accept("mut"):
			mut = true
		case s.accept("const"):
		default:
			return nil, s.errorf("expected const or mut after *")
		}
		elem, err := s.parseType()
		if err != nil {
			return nil, err
		}
		return &TypeExpr{Kind: TypePtr, Elem: elem, Mutable: mut}, nil
	case t.kind == tokPunct && t.text == "[":
		return s.parseBracket()
	case t.kind == tokPunct && t.text == "(":
		return s.parseParen()
	case t.kind == tokNumber:
		s.next()
		return &TypeExpr{Kind: TypeConst, Len: t.text}, nil
	case t.kind == tokIdent && t.text == "_":
		s.next()
		return &TypeExpr{Kind: TypeInfer}, nil
	case t.kind == tokIdent && t.text == "dyn":
		s.next()
		bounds, err := s.parseBounds()
		if err != nil {
			return nil, err
		}
		return &TypeExpr{Kind: TypeTraitObject, Bounds: bounds}, nil
	case t.kind == tokIdent && t.text == "impl":
		s.next()
		bounds, err := s.parseBounds()
		if err != nil {
			return nil, err
		}
		return &TypeExpr{Kind: TypeImplTrait, Bounds: bounds}, nil
	case t.kind == tokIdent && (t.text == "fn" || t.text == "unsafe"):
		return s.parseFnPtr()
	case t.kind == tokIdent || (t.kind == tokPunct && t.text == "::"):
		p, err := s.parsePath()
		if err != nil {
			return nil, err
		}
		return &TypeExpr{Kind: TypePath, Path: p}, nil
	}
	return nil, s.errorf("expected type")
}

func (s *tokStream) parseBracket() (*TypeExpr, error) {
	s.next()
	elem, err := s.parseType()
	if err != nil {
		return nil, err
	}
	if s.accept("]") {
		return &TypeExpr{Kind: TypeSlice, Elem: elem}, nil
	}
	if err := s.expect(";"); err != nil {
		return nil, err
	}
	var parts []string
	depth := 0
	for {
		t := s.peek()
		if t.kind == tokEOF {
			return nil, s.errorf("unterminated array length")
		}
		if t.kind == tokPunct && t.text == "]" && depth == 0 {
			break
		}
		switch t.text {
		case "[", "(", "{":
			depth++
		case "]", ")", "}":
			depth--
		}
		parts = append(parts, t.text)
		s.next()
	}
	s.next()
	if len(parts) == 0 {
		return nil, s.errorf("missing array length")
	}
	return &TypeExpr{Kind: TypeArray, Elem: elem, Len: strings.Join(parts, " ")}, nil
}

func (s *tokStream) parseParen() (*TypeExpr, error) {
	s.next()
	var elems []*TypeExpr
	trailing := false
	for !s.is(")") {
		elem, err := s.parseType()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		trailing = false
		if !s.accept(",") {
			break
		}
		trailing = true
	}
	if err := s.expect(")"); err != nil {
		return nil, err
	}
	if len(elems) == 1 && !trailing {
		return elems[0], nil
	}
	return &TypeExpr{Kind: TypeTuple, Elems: elems}, nil
}

func (s *tokStream) parseFnPtr() (*TypeExpr, error) {
	s.accept("unsafe")
	if err := s.expect("fn"); err != nil {
		return nil, err
	}
	if err := s.expect("("); err != nil {
		return nil, err
	}
	var params []*TypeExpr
	for !s.is(")") {
		// named fn pointer params: fn(x: i32)
		if s.peek().kind == tokIdent && s.peekAt(1).text == ":" && s.peekAt(2).text != ":" {
			s.next()
			s.next()
		}
		p, err := s.parseType()
		if err != nil {
			return nil, err
		}
		params = append(params, p)
		if !s.accept(",") {
			break
		}
	}
	if err := s.expect(")"); err != nil {
		return nil, err
	}
	fn := &TypeExpr{Kind: TypeFnPtr, Elems: params}
	if s.accept("->") {
		ret, err := s.parseType()
		if err != nil {
			return nil, err
		}
		fn.Ret = ret
	}
	return fn, nil
}

func (s *tokStream) parseBounds() ([]Path, error) {
	var bounds []Path
	for {
		switch {
		case s.peek().kind == tokLifetime:
			s.next()
		case s.accept("?"):
			p, err := s.parsePath()
			if err != nil {
				return nil, err
			}
			p.Segments[0].Name = "?" + p.Segments[0].Name
			bounds = append(bounds, p)
		default:
			p, err := s.parsePath()
			if err != nil {
				return nil, err
			}
			bounds = append(bounds, p)
		}
		if !s.accept("+") {
			break
		}
	}
	if len(bounds) == 0 {
		return nil, s.errorf("expected trait bound")
	}
	return bounds, nil
}

func (s *tokStream) parsePath() (Path, error) {
	var p Path
	if s.accept("::") {
		p.Global = true
	}
	for {
		t := s.peek()
		if t.kind != tokIdent {
			return p, s.errorf("expected identifier in path")
		}
		s.next()
		seg := Segment{Name: t.text}
		// turbofish `::<` and plain `<` both open generic arguments
		if s.is("::") && s.peekAt(1).text == "<" {
			s.next()
		}
		switch {
		case s.is("<"):
			if err := s.parseGenericArgs(&seg); err != nil {
				return p, err
			}
		case s.is("(") && isFnTrait(seg.Name):
			if err := s.parseFnSugar(&seg); err != nil {
				return p, err
			}
		}
		p.Segments = append(p.Segments, seg)
		if s.is("::") && s.peekAt(1).kind == tokIdent {
			s.next()
			continue
		}
		return p, nil
	}
}

func isFnTrait(name string) bool {
	return name == "Fn" || name == "FnMut" || name == "FnOnce"
}

func (s *tokStream) parseGenericArgs(seg *Segment) error {
	s.next()
	for !s.is(">") {
		switch {
		case s.peek().kind == tokLifetime:
			s.next()
		case s.peek().kind == tokIdent && s.peekAt(1).text == "=":
			name := s.next().text
			s.next()
			ty, err := s.parseType()
			if err != nil {
				return err
			}
			seg.Bindings = append(seg.Bindings, Binding{Name: name, Type: ty})
		default:
			ty, err := s.parseType()
			if err != nil {
				return err
			}
			seg.Args = append(seg.Args, ty)
		}
		if !s.accept(",") {
			break
		}
	}
	return s.expect(">")
}

func (s *tokStream) parseFnSugar(seg *Segment) error {
	s.next()
	seg.Parenthesized = true
	for !s.is(")") {
		ty, err := s.parseType()
		if err != nil {
			return err
		}
		seg.Args = append(seg.Args, ty)
		if !s.accept(",") {
			break
		}
	}
	if err := s.expect(")"); err != nil {
		return err
	}
	if s.accept("->") {
		ret, err := s.parseType()
		if err != nil {
			return err
		}
		seg.Ret = ret
	}
	return nil
}
