package raw

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokLifetime
	tokPunct
)

type tok struct {
	kind tokKind
	text string
	pos  int
}

// scan splits a type or use-tree expression into tokens. `>>` and `&&` are
// always split so the parser never has to undo a greedy match.
func scan(src string) ([]tok, error) {
	var out []tok
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '_' || unicode.IsLetter(r):
			start := i
			if r == 'r' && i+1 < len(src) && src[i+1] == '#' {
				i += 2
			}
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			out = append(out, tok{kind: tokIdent, text: src[start:i], pos: start})
		case unicode.IsDigit(r):
			start := i
			for i < len(src) && (isDigitByte(src[i]) || src[i] == '_' || isAlphaByte(src[i])) {
				i++
			}
			out = append(out, tok{kind: tokNumber, text: src[start:i], pos: start})
		case r == '\'':
			start := i
			i++
			for i < len(src) && (src[i] == '_' || isAlphaByte(src[i]) || isDigitByte(src[i])) {
				i++
			}
			out = append(out, tok{kind: tokLifetime, text: src[start:i], pos: start})
		case r == ':' && i+1 < len(src) && src[i+1] == ':':
			out = append(out, tok{kind: tokPunct, text: "::", pos: i})
			i += 2
		case r == '-' && i+1 < len(src) && src[i+1] == '>':
			out = append(out, tok{kind: tokPunct, text: "->", pos: i})
			i += 2
		case isPunct(r):
			out = append(out, tok{kind: tokPunct, text: string(r), pos: i})
			i += size
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d in %q", r, i, src)
		}
	}
	out = append(out, tok{kind: tokEOF, pos: len(src)})
	return out, nil
}

func isPunct(r rune) bool {
	switch r {
	case '<', '>', '&', '*', '[', ']', '(', ')', ',', ';', '+', '!', '=', '{', '}', ':', '-', '?':
		return true
	}
	return false
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

func isAlphaByte(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }

type tokStream struct {
	src  string
	toks []tok
	pos  int
}

func newTokStream(src string) (*tokStream, error) {
	toks, err := scan(src)
	if err != nil {
		return nil, err
	}
	return &tokStream{src: src, toks: toks}, nil
}

func (s *tokStream) peek() tok { return s.toks[s.pos] }

func (s *tokStream) peekAt(n int) tok {
	if s.pos+n >= len(s.toks) {
		return s.toks[len(s.toks)-1]
	}
	return s.toks[s.pos+n]
}

func (s *tokStream) next() tok {
	t := s.toks[s.pos]
	if t.kind != tokEOF {
		s.pos++
	}
	return t
}

func (s *tokStream) is(text string) bool {
	t := s.peek()
	return (t.kind == tokPunct || t.kind == tokIdent) && t.text == text
}

func (s *tokStream) accept(text string) bool {
	if s.is(text) {
		s.pos++
		return true
	}
	return false
}

func (s *tokStream) expect(text string) error {
	if s.accept(text) {
		return nil
	}
	return s.errorf("expected %q", text)
}

func (s *tokStream) errorf(format string, args ...any) error {
	t := s.peek()
	found := t.text
	if t.kind == tokEOF {
		found = "end of input"
	}
	return &SyntaxError{Input: s.src, Offset: t.pos, Msg: fmt.Sprintf(format, args...) + ", found " + found}
}

// SyntaxError reports a malformed type or use-tree expression.
type SyntaxError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %q at offset %d: %s", e.Input, e.Offset, e.Msg)
}
