package diag

import "strings"

// Location names a declaration by its logical path rather than a source span.
type Location struct {
	Crate     string
	Module    string // dotted module path, "" for the crate root
	Item      string
	Construct string // offending type expression, field, variant or collaborator
	Line      int
}

// IsZero reports whether no part of the location is set.
func (l Location) IsZero() bool {
	return l == Location{}
}

// Path renders crate::module::item with empty parts omitted.
func (l Location) Path() string {
	parts := make([]string, 0, 4)
	if l.Crate != "" {
		parts = append(parts, l.Crate)
	}
	if l.Module != "" {
		parts = append(parts, strings.Split(l.Module, ".")...)
	}
	if l.Item != "" {
		parts = append(parts, l.Item)
	}
	return strings.Join(parts, "::")
}

func (l Location) String() string {
	s := l.Path()
	if s == "" {
		s = "<unknown>"
	}
	if l.Construct != "" {
		s += " (" + l.Construct + ")"
	}
	return s
}

type Note struct {
	Location Location
	Msg      string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Location Location
	Notes    []Note
}

func New(sev Severity, code Code, loc Location, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Location: loc,
		Message:  msg,
	}
}

func NewError(code Code, loc Location, msg string) Diagnostic {
	return New(SevError, code, loc, msg)
}

func NewInfo(code Code, loc Location, msg string) Diagnostic {
	return New(SevInfo, code, loc, msg)
}

func (d Diagnostic) WithNote(loc Location, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Location: loc, Msg: msg})
	return d
}
