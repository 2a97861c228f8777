package codegen

import (
	"fmt"
	"strings"
)

// emitter accumulates indented source lines.
type emitter struct {
	sb    strings.Builder
	depth int
	unit  string
}

// line writes s at the current depth; an empty s writes a blank line.
func (e *emitter) line(s string) {
	if s == "" {
		e.sb.WriteByte('\n')
		return
	}
	e.sb.WriteString(strings.Repeat(e.unit, e.depth))
	e.sb.WriteString(s)
	e.sb.WriteByte('\n')
}

func (e *emitter) linef(format string, args ...any) {
	e.line(fmt.Sprintf(format, args...))
}

// open writes a line and indents what follows.
func (e *emitter) open(s string) {
	e.line(s)
	e.depth++
}

func (e *emitter) openf(format string, args ...any) {
	e.open(fmt.Sprintf(format, args...))
}

// close dedents and writes the closing line.
func (e *emitter) close(s string) {
	e.depth--
	e.line(s)
}

func (e *emitter) bytes() []byte { return []byte(e.sb.String()) }
