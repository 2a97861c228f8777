package hir

import (
	"fmt"
	"io"
	"strings"
)

// Printer dumps a Pack in a stable text form.
type Printer struct {
	w      io.Writer
	indent int
	err    error
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Dump writes every crate of the pack in sorted order.
func Dump(w io.Writer, pack *Pack) error {
	p := NewPrinter(w)
	for i, c := range pack.Crates() {
		if i > 0 {
			p.printf("\n")
		}
		p.PrintCrate(c)
	}
	return p.err
}

// PrintCrate prints one crate module by module in walk order.
func (p *Printer) PrintCrate(c *Crate) {
	role := "dependency"
	if c.Primary {
		role = "primary"
	}
	p.printf("crate %s (%s)\n", c.Name, role)
	for _, path := range c.Order {
		p.printModule(c.Modules[path])
	}
}

func (p *Printer) printModule(m *Module) {
	name := "<root>"
	if m.Path != "" {
		name = m.Path
	}
	p.indent = 1
	p.line("mod %s [%s]", name, m.Vis)
	p.indent = 2
	for _, re := range m.Reexports {
		p.line("%s", formatEdge("use", re))
	}
	for _, re := range m.Imports {
		p.line("%s", formatEdge("import", re))
	}
	for _, it := range m.Items {
		p.printItem(it)
	}
}

func formatEdge(kw string, re Reexport) string {
	s := fmt.Sprintf("%s [%s] %s", kw, re.Vis, re.Decl)
	switch {
	case re.External:
		s += " -> <external>"
	case re.Target != nil:
		s += " -> " + re.Target.String()
	}
	return s
}

func (p *Printer) printItem(it *Item) {
	flags := ""
	if it.Bridged {
		flags = " bridged"
	}
	if it.Mirror != nil {
		flags += " mirror=" + it.Mirror.String()
	}
	switch it.Kind {
	case KindFunction:
		p.line("fn %s%s [%s]%s", ownerPrefix(it), it.Name, it.Vis, flags)
		p.printFunction(it.Func)
	case KindStructOrEnum:
		kw := "struct"
		if it.Data.IsEnum {
			kw = "enum"
		}
		p.line("%s %s%s [%s]%s", kw, it.Name, generics(it.Data.Generics), it.Vis, flags)
		p.printData(it.Data)
	case KindTypeAlias:
		p.line("type %s%s = %s [%s]", it.Name, generics(it.Alias.Generics), it.Alias.Target, it.Vis)
	}
}

func ownerPrefix(it *Item) string {
	if it.Func != nil && it.Func.Owner != nil {
		return it.Func.Owner.Name + "::"
	}
	return ""
}

func generics(gs []string) string {
	if len(gs) == 0 {
		return ""
	}
	return "<" + strings.Join(gs, ", ") + ">"
}

func (p *Printer) printFunction(f *Function) {
	p.indent++
	defer func() { p.indent-- }()
	var params []string
	if f.Receiver != "" {
		params = append(params, string(f.Receiver))
	}
	for _, prm := range f.Params {
		params = append(params, prm.Name+": "+prm.Type.String())
	}
	ret := "()"
	if f.Ret != nil {
		ret = f.Ret.String()
	}
	sig := fmt.Sprintf("(%s) -> %s", strings.Join(params, ", "), ret)
	if f.Fallible {
		errText := "<implicit>"
		if f.Err != nil {
			errText = f.Err.String()
		}
		sig += " ! " + errText
	}
	p.line("%s%s mode=%s", generics(f.Generics), sig, f.Mode)
}

func (p *Printer) printData(d *StructOrEnum) {
	p.indent++
	defer func() { p.indent-- }()
	if !d.IsEnum {
		p.printFields(d.Fields)
		return
	}
	for _, v := range d.Variants {
		p.line("variant %s (%s)", v.Name, v.Shape)
		p.indent++
		p.printFields(v.Fields)
		p.indent--
	}
}

func (p *Printer) printFields(fields []Field) {
	for _, f := range fields {
		p.line("%s: %s [%s]", f.Name, f.Type, f.Vis)
	}
}

func (p *Printer) line(format string, args ...any) {
	p.printf("%s", strings.Repeat("  ", p.indent))
	p.printf(format, args...)
	p.printf("\n")
}

func (p *Printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
