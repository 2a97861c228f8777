package mir

import (
	"fmt"
	"io"
	"strings"

	"bridgegen/internal/types"
)

// Dump writes a stable text form of the document: functions, then records,
// enums and opaque types, each in identifier order.
func Dump(w io.Writer, d *Document) error {
	p := &printer{w: w, doc: d}
	p.printf("document %s\n", strings.Join(d.Crates, ", "))
	for _, f := range d.Funcs {
		p.printFunc(f)
	}
	for _, r := range d.Records {
		p.printf("record %s %s [%s] native=%s\n", r.Ident.Key, r.Ident.Symbol, r.Own, r.Native)
		for _, fl := range r.Fields {
			p.printf("  %s: %s\n", fl.Name, p.value(fl.Value))
		}
	}
	for _, e := range d.Enums {
		p.printf("enum %s %s [%s] native=%s\n", e.Ident.Key, e.Ident.Symbol, e.Own, e.Native)
		for _, v := range e.Variants {
			p.printf("  %s (%s)\n", v.Name, v.Shape)
			for _, fl := range v.Fields {
				p.printf("    %s: %s\n", fl.Name, p.value(fl.Value))
			}
		}
	}
	for _, o := range d.Opaques {
		p.printf("opaque %s %s native=%s\n", o.Ident.Key, o.Ident.Symbol, o.Native)
	}
	for _, dg := range d.Diagnostics {
		p.printf("note %s %s: %s\n", dg.Code.ID(), dg.Location, dg.Message)
	}
	return p.err
}

type printer struct {
	w   io.Writer
	doc *Document
	err error
}

func (p *printer) printFunc(f *Func) {
	params := make([]string, len(f.Params))
	for i, prm := range f.Params {
		params[i] = prm.Name + ": " + p.value(prm.Value)
	}
	sig := fmt.Sprintf("(%s) -> %s", strings.Join(params, ", "), p.value(f.Ret))
	if f.Err != nil {
		sig += " ! " + p.value(*f.Err)
	}
	p.printf("fn %s %s %s mode=%s path=%s\n", f.Ident.Key, f.Ident.Symbol, sig, f.Mode, f.Path)
}

func (p *printer) value(v Value) string {
	return fmt.Sprintf("%s[%s]", types.Label(p.doc.Types, v.Type), v.Own)
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
