package directive

import (
	"strconv"
	"time"
)

// Unit is a compiled template before it is handed to a backend.
type Unit struct {
	Name         string
	Encoding     string
	LastModified time.Time
	Source       string
	// Fingerprint identifies the unit by name, encoding and modification
	// time. Backends may use it to share compiled programs.
	Fingerprint string
	StatusName  string

	// Globals are the engine-wide variables, sorted by name.
	Globals []Variable
	// Parameters are the defined parameters in declaration order.
	Parameters []Variable
	// Returns are the variables assigned by set, block and macro.
	Returns []Variable
	// Locals are every variable introduced by the template itself.
	Locals []Variable
	// Texts is the deduplicated table of literal text.
	Texts  []string
	Macros []Macro
	Root   *Sequence
}

// Dump prints the fragment tree.
func (u *Unit) Dump() string {
	p := newPrinter()
	p.line("template", u.Name)
	p.indent()
	u.dumpVariables(p, "parameters", u.Parameters)
	u.dumpVariables(p, "globals", u.Globals)
	u.dumpVariables(p, "returns", u.Returns)
	u.dumpVariables(p, "locals", u.Locals)
	for _, m := range u.Macros {
		p.line("macro", m.Name, "->", m.Key)
	}
	p.dedent()
	for _, f := range u.Root.Items {
		f.dump(p)
	}
	return p.String()
}

func (u *Unit) dumpVariables(p *printer, label string, vs []Variable) {
	if len(vs) == 0 {
		return
	}
	p.write(label + ": ")
	p.formatList(len(vs), func(i int) { p.write(vs[i].String()) }, ", ")
	p.writeln()
}

func (s *Sequence) dump(p *printer) { p.body(s) }

func (l *Literal) dump(p *printer) {
	p.line("text#"+strconv.Itoa(l.Index), strconv.Quote(l.Text))
}

func (o *Output) dump(p *printer) {
	if o.Raw {
		p.line("output!", o.Expr.String())
		return
	}
	p.line("output", o.Expr.String())
}

func (c *Conditional) dump(p *printer) {
	for i, b := range c.Branches {
		switch {
		case i == 0:
			p.line("if", b.Cond.String())
		case b.Cond != nil:
			p.line("elseif", b.Cond.String())
		default:
			p.line("else")
		}
		p.body(b.Body)
	}
}

func (l *Loop) dump(p *printer) {
	p.line("foreach", l.Type.String(), l.Var, "in", l.Source.String())
	p.body(l.Body)
}

func (b *BreakIf) dump(p *printer) { p.line("breakif", b.Cond.String()) }

func (a *Assign) dump(p *printer) {
	p.line("set", a.Type.String(), a.Var, "=", a.Value.String())
}

func (d *Declare) dump(p *printer) {
	p.write("define ")
	p.formatList(len(d.Params), func(i int) { p.write(d.Params[i].String()) }, ", ")
	p.writeln()
}

func (c *CaptureBlock) dump(p *printer) {
	p.line("block", c.Var)
	p.body(c.Body)
}

func (m *MacroBind) dump(p *printer) { p.line("macro", m.Var, "->", m.Name) }
