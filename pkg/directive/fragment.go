package directive

import (
	"errors"
	"io"
	"strings"

	"github.com/leapstack-labs/quill/pkg/expr"
	"github.com/leapstack-labs/quill/pkg/format"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

// Fragment is one node of a compiled template. Executing the root fragment
// renders the template.
type Fragment interface {
	Offset() int
	Execute(ctx *Context) error
	dump(p *printer)
}

// TemplateSource resolves the sub-templates bound by macro directives.
type TemplateSource interface {
	Template(name string) (types.Renderable, error)
}

// Context is the state of one render.
type Context struct {
	Out       io.Writer
	Vars      expr.Vars
	Status    *expr.LoopStatus
	Formatter format.Formatter
	// Filter is applied to interpolated values unless they are raw.
	Filter    format.Filter
	Templates TemplateSource
}

// errBreak unwinds to the innermost loop.
var errBreak = errors.New("breakif outside of a loop")

func (c *Context) write(offset int, s string) error {
	if s == "" {
		return nil
	}
	if _, err := io.WriteString(c.Out, s); err != nil {
		return tplerr.WrapRenderError(offset, "write", err)
	}
	return nil
}

func (c *Context) eval(e *expr.Expression) (any, error) {
	return e.Root.Eval(c.Vars)
}

// Sequence runs its items in order.
type Sequence struct {
	offset int
	Items  []Fragment
}

func (s *Sequence) Offset() int { return s.offset }

func (s *Sequence) Execute(ctx *Context) error {
	for _, f := range s.Items {
		if err := f.Execute(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequence) append(f Fragment) { s.Items = append(s.Items, f) }

// Literal writes an entry of the unit's text table.
type Literal struct {
	offset int
	Index  int
	Text   string
}

func (l *Literal) Offset() int { return l.offset }

func (l *Literal) Execute(ctx *Context) error { return ctx.write(l.offset, l.Text) }

// Output writes a formatted expression value.
type Output struct {
	Expr *expr.Expression
	Raw  bool
}

func (o *Output) Offset() int { return o.Expr.Offset }

func (o *Output) Execute(ctx *Context) error {
	v, err := ctx.eval(o.Expr)
	if err != nil {
		return err
	}
	var s string
	if ctx.Formatter != nil {
		s = ctx.Formatter.Format(v)
	} else {
		s = types.Text(v)
	}
	if !o.Raw && ctx.Filter != nil {
		s = ctx.Filter.Filter(s)
	}
	return ctx.write(o.Expr.Offset, s)
}

// Branch is one arm of a Conditional. Else branches have no condition.
type Branch struct {
	Cond *expr.Expression
	Body *Sequence
}

// Conditional runs the first branch whose condition holds.
type Conditional struct {
	offset   int
	Branches []*Branch
}

func (c *Conditional) Offset() int { return c.offset }

func (c *Conditional) Execute(ctx *Context) error {
	for _, b := range c.Branches {
		if b.Cond != nil {
			v, err := ctx.eval(b.Cond)
			if err != nil {
				return err
			}
			if !types.Truthy(v) {
				continue
			}
		}
		return b.Body.Execute(ctx)
	}
	return nil
}

func (c *Conditional) hasElse() bool {
	n := len(c.Branches)
	return n > 0 && c.Branches[n-1].Cond == nil
}

// Loop runs its body once per element of Source with Var bound to the
// element. The loop status is pushed for the duration of the loop.
type Loop struct {
	offset int
	Var    string
	Type   *types.Type
	Source *expr.Expression
	Body   *Sequence
}

func (l *Loop) Offset() int { return l.offset }

func (l *Loop) Execute(ctx *Context) error {
	v, err := ctx.eval(l.Source)
	if err != nil {
		return err
	}
	items, err := types.Iterate(v)
	if err != nil {
		return tplerr.WrapRenderError(l.Source.Offset, "foreach", err)
	}
	ctx.Status.Push(len(items))
	defer ctx.Status.Pop()
	for _, item := range items {
		ctx.Status.Increment()
		if item, err = types.Convert(item, l.Type); err != nil {
			return tplerr.WrapRenderError(l.offset, "foreach "+l.Var, err)
		}
		ctx.Vars[l.Var] = item
		if err := l.Body.Execute(ctx); err != nil {
			if errors.Is(err, errBreak) {
				break
			}
			return err
		}
	}
	return nil
}

// BreakIf leaves the innermost loop when its condition holds.
type BreakIf struct {
	offset int
	Cond   *expr.Expression
}

func (b *BreakIf) Offset() int { return b.offset }

func (b *BreakIf) Execute(ctx *Context) error {
	v, err := ctx.eval(b.Cond)
	if err != nil {
		return err
	}
	if types.Truthy(v) {
		return errBreak
	}
	return nil
}

// Assign binds Var to the value of an expression.
type Assign struct {
	offset int
	Var    string
	Type   *types.Type
	Value  *expr.Expression
}

func (a *Assign) Offset() int { return a.offset }

func (a *Assign) Execute(ctx *Context) error {
	v, err := ctx.eval(a.Value)
	if err != nil {
		return err
	}
	if v, err = types.Convert(v, a.Type); err != nil {
		return tplerr.WrapRenderError(a.offset, "set "+a.Var, err)
	}
	ctx.Vars[a.Var] = v
	return nil
}

// Declare converts template parameters to their declared types.
type Declare struct {
	offset int
	Params []Variable
}

func (d *Declare) Offset() int { return d.offset }

func (d *Declare) Execute(ctx *Context) error {
	for _, p := range d.Params {
		v, err := types.Convert(ctx.Vars[p.Name], p.Type)
		if err != nil {
			return tplerr.WrapRenderError(d.offset, "parameter "+p.Name, err)
		}
		ctx.Vars[p.Name] = v
	}
	return nil
}

// CaptureBlock renders its body into a buffer and binds the text to Var.
type CaptureBlock struct {
	offset int
	Var    string
	Body   *Sequence
}

func (c *CaptureBlock) Offset() int { return c.offset }

func (c *CaptureBlock) Execute(ctx *Context) error {
	var buf strings.Builder
	out := ctx.Out
	ctx.Out = &buf
	err := c.Body.Execute(ctx)
	ctx.Out = out
	if err != nil && !errors.Is(err, errBreak) {
		return err
	}
	ctx.Vars[c.Var] = buf.String()
	return err
}

// MacroBind binds Var to a handle on the sub-template Name.
type MacroBind struct {
	offset int
	Var    string
	Name   string
}

func (m *MacroBind) Offset() int { return m.offset }

func (m *MacroBind) Execute(ctx *Context) error {
	ctx.Vars[m.Var] = &macroHandle{name: m.Name, source: ctx.Templates}
	return nil
}

// macroHandle resolves its template on first use, so a macro costs nothing
// until it is called.
type macroHandle struct {
	name   string
	source TemplateSource
}

func (h *macroHandle) RenderArgs(args ...any) (string, error) {
	if h.source == nil {
		return "", tplerr.NewRenderErrorf(tplerr.NoOffset, "macro %s is not available outside an engine", h.name)
	}
	t, err := h.source.Template(h.name)
	if err != nil {
		return "", err
	}
	return t.RenderArgs(args...)
}

func (h *macroHandle) String() string { return h.name }
