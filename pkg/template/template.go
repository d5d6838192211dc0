package template

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/leapstack-labs/quill/pkg/directive"
	"github.com/leapstack-labs/quill/pkg/expr"
	"github.com/leapstack-labs/quill/pkg/format"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

// Template is a compiled, immutable template. It is safe for concurrent
// use; every render gets its own variables and loop status.
type Template struct {
	unit      *directive.Unit
	program   Program
	formatter format.Formatter
	filter    format.Filter
	templates directive.TemplateSource
}

var _ types.Renderable = (*Template)(nil)

func (t *Template) Name() string            { return t.unit.Name }
func (t *Template) Encoding() string        { return t.unit.Encoding }
func (t *Template) LastModified() time.Time { return t.unit.LastModified }
func (t *Template) Fingerprint() string     { return t.unit.Fingerprint }

// Parameters are the defined parameters in declaration order.
func (t *Template) Parameters() []directive.Variable { return t.unit.Parameters }

// Returns are the variables Execute reports back, in declaration order.
func (t *Template) Returns() []directive.Variable { return t.unit.Returns }

// Macros are the sub-templates extracted from this template.
func (t *Template) Macros() []directive.Macro { return t.unit.Macros }

// Unit is the compiled unit behind the template.
func (t *Template) Unit() *directive.Unit { return t.unit }

// Render renders the template to a string.
func (t *Template) Render(params map[string]any) (string, error) {
	var sb strings.Builder
	if _, err := t.Execute(&sb, params); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// RenderArgs renders with positional arguments bound to the parameters in
// declaration order.
func (t *Template) RenderArgs(args ...any) (string, error) {
	var sb strings.Builder
	if _, err := t.ExecuteArgs(&sb, args...); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ExecuteArgs is the streaming form of RenderArgs.
func (t *Template) ExecuteArgs(w io.Writer, args ...any) (map[string]any, error) {
	params, err := t.positional(args)
	if err != nil {
		return nil, err
	}
	return t.Execute(w, params)
}

func (t *Template) positional(args []any) (map[string]any, error) {
	if len(args) > len(t.unit.Parameters) {
		return nil, tplerr.NewRenderErrorf(tplerr.NoOffset, "%s takes %d arguments, got %d",
			t.unit.Name, len(t.unit.Parameters), len(args))
	}
	params := make(map[string]any, len(args))
	for i, a := range args {
		params[t.unit.Parameters[i].Name] = a
	}
	return params, nil
}

// Execute renders the template to w and returns the final values of the
// template's return variables. Output written before a failure stays
// written.
func (t *Template) Execute(w io.Writer, params map[string]any) (map[string]any, error) {
	vars, status, err := t.bind(params)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", t.unit.Name, err)
	}
	ctx := &directive.Context{
		Out:       w,
		Vars:      vars,
		Status:    status,
		Formatter: t.formatter,
		Filter:    t.filter,
		Templates: t.templates,
	}
	if err := t.program.Execute(ctx); err != nil {
		return nil, fmt.Errorf("render %s: %w", t.unit.Name, err)
	}

	returns := make(map[string]any, len(t.unit.Returns))
	for _, r := range t.unit.Returns {
		returns[r.Name] = vars[r.Name]
	}
	return returns, nil
}

// bind builds the variables of one render: locals at their zero values,
// then globals and parameters converted to their declared types. Unknown
// names are passed through for expressions typed as any.
func (t *Template) bind(params map[string]any) (expr.Vars, *expr.LoopStatus, error) {
	u := t.unit
	vars := make(expr.Vars, len(params)+len(u.Locals)+1)
	for k, v := range params {
		vars[k] = v
	}
	for _, l := range u.Locals {
		vars[l.Name] = types.Zero(l.Type)
	}
	for _, group := range [][]directive.Variable{u.Globals, u.Parameters} {
		for _, p := range group {
			v, err := types.Convert(params[p.Name], p.Type)
			if err != nil {
				return nil, nil, tplerr.WrapRenderError(tplerr.NoOffset, "parameter "+p.Name, err)
			}
			vars[p.Name] = v
		}
	}
	status := expr.NewLoopStatus()
	if u.StatusName != "" {
		vars[u.StatusName] = status
	}
	return vars, status, nil
}

func (t *Template) String() string { return t.unit.Name }
