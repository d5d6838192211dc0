package directive

import (
	"regexp"
	"strings"

	"github.com/leapstack-labs/quill/pkg/expr"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

var inPattern = regexp.MustCompile(`\s+in\s+`)

// Translator turns directive sites into fragments. It holds no state of
// its own; everything a template declares lives in its Scope.
type Translator struct {
	Expressions *expr.Translator
}

// NewTranslator creates a translator that compiles expressions with t.
func NewTranslator(t *expr.Translator) *Translator {
	return &Translator{Expressions: t}
}

func (t *Translator) expression(source string, offset int, scope *Scope) (*expr.Expression, error) {
	return t.Expressions.Translate(source, scope.vars, offset)
}

// OutputCode compiles an interpolation.
func (t *Translator) OutputCode(site Site, scope *Scope) (Fragment, error) {
	e, err := t.expression(site.Value, site.Offset, scope)
	if err != nil {
		return nil, err
	}
	if !e.Type().IsValue() {
		return nil, tplerr.NewTypeError(site.Offset, "cannot output a value of type %s", e.Type())
	}
	return &Output{Expr: e, Raw: site.Raw}, nil
}

// StatementCode compiles one directive. Block directives return a fragment
// with an empty body that the compiler fills until the matching end. For
// elseif and else the result is a Conditional holding only the new branch.
func (t *Translator) StatementCode(site Site, scope *Scope) (Fragment, error) {
	switch site.Name {
	case If, ElseIf:
		if site.Value == "" {
			return nil, tplerr.NewSyntaxError(site.Pos, "#%s requires a condition", site.Name)
		}
		cond, err := t.condition(site.Value, site.Offset, scope)
		if err != nil {
			return nil, err
		}
		return newConditional(site.Pos, cond), nil
	case Else:
		if site.Value != "" {
			return nil, tplerr.NewSyntaxError(site.Offset, "#else takes no condition")
		}
		return newConditional(site.Pos, nil), nil
	case Foreach:
		return t.foreach(site, scope)
	case BreakIfName:
		if site.Value == "" {
			return nil, tplerr.NewSyntaxError(site.Pos, "#breakif requires a condition")
		}
		if scope.loops == 0 {
			return nil, tplerr.NewSyntaxError(site.Pos, "#breakif outside of #foreach")
		}
		cond, err := t.condition(site.Value, site.Offset, scope)
		if err != nil {
			return nil, err
		}
		return &BreakIf{offset: site.Pos, Cond: cond}, nil
	case Set:
		return t.set(site, scope)
	case Define:
		return t.define(site, scope)
	case Block:
		name := site.Value
		if !isIdentifier(name) {
			return nil, tplerr.NewSyntaxError(site.Offset, "invalid block variable %q", name)
		}
		if old, ok := scope.Lookup(name); ok && !types.Equal(old, types.String) {
			return nil, tplerr.NewTypeError(site.Pos, "duplicate block variable %s, conflict types: %s, %s", name, old, types.String)
		}
		scope.declareLocal(name, types.String, true)
		return &CaptureBlock{offset: site.Pos, Var: name, Body: &Sequence{offset: site.Pos}}, nil
	case MacroName:
		name, _, err := splitMacro(site.Value, site.Offset)
		if err != nil {
			return nil, err
		}
		if old, ok := scope.Lookup(name); ok && !types.Equal(old, types.Template) {
			return nil, tplerr.NewTypeError(site.Pos, "duplicate macro variable %s, conflict types: %s, %s", name, old, types.Template)
		}
		key := scope.template + "#" + name
		scope.macros = append(scope.macros, Macro{Name: name, Key: key, Source: site.Body, Offset: site.Pos})
		scope.declareLocal(name, types.Template, true)
		return &MacroBind{offset: site.Pos, Var: name, Name: key}, nil
	}
	return nil, tplerr.NewSyntaxError(site.Pos, "unsupported directive %s", site.Name)
}

// StatementEndCode runs when the block opened by frag is closed.
func (t *Translator) StatementEndCode(frag Fragment, scope *Scope) error {
	if _, ok := frag.(*Loop); ok {
		scope.loops--
	}
	return nil
}

func newConditional(offset int, cond *expr.Expression) *Conditional {
	return &Conditional{
		offset:   offset,
		Branches: []*Branch{{Cond: cond, Body: &Sequence{offset: offset}}},
	}
}

func (t *Translator) condition(source string, offset int, scope *Scope) (*expr.Expression, error) {
	e, err := t.expression(source, offset, scope)
	if err != nil {
		return nil, err
	}
	if !e.Type().IsValue() {
		return nil, tplerr.NewTypeError(offset, "condition of type %s is not boolean-convertible", e.Type())
	}
	return e, nil
}

// splitDeclaration splits "Type name" at the last run of whitespace. A
// missing type yields fallback.
func splitDeclaration(decl string, offset int, fallback *types.Type) (*types.Type, string, error) {
	decl = strings.TrimSpace(decl)
	i := strings.LastIndexAny(decl, " \t\r\n")
	if i < 0 {
		if !isIdentifier(decl) {
			return nil, "", tplerr.NewSyntaxError(offset, "invalid variable name %q", decl)
		}
		return fallback, decl, nil
	}
	name := decl[i+1:]
	if !isIdentifier(name) {
		return nil, "", tplerr.NewSyntaxError(offset, "invalid variable name %q", name)
	}
	t, err := types.Parse(strings.TrimSpace(decl[:i]))
	if err != nil {
		return nil, "", tplerr.NewSyntaxError(offset, "%v", err)
	}
	return t, name, nil
}

func (t *Translator) foreach(site Site, scope *Scope) (Fragment, error) {
	loc := inPattern.FindStringIndex(site.Value)
	if loc == nil {
		return nil, tplerr.NewSyntaxError(site.Pos, "#foreach requires \"var in expression\"")
	}
	source, err := t.expression(site.Value[loc[1]:], site.Offset+loc[1], scope)
	if err != nil {
		return nil, err
	}

	var elem *types.Type
	st := source.Type()
	switch st.Kind {
	case types.KindArray, types.KindList:
		elem = st.Elem
		if v, ok := source.Root.(*expr.Variable); ok && elem.Kind == types.KindAny {
			if hint, ok := scope.Hint(v.Name, 0); ok {
				elem = hint
			}
		}
	case types.KindMap:
		elem = types.EntryOf(st.Key, st.Elem)
	case types.KindString:
		elem = types.Char
	case types.KindAny, types.KindNull:
		elem = types.Any
	default:
		return nil, tplerr.NewTypeError(source.Offset, "cannot iterate over %s", st)
	}

	declared, name, err := splitDeclaration(site.Value[:loc[0]], site.Offset, elem)
	if err != nil {
		return nil, err
	}
	if declared != elem && elem.Kind != types.KindAny && !types.AssignableTo(elem, declared) {
		return nil, tplerr.NewTypeError(site.Offset, "cannot iterate elements of type %s as %s", elem, declared)
	}
	if old, ok := scope.Lookup(name); ok && !types.Equal(old, declared) {
		return nil, tplerr.NewTypeError(site.Pos, "loop variable %s conflicts with earlier type %s, got %s", name, old, declared)
	}
	scope.declareLocal(name, declared, false)
	scope.loops++
	return &Loop{offset: site.Pos, Var: name, Type: declared, Source: source, Body: &Sequence{offset: site.Pos}}, nil
}

// assignIndex finds the "=" of a set value, skipping comparison operators.
func assignIndex(v string) int {
	for i := 0; i < len(v); i++ {
		if v[i] != '=' {
			continue
		}
		if i+1 < len(v) && v[i+1] == '=' {
			i++
			continue
		}
		if i > 0 && strings.IndexByte("!<>=", v[i-1]) >= 0 {
			continue
		}
		return i
	}
	return -1
}

func (t *Translator) set(site Site, scope *Scope) (Fragment, error) {
	eq := assignIndex(site.Value)
	if eq < 0 {
		return nil, tplerr.NewSyntaxError(site.Pos, "#set requires \"=\"")
	}
	value, err := t.expression(site.Value[eq+1:], site.Offset+eq+1, scope)
	if err != nil {
		return nil, err
	}
	vt := value.Type()
	if !vt.IsValue() {
		return nil, tplerr.NewTypeError(value.Offset, "cannot assign a value of type %s", vt)
	}
	inferred := vt
	if vt.Kind == types.KindNull {
		inferred = types.Any
	}
	declared, name, err := splitDeclaration(site.Value[:eq], site.Offset, inferred)
	if err != nil {
		return nil, err
	}
	if !assignable(vt, declared) {
		return nil, tplerr.NewTypeError(value.Offset, "cannot assign %s to %s %s", vt, declared, name)
	}
	if old, ok := scope.Lookup(name); ok && !types.Equal(old, declared) {
		return nil, tplerr.NewTypeError(site.Pos, "set different type value to variable %s, conflict types: %s, %s", name, old, declared)
	}
	scope.declareLocal(name, declared, true)
	return &Assign{offset: site.Pos, Var: name, Type: declared, Value: value}, nil
}

// assignable accepts what a set can store: assignable types, any values
// checked at run time and numeric conversions.
func assignable(src, dst *types.Type) bool {
	return types.AssignableTo(src, dst) || src.Kind == types.KindAny ||
		src.IsNumeric() && dst.IsNumeric()
}

func (t *Translator) define(site Site, scope *Scope) (Fragment, error) {
	if site.Value == "" {
		return nil, tplerr.NewSyntaxError(site.Pos, "#define requires parameters")
	}
	d := &Declare{offset: site.Pos}
	for _, part := range splitParams(site.Value, site.Offset) {
		pt, name, err := splitDeclaration(part.text, part.offset, types.String)
		if err != nil {
			return nil, err
		}
		if old, ok := scope.Lookup(name); ok && !types.Equal(old, pt) {
			return nil, tplerr.NewTypeError(part.offset, "duplicate parameter %s, conflict types: %s, %s", name, old, pt)
		}
		scope.declareParam(name, pt)
		d.Params = append(d.Params, Variable{Name: name, Type: pt})
	}
	return d, nil
}

type param struct {
	text   string
	offset int
}

// splitParams splits a parameter list at commas outside of generic
// brackets.
func splitParams(v string, offset int) []param {
	var out []param
	depth, start := 0, 0
	for i := 0; i <= len(v); i++ {
		if i < len(v) {
			switch v[i] {
			case '<':
				depth++
				continue
			case '>':
				depth--
				continue
			case ',':
				if depth > 0 {
					continue
				}
			default:
				continue
			}
		}
		if s := strings.TrimSpace(v[start:i]); s != "" {
			out = append(out, param{text: s, offset: offset + start + strings.Index(v[start:i], s)})
		}
		start = i + 1
	}
	return out
}
