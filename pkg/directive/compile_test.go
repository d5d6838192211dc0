package directive

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/quill/pkg/expr"
	"github.com/leapstack-labs/quill/pkg/format"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

// execute renders u the way the interpreter backend does.
func execute(u *Unit, vars expr.Vars, src TemplateSource) (string, error) {
	if vars == nil {
		vars = expr.Vars{}
	}
	for _, l := range u.Locals {
		if _, ok := vars[l.Name]; !ok {
			vars[l.Name] = types.Zero(l.Type)
		}
	}
	var sb strings.Builder
	ctx := &Context{
		Out:       &sb,
		Vars:      vars,
		Status:    expr.NewLoopStatus(),
		Formatter: format.NewFormatter(),
		Filter:    format.HTMLEscape,
		Templates: src,
	}
	vars[u.StatusName] = ctx.Status
	err := u.Root.Execute(ctx)
	return sb.String(), err
}

func compile(t *testing.T, source string, vars map[string]*types.Type) *Unit {
	t.Helper()
	u, err := Compile("page", source, Options{Variables: vars})
	require.NoError(t, err)
	return u
}

func render(t *testing.T, u *Unit, vars expr.Vars) string {
	t.Helper()
	out, err := execute(u, vars, nil)
	require.NoError(t, err)
	return out
}

func TestCompile_Render(t *testing.T) {
	tests := []struct {
		name   string
		source string
		vars   expr.Vars
		want   string
	}{
		{
			name:   "interpolation",
			source: "Hello ${name}",
			vars:   expr.Vars{"name": "World"},
			want:   "Hello World",
		},
		{
			name:   "value filter",
			source: "${s}|$!{s}",
			vars:   expr.Vars{"s": "<b>"},
			want:   "&lt;b&gt;|<b>",
		},
		{
			name:   "loop status",
			source: "#define(List<String> xs)#foreach(x in xs)${foreach.index}:${x}#if(!foreach.last),#end#end",
			vars:   expr.Vars{"xs": []string{"a", "b", "c"}},
			want:   "0:a,1:b,2:c",
		},
		{
			name:   "breakif",
			source: "#foreach(i in 1..5)#breakif(i > 3)${i}#end",
			want:   "123",
		},
		{
			name:   "set accumulates",
			source: "#set(int total = 0)#foreach(i in 1..3)#set(total = total + i)#end${total}",
			want:   "6",
		},
		{
			name:   "block capture",
			source: "#block(header)<h1>${name}</h1>#end$!{header}$!{header}",
			vars:   expr.Vars{"name": "T"},
			want:   "<h1>T</h1><h1>T</h1>",
		},
		{
			name:   "map entries",
			source: "#define(Map<String,int> m)#foreach(e in m)${e.key}=${e.value};#end",
			vars:   expr.Vars{"m": map[string]int{"b": 2, "a": 1}},
			want:   "a=1;b=2;",
		},
		{
			name:   "typed loop variable",
			source: "#foreach(long n in [1, 2])${n + 1}#end",
			want:   "23",
		},
		{
			name:   "nested if continues inner chain",
			source: "#define(bool a, bool b)#if(a)#if(b)AB#else()A#end#else()none#end",
			vars:   expr.Vars{"a": true, "b": false},
			want:   "A",
		},
		{
			name:   "else attaches after closed if",
			source: "#define(int n)#if(n > 0)pos#end #else()nonpos#end",
			vars:   expr.Vars{"n": 0},
			want:   "nonpos",
		},
		{
			name:   "string iteration",
			source: "#foreach(c in \"ab\")[${c}]#end",
			want:   "[a][b]",
		},
		{
			name:   "missing parameter is zero",
			source: "#define(int n, String s)${n}${s}.",
			want:   "0.",
		},
	}
	globals := map[string]*types.Type{"name": types.String, "s": types.String}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := compile(t, tt.source, globals)
			assert.Equal(t, tt.want, render(t, u, tt.vars))
		})
	}
}

func TestCompile_Conditional(t *testing.T) {
	sources := map[string]string{
		"inline": "#define(int n)#if(n > 0)pos#elseif(n == 0)zero#else()neg#end",
		"markup": `<q:define value="int n"/><q:if test="n > 0">pos</q:if><q:elseif test="n == 0">zero</q:elseif><q:else>neg</q:else>`,
	}
	for name, source := range sources {
		t.Run(name, func(t *testing.T) {
			var loc Locator = NewInline()
			if name == "markup" {
				loc = NewMarkup(DefaultNamespace)
			}
			u, err := Compile("page", source, Options{Locator: loc})
			require.NoError(t, err)
			assert.Equal(t, "pos", render(t, u, expr.Vars{"n": 1}))
			assert.Equal(t, "zero", render(t, u, expr.Vars{"n": 0}))
			assert.Equal(t, "neg", render(t, u, expr.Vars{"n": -1}))
		})
	}
}

func TestCompile_MarkupIfElse(t *testing.T) {
	u, err := Compile("page", `<q:if test="n>0">pos</q:if><q:else>nonpos</q:else>`, Options{
		Locator:   NewMarkup(DefaultNamespace),
		Variables: map[string]*types.Type{"n": types.Int},
	})
	require.NoError(t, err)
	assert.Equal(t, "pos", render(t, u, expr.Vars{"n": 1}))
	assert.Equal(t, "nonpos", render(t, u, expr.Vars{"n": 0}))
	assert.Equal(t, "nonpos", render(t, u, expr.Vars{"n": -1}))
}

func TestCompile_MarkupAttributes(t *testing.T) {
	src := `<ul><li foreach="u in users" if="u.active">${u.name}</li></ul>`
	u, err := Compile("page", src, Options{
		Locator:   NewMarkup(DefaultNamespace),
		Variables: map[string]*types.Type{"users": types.MustParse("List<Map<String,any>>")},
	})
	require.NoError(t, err)

	users := []map[string]any{
		{"name": "ann", "active": true},
		{"name": "bob", "active": false},
		{"name": "cy", "active": true},
	}
	assert.Equal(t, "<ul><li>ann</li><li>cy</li></ul>", render(t, u, expr.Vars{"users": users}))
}

func TestCompile_TextTable(t *testing.T) {
	u := compile(t, "#define(bool a)x#if(a)x#end", nil)
	assert.Equal(t, []string{"x"}, u.Texts)

	var lits []*Literal
	lits = append(lits, u.Root.Items[1].(*Literal))
	lits = append(lits, u.Root.Items[2].(*Conditional).Branches[0].Body.Items[0].(*Literal))
	for _, l := range lits {
		assert.Equal(t, 0, l.Index)
	}
}

func TestCompile_TextFilter(t *testing.T) {
	u, err := Compile("page", "a   b\n\n  c${x}", Options{
		TextFilter: format.Compress,
		Variables:  map[string]*types.Type{"x": types.String},
	})
	require.NoError(t, err)
	assert.Equal(t, "a b\nc  y ", render(t, u, expr.Vars{"x": "  y "}))
}

func TestCompile_Declarations(t *testing.T) {
	u := compile(t, "#define(String a, List<Map<String, int>> rows, n)#set(x = 1)#block(b)#end#macro(m)#end", nil)

	assert.Equal(t, []Variable{
		{Name: "a", Type: types.String},
		{Name: "rows", Type: types.MustParse("List<Map<String,int>>")},
		{Name: "n", Type: types.String},
	}, u.Parameters)

	var returns []string
	for _, r := range u.Returns {
		returns = append(returns, r.Name)
	}
	assert.Equal(t, []string{"x", "b", "m"}, returns)

	require.Len(t, u.Macros, 1)
	assert.Equal(t, "page#m", u.Macros[0].Key)
}

func TestCompile_GenericHint(t *testing.T) {
	u := compile(t, "#define(List<Map<String,int>> rows)#foreach(r in rows)${r.size}#end", nil)
	loop := u.Root.Items[1].(*Loop)
	assert.True(t, types.Equal(types.MustParse("Map<String,int>"), loop.Type))
}

// unitSource serves compiled macros to MacroBind handles.
type unitSource map[string]*Unit

type unitTemplate struct {
	unit *Unit
	src  unitSource
}

func (t unitTemplate) RenderArgs(args ...any) (string, error) {
	vars := expr.Vars{}
	for i, a := range args {
		vars[t.unit.Parameters[i].Name] = a
	}
	return execute(t.unit, vars, t.src)
}

func (s unitSource) Template(name string) (types.Renderable, error) {
	u, ok := s[name]
	if !ok {
		return nil, tplerr.NewResourceError(name, nil)
	}
	return unitTemplate{unit: u, src: s}, nil
}

func TestCompile_Macro(t *testing.T) {
	u := compile(t, `#macro(greet(String who))Hi ${who}#end${greet("Bob")}, ${greet("Ann")}`, nil)
	require.Len(t, u.Macros, 1)
	m := u.Macros[0]
	assert.Equal(t, "greet", m.Name)
	assert.Equal(t, "#define(String who)Hi ${who}", m.Source)

	sub, err := Compile(m.Key, m.Source, Options{})
	require.NoError(t, err)

	out, err := execute(u, nil, unitSource{m.Key: sub})
	require.NoError(t, err)
	assert.Equal(t, "Hi Bob, Hi Ann", out)

	_, err = execute(u, nil, nil)
	var re *tplerr.RenderError
	assert.True(t, errors.As(err, &re))
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		locator Locator
		syntax  bool
		msg     string
	}{
		{name: "undefined variable", source: "ab ${unknown}", msg: `undefined variable`},
		{name: "empty if", source: "#if()x#end", syntax: true, msg: "#if requires a condition"},
		{name: "else with value", source: "#if(true)a#else(x)b#end", syntax: true, msg: "#else takes no condition"},
		{name: "unparented elseif", source: "#elseif(true)x#end", syntax: true, msg: "without matching #if"},
		{name: "stray end", source: "x#end", syntax: true, msg: "#end without matching directive"},
		{name: "unclosed if", source: "#if(true)x", syntax: true, msg: "unclosed #if"},
		{name: "breakif outside loop", source: "#breakif(true)", syntax: true, msg: "outside of #foreach"},
		{name: "set without assignment", source: "#set(x)", syntax: true, msg: `requires "="`},
		{name: "conflicting set", source: `#set(int x = 1)#set(String x = "a")`, msg: "conflict types"},
		{name: "incompatible set", source: `#set(int x = "a")`, msg: "cannot assign"},
		{name: "not iterable", source: "#define(int n)#foreach(x in n)#end", msg: "cannot iterate over int"},
		{name: "foreach without in", source: "#foreach(x of xs)#end", syntax: true, msg: "requires"},
		{name: "bad block name", source: "#block(1x)#end", syntax: true, msg: "invalid block variable"},
		{name: "else after else", source: "#if(true)a#else b#elseif(false)c#end", syntax: true, msg: "after #else"},
		{name: "tuple condition", source: "#if(1, 2)x#end", msg: "not boolean-convertible"},
		{name: "tuple output", source: "${1, 2}", msg: "cannot output"},
		{
			name:   "conflicting foreach variable",
			source: "#define(int x, List<String> names)#foreach(String x in names)${x}#end${x + 1}",
			msg:    "loop variable x conflicts",
		},
		{name: "conflicting block", source: "#set(int b = 1)#block(b)#end", msg: "duplicate block variable"},
		{
			name:    "text before else",
			source:  `<q:if test="true">x</q:if>text<q:else>y</q:else>`,
			locator: NewMarkup(DefaultNamespace),
			syntax:  true,
			msg:     "invalid text before #else",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("page", tt.source, Options{Locator: tt.locator})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			if tt.syntax {
				var se *tplerr.SyntaxError
				assert.True(t, errors.As(err, &se), "want SyntaxError, got %T: %v", err, err)
			} else {
				var te *tplerr.TypeError
				assert.True(t, errors.As(err, &te), "want TypeError, got %T: %v", err, err)
			}
		})
	}
}

func TestCompile_ErrorOffset(t *testing.T) {
	_, err := Compile("page", "ab ${unknown}", Options{})
	require.Error(t, err)
	assert.Equal(t, 5, tplerr.OffsetOf(err))

	_, err = Compile("page", "line\n#if(n >)x#end", Options{Variables: map[string]*types.Type{"n": types.Int}})
	require.Error(t, err)
	assert.Greater(t, tplerr.OffsetOf(err), 5)
}

func TestCompile_RenderError(t *testing.T) {
	u := compile(t, "ok ${10 / n}", map[string]*types.Type{"n": types.Int})
	out, err := execute(u, expr.Vars{"n": 0}, nil)
	require.Error(t, err)

	var re *tplerr.RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "ok ", out, "output written before the failure stays")
}

func TestUnit_Dump(t *testing.T) {
	u := compile(t, "#define(int n)#if(n > 0)pos#else()#foreach(i in 1..n)${i}#end#end", nil)
	dump := u.Dump()

	assert.Contains(t, dump, "template page\n")
	assert.Contains(t, dump, "parameters: int n\n")
	assert.Contains(t, dump, "if (n > 0)\n")
	assert.Contains(t, dump, "  text#0 \"pos\"\n")
	assert.Contains(t, dump, "else\n")
	assert.Contains(t, dump, "  foreach int i in (1 .. n)\n")
	assert.Contains(t, dump, "    output i\n")
}
