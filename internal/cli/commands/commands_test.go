package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/quill/internal/cli/output"
	"github.com/leapstack-labs/quill/internal/cli/testutil"
	"github.com/leapstack-labs/quill/pkg/directive"
	"github.com/leapstack-labs/quill/pkg/engine"
	"github.com/leapstack-labs/quill/pkg/format"
	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		name  string
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{name: "render", cmd: NewRenderCommand(), use: "render <template>", flags: []string{"param", "params", "format", "out"}},
		{name: "eval", cmd: NewEvalCommand(), use: "eval <expression>", flags: []string{"var", "vars"}},
		{name: "repl", cmd: NewREPLCommand(), use: "repl"},
		{name: "list", cmd: NewListCommand(), use: "list"},
		{name: "functions", cmd: NewFunctionsCommand(), use: "functions", flags: []string{"ns"}},
		{name: "check", cmd: NewCheckCommand(), use: "check"},
		{name: "dump", cmd: NewDumpCommand(), use: "dump <template>"},
		{name: "serve", cmd: NewServeCommand(), use: "serve", flags: []string{"addr", "watch"}},
		{name: "db", cmd: NewDBCommand(), use: "db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestDBCommand_Subcommands(t *testing.T) {
	cmd := NewDBCommand()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"migrate", "put", "delete"}, names)

	del, _, err := cmd.Find([]string{"rm"})
	require.NoError(t, err)
	assert.Equal(t, "delete", del.Name())
}

func TestBindParams(t *testing.T) {
	declared := []directive.Variable{
		{Name: "count", Type: types.Int},
		{Name: "loud", Type: types.Bool},
		{Name: "name", Type: types.String},
	}
	file := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(file, []byte("count: 2\nname: Ada\nextra: [1, 2]\n"), 0o600))

	tests := []struct {
		name        string
		file        string
		assignments []string
		want        map[string]any
		wantErr     bool
	}{
		{
			name:        "typed assignments",
			assignments: []string{"count=0x10", "loud=true", "name=Ada"},
			want:        map[string]any{"count": 16, "loud": true, "name": "Ada"},
		},
		{
			name:        "undeclared stays text",
			assignments: []string{"other=7"},
			want:        map[string]any{"other": "7"},
		},
		{
			name:        "assignment overrides file",
			file:        file,
			assignments: []string{"count=5"},
			want:        map[string]any{"count": 5, "name": "Ada", "extra": []any{1, 2}},
		},
		{name: "bad number", assignments: []string{"count=many"}, wantErr: true},
		{name: "missing value", assignments: []string{"count"}, wantErr: true},
		{name: "missing file", file: filepath.Join(t.TempDir(), "nope.yaml"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bindParams(declared, tt.file, tt.assignments)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTypedVar(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantType string
		want     any
		wantErr  bool
	}{
		{input: "name=Ada", wantName: "name", wantType: "string", want: "Ada"},
		{input: "n:int=42", wantName: "n", wantType: "int", want: 42},
		{input: "ok : Boolean=false", wantName: "ok", wantType: "bool", want: false},
		{input: "x:double=1.5", wantName: "x", wantType: "double", want: 1.5},
		{input: "empty=", wantName: "empty", wantType: "string", want: ""},
		{input: "n:int=abc", wantErr: true},
		{input: "n:nosuch=1", wantErr: true},
		{input: "=1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := parseTypedVar(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, v.Name)
			assert.Equal(t, tt.wantType, v.Type.String())
			assert.Equal(t, tt.want, v.Value)
		})
	}
}

func TestBindVars(t *testing.T) {
	file := filepath.Join(t.TempDir(), "vars.yaml")
	require.NoError(t, os.WriteFile(file, []byte("title: Report\nmissing: null\n"), 0o600))

	decl, values, err := bindVars(file, []string{"n:int=3"})
	require.NoError(t, err)

	assert.Equal(t, types.String, decl["title"])
	assert.Equal(t, types.Any, decl["missing"])
	assert.Equal(t, types.Int, decl["n"])
	assert.Equal(t, map[string]any{"title": "Report", "missing": nil, "n": 3}, values)
}

func TestConvert(t *testing.T) {
	out, err := convert("<h1>Title</h1>", "raw")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Title</h1>", out)

	out, err = convert("<h1>Title</h1><p>Some <strong>bold</strong> text</p>", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "**bold**")

	_, err = convert("x", "pdf")
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	e := engine.New()
	f := format.NewFormatter()

	tests := []struct {
		name     string
		source   string
		decl     map[string]*types.Type
		values   map[string]any
		wantType string
		wantText string
		wantErr  bool
	}{
		{name: "arithmetic", source: "1 + 2 * 3", wantType: "int", wantText: "7"},
		{name: "variable", source: "n * 2", decl: map[string]*types.Type{"n": types.Int}, values: map[string]any{"n": 21}, wantType: "int", wantText: "42"},
		{name: "function", source: "upper(s)", decl: map[string]*types.Type{"s": types.String}, values: map[string]any{"s": "ada"}, wantType: "string", wantText: "ADA"},
		{name: "comparison", source: "2 > 1", wantType: "bool", wantText: "true"},
		{name: "undeclared", source: "missing + 1", wantErr: true},
		{name: "type mismatch", source: "1 + true", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluate(e, f, tt.source, tt.decl, tt.values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantText, got.Text)
		})
	}
}

func newTestRenderer() (*output.Renderer, *bytes.Buffer, *bytes.Buffer) {
	tr := testutil.NewTestRendererText()
	return tr.Renderer, tr.Out, tr.ErrOut
}

func TestSession(t *testing.T) {
	r, out, errOut := newTestRenderer()
	s := newSession(engine.New(), format.NewFormatter(), r)

	assert.True(t, s.handle(""))
	assert.True(t, s.handle(".set n:int=20"))
	assert.True(t, s.handle("n + 22"))
	assert.Contains(t, out.String(), "42")
	assert.Contains(t, out.String(), "int")

	out.Reset()
	assert.True(t, s.handle(".vars"))
	assert.Contains(t, out.String(), "int n = 20")

	assert.True(t, s.handle(".unset n"))
	assert.True(t, s.handle("n + 1"))
	assert.NotEmpty(t, errOut.String())

	errOut.Reset()
	assert.True(t, s.handle(".set n:int=x"))
	assert.NotEmpty(t, errOut.String())

	errOut.Reset()
	assert.True(t, s.handle(".bogus"))
	assert.Contains(t, errOut.String(), "Unknown command")

	out.Reset()
	assert.True(t, s.handle(".functions"))
	assert.Contains(t, out.String(), "upper(")

	assert.False(t, s.handle(".quit"))
	assert.False(t, s.handle(".EXIT"))
}

func TestListTemplates(t *testing.T) {
	e := engine.New()
	e.AddTemplate("add.txt", "#define(int a, int b)${a + b}")
	e.AddTemplate("bad.txt", "#define(int a)${a +}")

	got, err := listTemplates(e)
	require.NoError(t, err)

	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Templates, 2)

	assert.Equal(t, "add.txt", got.Templates[0].Name)
	assert.Equal(t, []string{"int a", "int b"}, got.Templates[0].Parameters)
	assert.Empty(t, got.Templates[0].Error)

	assert.Equal(t, "bad.txt", got.Templates[1].Name)
	assert.NotEmpty(t, got.Templates[1].Error)

	md := testutil.NewTestRendererMarkdown()
	listMarkdown(got, md.Renderer)
	assert.Contains(t, md.Output(), "## add.txt")
	assert.Contains(t, md.Output(), "int a, int b")
	testutil.AssertValidMarkdown(t, md.Output())
	testutil.AssertNoANSI(t, md.Output())
}

func TestDescribeFunctions(t *testing.T) {
	reg := funcs.NewRegistry()
	shout := &funcs.Function{
		Namespace: "text",
		Name:      "shout",
		Params:    []*types.Type{types.String},
		Result:    types.String,
		Doc:       "Upper-cases s.\n\nMore detail.",
		Call:      func(args []any) (any, error) { return args[0], nil },
	}
	require.NoError(t, reg.RegisterFunc("double", func(n int) int { return n * 2 }))
	require.NoError(t, reg.Register(shout))

	all := describeFunctions(reg, []*funcs.Function{shout}, "")
	require.Len(t, all, 2)

	byName := map[string]FunctionInfo{}
	for _, f := range all {
		byName[f.Name] = f
	}
	assert.Equal(t, SourceBuiltin, byName["double"].Source)
	assert.Equal(t, SourceStarlark, byName["text.shout"].Source)
	assert.Equal(t, "text.shout(string) string", byName["text.shout"].Signature)

	only := describeFunctions(reg, []*funcs.Function{shout}, "text")
	require.Len(t, only, 1)
	assert.Equal(t, "text.shout", only[0].Name)

	assert.Equal(t, "Upper-cases s.", firstLine(shout.Doc))
	assert.Equal(t, "one line", firstLine("one line"))
}

func TestCheckTemplates(t *testing.T) {
	e := engine.New()
	e.AddTemplate("good.txt", "#define(int a)${a}")
	e.AddTemplate("bad.txt", "#define(int a)\n${a +}")

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	got, err := checkTemplates(cmd, e)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Compiled)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Diagnostics, 1)

	d := got.Diagnostics[0]
	assert.Equal(t, "bad.txt", d.Template)
	assert.Equal(t, 2, d.Line)
	assert.NotEmpty(t, d.Message)

	r, _, errOut := newTestRenderer()
	printDiagnostic(r, d)
	assert.Contains(t, errOut.String(), "bad.txt:2:")
}

func TestDiagnose(t *testing.T) {
	notFound := tplerr.NewResourceError("gone.html", os.ErrNotExist)
	d := diagnose(notFound)
	assert.Equal(t, "gone.html", d.Template)
	assert.Zero(t, d.Line)
	assert.NotEmpty(t, d.Message)
}
