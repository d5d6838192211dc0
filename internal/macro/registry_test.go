package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/quill/internal/testutil"
	"github.com/leapstack-labs/quill/pkg/engine"
	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/types"
)

const textStar = `
def shout(s):
    """Upper-cases s and adds a bang."""
    return s.upper() + "!"

def pad(s, width = 6):
    return " " * (width - len(s)) + s

def slug(*parts):
    return "-".join([p.lower() for p in parts])

loud = shout
twice = lambda s: s + s
version = "1.0"
`

func TestRegister(t *testing.T) {
	dir := writeFiles(t, map[string]string{"text.star": textStar})
	reg := funcs.NewRegistry()

	registered, err := LoadAndRegister(dir, reg, Options{Logger: testutil.NewTestLogger(t), MaxSteps: 10000})
	require.NoError(t, err)

	var names []string
	for _, f := range registered {
		names = append(names, f.QualifiedName())
	}
	assert.Equal(t, []string{"text.loud", "text.pad", "text.shout", "text.slug", "text.twice"}, names)
	assert.True(t, reg.HasNamespace("text"))

	tests := []struct {
		name     string
		fn       string
		args     []*types.Type
		accepted bool
	}{
		{name: "exact", fn: "text.shout", args: []*types.Type{types.String}, accepted: true},
		{name: "too many", fn: "text.shout", args: []*types.Type{types.String, types.String}},
		{name: "default omitted", fn: "text.pad", args: []*types.Type{types.String}, accepted: true},
		{name: "default given", fn: "text.pad", args: []*types.Type{types.String, types.Int}, accepted: true},
		{name: "varargs empty", fn: "text.slug", accepted: true},
		{name: "alias", fn: "text.loud", args: []*types.Type{types.String}, accepted: true},
		{name: "lambda", fn: "text.twice", args: []*types.Type{types.String}, accepted: true},
		{name: "lambda arity", fn: "text.twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := reg.Resolve(tt.fn, tt.args)
			assert.Equal(t, tt.accepted, ok)
		})
	}

	shout, ok := reg.Resolve("text.shout", []*types.Type{types.String})
	require.True(t, ok)
	assert.Equal(t, "Upper-cases s and adds a bang.", shout.Doc)
}

func TestRegister_Templates(t *testing.T) {
	dir := writeFiles(t, map[string]string{"text.star": textStar})
	reg := funcs.NewDefaultRegistry()
	_, err := LoadAndRegister(dir, reg, Options{})
	require.NoError(t, err)

	e := engine.New(engine.WithFunctions(reg), engine.WithLogger(testutil.NewTestLogger(t)))
	e.AddTemplate("page", `#define(String name)${text.shout(name)}|${text.pad(name)}|${text.slug("A", name)}`)

	tpl, err := e.GetTemplate("page")
	require.NoError(t, err)
	out, err := tpl.Render(map[string]any{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "BOB!|   Bob|a-bob", out)
}

func TestRegister_CallFailure(t *testing.T) {
	dir := writeFiles(t, map[string]string{"text.star": textStar})
	reg := funcs.NewDefaultRegistry()
	_, err := LoadAndRegister(dir, reg, Options{})
	require.NoError(t, err)

	e := engine.New(engine.WithFunctions(reg))
	e.AddTemplate("page", `#define(int n)${text.shout(n)}`)
	tpl, err := e.GetTemplate("page")
	require.NoError(t, err)
	_, err = tpl.Render(map[string]any{"n": 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text.shout")
}

func TestLoadAndRegister_MissingDir(t *testing.T) {
	reg := funcs.NewRegistry()
	registered, err := LoadAndRegister(t.TempDir()+"/none", reg, Options{})
	require.NoError(t, err)
	assert.Empty(t, registered)
	assert.Equal(t, 0, reg.Len())
}
