package starlark

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/quill/internal/testutil"
	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/types"
)

const callSource = `
def shout(s):
    """Upper-cases s."""
    return s.upper() + "!"

def pair(a, b = 2):
    return struct(first = a, second = b)

def spin():
    n = 0
    for i in range(100000000):
        n += i
    return n

def boom():
    fail("nope")

def prefix():
    return constants["prefix"]
`

func load(t *testing.T) starlark.StringDict {
	t.Helper()
	predeclared, err := Predeclared(map[string]any{"prefix": "p-"})
	require.NoError(t, err)
	globals, err := starlark.ExecFileOptions(syntax.LegacyFileOptions(), &starlark.Thread{Name: "load"}, "test.star", callSource, predeclared)
	require.NoError(t, err)
	return globals
}

func TestCaller_Call(t *testing.T) {
	globals := load(t)
	c := NewCaller(NewThreadPool(2, testutil.NewTestLogger(t)), 10000)

	got, err := c.Call("shout", globals["shout"].(starlark.Callable), []any{"hi"})
	require.NoError(t, err)
	assert.Equal(t, "HI!", got)

	got, err = c.Call("pair", globals["pair"].(starlark.Callable), []any{int64(1)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"first": int64(1), "second": int64(2)}, got)

	got, err = c.Call("prefix", globals["prefix"].(starlark.Callable), nil)
	require.NoError(t, err)
	assert.Equal(t, "p-", got)
}

func TestCaller_Errors(t *testing.T) {
	globals := load(t)
	c := NewCaller(nil, 1000)

	tests := []struct {
		name    string
		fn      string
		args    []any
		message string
	}{
		{name: "fail", fn: "boom", message: "nope"},
		{name: "step limit", fn: "spin", message: "too many steps"},
		{name: "arity", fn: "shout", args: []any{"a", "b"}, message: "shout"},
		{name: "argument", fn: "shout", args: []any{make(chan int)}, message: "argument 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Call(tt.fn, globals[tt.fn].(starlark.Callable), tt.args)
			require.Error(t, err)
			var ce *CallError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.fn, ce.Function)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCaller_StepsAreBoundedPerCall(t *testing.T) {
	globals := load(t)
	pool := NewThreadPool(1, nil)
	c := NewCaller(pool, 500)
	shout := globals["shout"].(starlark.Callable)

	for i := 0; i < 100; i++ {
		_, err := c.Call("shout", shout, []any{"x"})
		require.NoError(t, err, "call %d", i)
	}
}

func TestCaller_Function(t *testing.T) {
	globals := load(t)
	c := NewCaller(nil, 0)

	f := c.Function("text", "shout", globals["shout"].(starlark.Callable), Signature{Required: 1, Doc: "Upper-cases s."})
	assert.Equal(t, "text.shout", f.QualifiedName())
	assert.Equal(t, "Upper-cases s.", f.Doc)
	assert.True(t, f.Accepts([]*types.Type{types.String}))
	assert.False(t, f.Accepts([]*types.Type{types.String, types.Int}))

	pair := c.Function("text", "pair", globals["pair"].(starlark.Callable), Signature{Required: 1, Optional: true})
	assert.True(t, pair.Accepts([]*types.Type{types.Int}))
	assert.True(t, pair.Accepts([]*types.Type{types.Int, types.Int}))

	reg := funcs.NewRegistry()
	require.NoError(t, reg.Register(f))
	resolved, ok := reg.Resolve("text.shout", []*types.Type{types.String})
	require.True(t, ok)
	got, err := resolved.Call([]any{"go"})
	require.NoError(t, err)
	assert.Equal(t, "GO!", got)

	_, err = resolved.Call([]any{1})
	var ce *CallError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, "text.shout", ce.Function)
}

func TestPredeclared(t *testing.T) {
	predeclared, err := Predeclared(nil)
	require.NoError(t, err)
	assert.Contains(t, predeclared, "struct")
	assert.Contains(t, predeclared, "module")

	_, err = starlark.ExecFileOptions(syntax.LegacyFileOptions(), &starlark.Thread{}, "frozen.star", `constants["x"] = 1`, predeclared)
	assert.Error(t, err, "constants are frozen")

	_, err = Predeclared(map[string]any{"bad": struct{}{}})
	assert.Error(t, err)
}
