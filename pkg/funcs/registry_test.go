package funcs

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/quill/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FirstMatchWins(t *testing.T) {
	r := NewRegistry()
	narrow := fn("describe", params(types.Int), types.String, func([]any) (any, error) { return "int", nil })
	wide := fn("describe", params(types.Double), types.String, func([]any) (any, error) { return "double", nil })
	anything := fn("describe", params(types.Any), types.String, func([]any) (any, error) { return "any", nil })
	require.NoError(t, r.Register(narrow, wide, anything))

	got, ok := r.Resolve("describe", []*types.Type{types.Byte})
	require.True(t, ok)
	assert.Same(t, narrow, got)

	got, ok = r.Resolve("describe", []*types.Type{types.Float})
	require.True(t, ok)
	assert.Same(t, wide, got)

	got, ok = r.Resolve("describe", []*types.Type{types.String})
	require.True(t, ok)
	assert.Same(t, anything, got)

	_, ok = r.Resolve("describe", []*types.Type{types.Int, types.Int})
	assert.False(t, ok)
	_, ok = r.Resolve("missing", nil)
	assert.False(t, ok)
}

func TestRegistry_Namespaces(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Function{
		Namespace: "datetime",
		Name:      "now",
		Result:    types.Any,
		Call:      func([]any) (any, error) { return nil, nil },
	}))

	assert.True(t, r.HasNamespace("datetime"))
	assert.False(t, r.HasNamespace("math"))
	assert.True(t, r.Has("datetime.now"))
	_, ok := r.Resolve("datetime.now", nil)
	assert.True(t, ok)
	assert.Equal(t, []string{"datetime"}, r.Namespaces())
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry()

	err := r.Register(&Function{Call: func([]any) (any, error) { return nil, nil }})
	var regErr *RegistryError
	require.True(t, errors.As(err, &regErr))

	err = r.Register(&Function{Name: "noop"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "noop")
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Clone(t *testing.T) {
	r := NewDefaultRegistry()
	c := r.Clone()
	require.NoError(t, c.RegisterFunc("extra", func() string { return "x" }))

	assert.Equal(t, r.Len()+1, c.Len())
	assert.False(t, r.Has("extra"))
}

func TestFunction_Signature(t *testing.T) {
	f := fn("pad", params(types.String, types.Int), types.String, nil)
	f.Variadic = types.String
	assert.Equal(t, "pad(string, int, ...string) string", f.Signature())
}

func TestFromGo(t *testing.T) {
	f, err := FromGo("greet", func(name string, times int) string {
		out := ""
		for i := 0; i < times; i++ {
			out += "hi " + name + ";"
		}
		return out
	})
	require.NoError(t, err)
	assert.Equal(t, []*types.Type{types.String, types.Int}, f.Params)
	assert.Equal(t, types.String, f.Result)

	got, err := f.Call([]any{"bob", int64(2)})
	require.NoError(t, err)
	assert.Equal(t, "hi bob;hi bob;", got)
}

func TestFromGo_VariadicAndErrors(t *testing.T) {
	f, err := FromGo("sum", func(xs ...float64) (float64, error) {
		if len(xs) == 0 {
			return 0, errors.New("nothing to sum")
		}
		total := 0.0
		for _, x := range xs {
			total += x
		}
		return total, nil
	})
	require.NoError(t, err)
	assert.Empty(t, f.Params)
	assert.Equal(t, types.Double, f.Variadic)
	assert.True(t, f.Accepts([]*types.Type{types.Int, types.Double}))

	got, err := f.Call([]any{1, 2.5})
	require.NoError(t, err)
	assert.Equal(t, 3.5, got)

	_, err = f.Call(nil)
	assert.EqualError(t, err, "nothing to sum")
}

func TestFromGo_Slices(t *testing.T) {
	f, err := FromGo("count", func(items []string) int { return len(items) })
	require.NoError(t, err)
	assert.True(t, types.Equal(types.ListOf(types.String), f.Params[0]))

	got, err := f.Call([]any{[]any{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	_, err = f.Call([]any{[]any{1}})
	assert.Error(t, err)
}

func TestFromGo_Rejects(t *testing.T) {
	_, err := FromGo("x", 42)
	assert.Error(t, err)

	_, err = FromGo("x", func() {})
	assert.Error(t, err)

	_, err = FromGo("x", func() error { return nil })
	assert.Error(t, err)
}

func TestBuiltins(t *testing.T) {
	r := NewDefaultRegistry()

	call := func(name string, argTypes []*types.Type, args ...any) any {
		t.Helper()
		f, ok := r.Resolve(name, argTypes)
		require.True(t, ok, "no match for %s%v", name, argTypes)
		got, err := f.Call(args)
		require.NoError(t, err)
		return got
	}

	assert.Equal(t, "HELLO", call("upper", []*types.Type{types.String}, "hello"))
	assert.Equal(t, "Hello World", call("title", []*types.Type{types.String}, "hello world"))
	assert.Equal(t, "ell", call("substring", []*types.Type{types.String, types.Int, types.Int}, "hello", 1, 4))
	assert.Equal(t, "llo", call("substring", []*types.Type{types.String, types.Int}, "hello", 2))
	assert.Equal(t, true, call("contains", []*types.Type{types.String, types.String}, "hello", "ell"))
	assert.Equal(t, true, call("contains", []*types.Type{types.ListOf(types.Int), types.Int}, []int{1, 2}, 2))
	assert.Equal(t, "a-b", call("join", []*types.Type{types.ListOf(types.String), types.String}, []string{"a", "b"}, "-"))
	assert.Equal(t, int64(3), call("abs", []*types.Type{types.Int}, -3))
	assert.Equal(t, 2.5, call("abs", []*types.Type{types.Double}, -2.5))
	assert.Equal(t, "&lt;b&gt;", call("escape", []*types.Type{types.String}, "<b>"))
	assert.Equal(t, []any{3, 2, 1}, call("reverse", []*types.Type{types.ListOf(types.Int)}, []int{1, 2, 3}))
	assert.Equal(t, []any{"a", "b"}, call("keys", []*types.Type{types.MapOf(types.String, types.Int)}, map[string]int{"b": 1, "a": 2}))

	f, ok := r.Resolve("first", []*types.Type{types.ListOf(types.String)})
	require.True(t, ok)
	assert.Equal(t, types.String, f.ResultType([]*types.Type{types.ListOf(types.String)}))

	f, ok = r.Resolve("max", []*types.Type{types.Int, types.Int})
	require.True(t, ok)
	assert.Equal(t, types.Int, f.ResultType([]*types.Type{types.Int, types.Int}))
}
