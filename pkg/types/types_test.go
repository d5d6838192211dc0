package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  *Type
	}{
		{"int", Int},
		{"Integer", Int},
		{"String", String},
		{"boolean", Bool},
		{"Object", Any},
		{"String[]", ArrayOf(String)},
		{"[]int", ArrayOf(Int)},
		{"int[][]", ArrayOf(ArrayOf(Int))},
		{"List", ListOf(Any)},
		{"List<String>", ListOf(String)},
		{"java.util.List<Long>", ListOf(Long)},
		{"Map<String, List<int>>", MapOf(String, ListOf(Int))},
		{"map", MapOf(Any, Any)},
		{"Entry<String,int>", EntryOf(String, Int)},
		{"Template", Template},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{"", "Foo", "List<", "Map<String>", "List<int,int>", "int x"} {
		_, err := Parse(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "map<string,list<int>>", MapOf(String, ListOf(Int)).String())
	assert.Equal(t, "string[]", ArrayOf(String).String())
	assert.Equal(t, "(int, string)", TupleOf(Int, String).String())
}

func TestAssignableTo(t *testing.T) {
	tests := []struct {
		src, dst *Type
		want     bool
	}{
		{Int, Long, true},
		{Long, Int, false},
		{Byte, Double, true},
		{Char, Int, true},
		{Int, Char, false},
		{Null, String, true},
		{Null, Int, false},
		{Any, Int, true},
		{String, Any, true},
		{String, Int, false},
		{ListOf(Int), ListOf(Any), true},
		{ListOf(String), ListOf(Int), false},
		{ArrayOf(String), ListOf(String), true},
		{MapOf(String, Int), MapOf(String, Long), true},
		{TupleOf(Int), Int, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AssignableTo(tt.src, tt.dst), "%s -> %s", tt.src, tt.dst)
	}
}

func TestPromote(t *testing.T) {
	assert.Equal(t, Int, Promote(Byte, Short))
	assert.Equal(t, Long, Promote(Int, Long))
	assert.Equal(t, Double, Promote(Float, Double))
	assert.Equal(t, Float, Promote(Long, Float))
	assert.Equal(t, Any, Promote(Any, Int))
	assert.Equal(t, Int, PromoteUnary(Char))
}

func TestCommon(t *testing.T) {
	assert.True(t, Equal(String, Common(String, Null)))
	assert.True(t, Equal(Double, Common(Int, Double)))
	assert.True(t, Equal(Any, Common(String, Int)))
	assert.True(t, Equal(ListOf(Any), Common(ListOf(String), ListOf(Int))))
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		v    any
		t    *Type
		want any
	}{
		{"int to long", 5, Long, int64(5)},
		{"int64 to int", int64(7), Int, 7},
		{"int64 narrows to int", int64(1)<<32 + 5, Int, 5},
		{"float to int", 2.9, Int, 2},
		{"int to double", 3, Double, float64(3)},
		{"nil to int", nil, Int, 0},
		{"nil to string", nil, String, nil},
		{"string to char", "x", Char, 'x'},
		{"bytes to string", []byte("hi"), String, "hi"},
		{"slice to list", []string{"a"}, ListOf(String), []string{"a"}},
		{"any passes through", struct{}{}, Any, struct{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.v, tt.t)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Convert("x", Int)
	assert.Error(t, err)
	_, err = Convert(1, Bool)
	assert.Error(t, err)
	_, err = Convert(map[string]int{}, ListOf(Any))
	assert.Error(t, err)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(0))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy([]int{}))
	assert.False(t, Truthy(map[string]int{}))
	assert.True(t, Truthy(-1))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy(0.5))
	assert.True(t, Truthy(struct{}{}))
}

func TestEqualAndCompare(t *testing.T) {
	assert.True(t, EqualValues(1, int64(1)))
	assert.True(t, EqualValues(1, 1.0))
	assert.True(t, EqualValues("a", "a"))
	assert.True(t, EqualValues('a', "a"))
	assert.False(t, EqualValues(nil, 0))
	assert.True(t, EqualValues([]int{1}, []int{1}))

	c, err := Compare(2, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = Compare("a", "b")
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	_, err = Compare("a", 1)
	assert.Error(t, err)
}

func TestIterate(t *testing.T) {
	got, err := Iterate(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, []any{MapEntry{"a", 1}, MapEntry{"b", 2}}, got)

	got, err = Iterate([]string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y"}, got)

	got, err = Iterate("hé")
	require.NoError(t, err)
	assert.Equal(t, []any{'h', 'é'}, got)

	got, err = Iterate(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Iterate(42)
	assert.Error(t, err)
}

func TestOf(t *testing.T) {
	assert.Equal(t, Int, Of(3))
	assert.Equal(t, Long, Of(int64(3)))
	assert.Equal(t, Char, Of('x'))
	assert.Equal(t, String, Of("x"))
	assert.Equal(t, KindList, Of([]string{}).Kind)
	assert.Equal(t, KindMap, Of(map[string]any{}).Kind)
	assert.Equal(t, Null, Of(nil))
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		typ     *Type
		want    any
		wantErr bool
	}{
		{"hello", String, "hello", false},
		{"hello", Any, "hello", false},
		{"true", Bool, true, false},
		{"yes", Bool, nil, true},
		{" 42 ", Int, 42, false},
		{"0x10", Long, int64(16), false},
		{"7", Byte, int8(7), false},
		{"300", Byte, nil, true},
		{"5000000000", Int, nil, true},
		{"5000000000", Long, int64(5000000000), false},
		{"4.5", Double, 4.5, false},
		{"4.5", Float, float32(4.5), false},
		{"x", Char, 'x', false},
		{"xy", Char, nil, true},
		{"four", Int, nil, true},
		{"a,b", ListOf(String), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String()+"/"+tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in, tt.typ)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
