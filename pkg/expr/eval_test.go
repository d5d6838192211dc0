package expr

import (
	"testing"

	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type account struct {
	Owner   string
	Balance float64
}

func (a *account) Display() string { return a.Owner + ": " + types.Text(a.Balance) }

func testVars() Vars {
	return Vars{
		"a":      7,
		"b":      2,
		"c":      -3,
		"x":      true,
		"y":      false,
		"name":   "quill",
		"price":  1.5,
		"items":  []string{"ant", "bee", "cat"},
		"scores": map[string]int{"alice": 3, "bob": 5},
		"data":   map[string]any{"size": 42, "acct": &account{Owner: "ann", Balance: 10}},
		"pair":   types.MapEntry{Key: "k", Value: 9},
	}
}

func eval(t *testing.T, input string, vars Vars) (any, error) {
	t.Helper()
	n, err := Parse(input, testEnv(), 0)
	require.NoError(t, err)
	return n.Eval(vars)
}

func TestEval(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{"1 + 2 * 3", 7},
		{"a / b", 3},
		{"a % b", 1},
		{"a / 2.0", 3.5},
		{"-c", 3},
		{"~0", -1},
		{"1L << 40", int64(1) << 40},
		{"2147483647 + 1", -2147483648},
		{"2147483647L + 1", int64(2147483648)},
		{"c >> 1", -2},
		{"-1 >>> 28", 15},
		{"a & 3 | 8", 11},
		{"x ^ y", true},
		{"x && !y", true},
		{"y || a > b", true},
		{"a >= 7 && name == \"quill\"", true},
		{"name != 'q'", true},
		{"name + a", "quill7"},
		{"'q' + \"uill\"", "quill"},
		{"x ? \"yes\" : \"no\"", "yes"},
		{"y ? 1 : 2L", int64(2)},
		{"(int) price", 1},
		{"(double) a / 2", 3.5},
		{"(string) 'c'", "c"},
		{"name.length()", 5},
		{"name[0]", 'q'},
		{"items.size", 3},
		{"items[1]", "bee"},
		{"items.get(2)", "cat"},
		{"items.contains(\"ant\")", true},
		{"items.isEmpty", false},
		{"scores.alice", 3},
		{"scores[\"bob\"]", 5},
		{"scores.keys", []any{"alice", "bob"}},
		{"scores.values", []any{3, 5}},
		{"scores.containsKey(\"carol\")", false},
		{"scores.get(\"carol\")", 0},
		{"pair.key + pair.value", "k9"},
		{"data.size", 42},
		{"data.acct.owner", "ann"},
		{"data.acct.display()", "ann: 10"},
		{"data.acct instanceof String", false},
		{"name instanceof String", true},
		{"1..4", []any{1, 2, 3, 4}},
		{"3..1", []any{3, 2, 1}},
		{"'a'..'c'", []any{'a', 'b', 'c'}},
		{`"Sat".."Mon"`, []any{"Sat", "Sun", "Mon"}},
		{"[1, 2, a]", []any{1, 2, 7}},
		{`["x": 1, "y": b]`, map[string]any{"x": 1, "y": 2}},
		{"[]", []any{}},
		{"new long", int64(0)},
		{"new int(price)", 1},
		{"upper(name)", "QUILL"},
		{"name.upper()", "QUILL"},
		{"max(a, b)", 7},
		{"first(items)", "ant"},
		{"size(scores)", 2},
		{"x ? name", "quill"},
		{"y ? name", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := eval(t, tt.input, testVars())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_ShortCircuit(t *testing.T) {
	// the right operand would fail with a division by zero
	got, err := eval(t, "y && a / 0 > 1", testVars())
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = eval(t, "x || a / 0 > 1", testVars())
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		vars  Vars
	}{
		{"division by zero", "a / 0", testVars()},
		{"index out of range", "items[5]", testVars()},
		{"member of null", "data.missing.size", testVars()},
		{"unknown dynamic member", "data.acct.nothing", testVars()},
		{"range overflowing int64", "(0L..-9223372036854775807L).length", testVars()},
		{"range too long", "0..2000000000", testVars()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval(t, tt.input, tt.vars)
			require.Error(t, err)
			var renderErr *tplerr.RenderError
			assert.ErrorAs(t, err, &renderErr)
		})
	}
}

func TestEval_MissingVariablesAreZero(t *testing.T) {
	got, err := eval(t, "a + 1", Vars{})
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = eval(t, "name + \"!\"", Vars{})
	require.NoError(t, err)
	assert.Equal(t, "!", got)
}

func TestEval_LoopStatus(t *testing.T) {
	status := NewLoopStatus()
	status.Push(2)
	status.Increment()
	status.Push(3)
	status.Increment()
	status.Increment()

	vars := Vars{"loop": status}
	tests := []struct {
		input string
		want  any
	}{
		{"loop.index", 1},
		{"loop.count", 2},
		{"loop.size", 3},
		{"loop.first", false},
		{"loop.even", true},
		{"loop.parent.first", true},
		{"loop.parent.size", 2},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := eval(t, tt.input, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	status.Increment()
	assert.True(t, status.Last())
	status.Pop()
	assert.Equal(t, 0, status.Index())
	assert.Equal(t, 1, status.Depth())
}

func TestTranslator(t *testing.T) {
	tr := NewTranslator(testEnv().Functions, DefaultSequences())
	vars := map[string]*types.Type{"count": types.Long, "label": types.String}

	e, err := tr.Translate("label + \": \" + count * 2", vars, 10)
	require.NoError(t, err)
	assert.Equal(t, types.String, e.Type())
	assert.Equal(t, []string{"label", "count"}, e.Variables())
	assert.Equal(t, 10, e.Offset)

	got, err := e.Evaluate(map[string]any{"label": "total", "count": 21})
	require.NoError(t, err)
	assert.Equal(t, "total: 42", got)

	_, err = e.Evaluate(map[string]any{"label": []int{1}})
	assert.Error(t, err)
}

func TestSequences(t *testing.T) {
	seqs := DefaultSequences()

	got, err := seqs.Sequence("Fri", "Mon")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fri", "Sat", "Sun", "Mon"}, got)

	got, err = seqs.Sequence("march", "may")
	require.NoError(t, err)
	assert.Equal(t, []string{"March", "April", "May"}, got)

	_, err = seqs.Sequence("Mon", "March")
	assert.Error(t, err)
}
