package token

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(tokens []Token) []string {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Text
	}
	return out
}

func TestScan(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"arithmetic", "1 + 2 * 3", []string{"1", "+", "2", "*", "3"}},
		{"no spaces", "a+b*c", []string{"a", "+", "b", "*", "c"}},
		{"member access", "user.name.length()", []string{"user", ".name", ".length", "(", ")"}},
		{"number member", "123.toString", []string{"123", ".toString"}},
		{"decimal", "1.5 + .5", []string{"1.5", "+", ".5"}},
		{"suffixes", "10L + 2.5f + 3d", []string{"10L", "+", "2.5f", "+", "3d"}},
		{"range", "1..10", []string{"1", "..", "10"}},
		{"word range", "a..b", []string{"a", "..", "b"}},
		{"strings", `"a b" + 'c' + ` + "`d`", []string{`"a b"`, "+", `'c'`, "+", "`d`"}},
		{"escapes", `"say \"hi\"" + 'it\'s'`, []string{`"say \"hi\""`, "+", `'it\'s'`}},
		{"back quote escape", "`a\\`b`", []string{"`a\\`b`"}},
		{"call", "max(a, -1)", []string{"max", "(", "a", ",", "-", "1", ")"}},
		{"operator run split", "a<-1", []string{"a", "<", "-", "1"}},
		{"comma minus", "f(1,-2)", []string{"f", "(", "1", ",", "-", "2", ")"}},
		{"shift", "a >>> 2", []string{"a", ">>>", "2"}},
		{"comparison", "a!=b&&c>=d", []string{"a", "!=", "b", "&&", "c", ">=", "d"}},
		{"ternary", "a ? b : c", []string{"a", "?", "b", ":", "c"}},
		{"index", "list[0]", []string{"list", "[", "0", "]"}},
		{"cast", "(int) x", []string{"(", "int", ")", "x"}},
		{"not not", "!!a", []string{"!", "!", "a"}},
		{"empty", "   ", nil},
		{"unicode ident", "größe + 1", []string{"größe", "+", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Scan(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, texts(tokens))
		})
	}
}

func TestScan_Offsets(t *testing.T) {
	tokens, err := Scan("  foo +\tbar.baz")
	require.NoError(t, err)
	require.Len(t, tokens, 4)

	assert.Equal(t, Token{Text: "foo", Offset: 2, Class: Word}, tokens[0])
	assert.Equal(t, Token{Text: "+", Offset: 6, Class: Operator}, tokens[1])
	assert.Equal(t, Token{Text: "bar", Offset: 8, Class: Word}, tokens[2])
	assert.Equal(t, Token{Text: ".baz", Offset: 11, Class: Word}, tokens[3])
}

func TestScan_Classes(t *testing.T) {
	tokens, err := Scan(`x 12 .5 "s" ( + # .size`)
	require.NoError(t, err)

	var classes []Class
	for _, tok := range tokens {
		classes = append(classes, tok.Class)
	}
	assert.Equal(t, []Class{Word, Number, Number, StringLiteral, Bracket, Operator, Unknown, Word}, classes)
}

func TestScan_Deterministic(t *testing.T) {
	input := `list[i].name + "x" * (3.0d - foo(1, 'c')) >= 10L ? a : b`
	first, err := Scan(input)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Scan(input)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestScan_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		offset int
	}{
		{"quote after word", `abc"d"`, 3},
		{"quote after number", `12'x'`, 2},
		{"unterminated double", `a + "open`, 4},
		{"unterminated single", `'x`, 0},
		{"dangling escape", "`abc\\", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(tt.input)
			require.Error(t, err)

			var lexErr *tplerr.LexicalError
			require.True(t, errors.As(err, &lexErr), "expected *LexicalError, got %T", err)
			assert.Equal(t, tt.offset, lexErr.Offset())
		})
	}
}

func TestIsName(t *testing.T) {
	assert.True(t, IsName("foo"))
	assert.True(t, IsName("_x1"))
	assert.False(t, IsName("1x"))
	assert.False(t, IsName("a.b"))
	assert.False(t, IsName(""))
}
