package format

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/quill/pkg/types"
)

func TestFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		input  string
		want   string
	}{
		{"identity", Identity, "<b> a  b", "<b> a  b"},
		{"html", HTMLEscape, `<a href="x">&</a>`, "&lt;a href=&#34;x&#34;&gt;&amp;&lt;/a&gt;"},
		{"compress spaces", Compress, "a \t  b", "a b"},
		{"compress lines", Compress, "<ul>\n    <li>x</li>\n\n</ul>", "<ul>\n<li>x</li>\n</ul>"},
		{"chain order", Chain(Compress, HTMLEscape), "<p>  x</p>", "&lt;p&gt; x&lt;/p&gt;"},
		{"empty chain", Chain(), "a  b", "a  b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Filter(tt.input))
		})
	}
}

func TestByName(t *testing.T) {
	f, err := ByName("compress, html")
	require.NoError(t, err)
	assert.Equal(t, "&lt;p&gt; x", f.Filter("<p>   x"))

	f, err = ByName("none")
	require.NoError(t, err)
	assert.Equal(t, "<p>", f.Filter("<p>"))

	_, err = ByName("gzip")
	assert.Error(t, err)
}

type celsius float64

func (c celsius) String() string { return "warm" }

func TestFormatter(t *testing.T) {
	f := NewFormatter()
	when := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "hi", "hi"},
		{"bool", true, "true"},
		{"int", 1234567, "1234567"},
		{"long", int64(-5), "-5"},
		{"byte", int8(7), "7"},
		{"double", 1.5, "1.5"},
		{"whole double", 2.0, "2"},
		{"float", float32(0.25), "0.25"},
		{"char", 'x', "x"},
		{"bytes", []byte("raw"), "raw"},
		{"time", when, "2024-03-01 14:30:00"},
		{"list", []any{1, "a", nil}, "[1, a, ]"},
		{"map", map[string]int{"b": 2, "a": 1}, "{a=1, b=2}"},
		{"entry", types.MapEntry{Key: "k", Value: 1}, "k=1"},
		{"stringer", celsius(20), "warm"},
		{"error", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Format(tt.input))
		})
	}
}

func TestFormatter_Options(t *testing.T) {
	en := NewFormatter(WithLocale("en"), WithNullText("null"), WithTimeLayout(time.DateOnly))
	assert.Equal(t, "1,234,567", en.Format(1234567))
	assert.Equal(t, "1,234.5", en.Format(1234.5))
	assert.Equal(t, "null", en.Format(nil))
	assert.Equal(t, "2024-03-01", en.Format(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	de := NewFormatter(WithLocale("de"))
	assert.Equal(t, "1.234.567", de.Format(1234567))
}
