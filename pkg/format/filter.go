// Package format turns runtime values into template output: a Formatter
// renders values as text and a Filter post-processes text.
package format

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Filter transforms a piece of output text.
type Filter interface {
	Filter(s string) string
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(string) string

func (f FilterFunc) Filter(s string) string { return f(s) }

// Identity leaves text unchanged.
var Identity Filter = FilterFunc(func(s string) string { return s })

// HTMLEscape escapes <, >, &, ' and ".
var HTMLEscape Filter = FilterFunc(html.EscapeString)

// Compress collapses whitespace runs. A run containing a line break
// becomes a single newline, any other run a single space.
var Compress Filter = FilterFunc(compress)

func compress(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inSpace, newline := false, false
	flush := func() {
		if !inSpace {
			return
		}
		if newline {
			sb.WriteByte('\n')
		} else {
			sb.WriteByte(' ')
		}
		inSpace, newline = false, false
	}
	for _, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			newline = newline || r == '\n' || r == '\r'
			continue
		}
		flush()
		sb.WriteRune(r)
	}
	flush()
	return sb.String()
}

type chain []Filter

func (c chain) Filter(s string) string {
	for _, f := range c {
		s = f.Filter(s)
	}
	return s
}

// Chain applies filters in order. Nil filters are skipped.
func Chain(filters ...Filter) Filter {
	var c chain
	for _, f := range filters {
		switch f := f.(type) {
		case nil:
		case chain:
			c = append(c, f...)
		default:
			c = append(c, f)
		}
	}
	switch len(c) {
	case 0:
		return Identity
	case 1:
		return c[0]
	}
	return c
}

// ByName resolves a filter list such as "compress,html" from
// configuration. Names are none, identity, html, escape and compress.
func ByName(names ...string) (Filter, error) {
	var filters []Filter
	for _, list := range names {
		for _, name := range strings.Split(list, ",") {
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "", "none", "identity":
			case "html", "escape":
				filters = append(filters, HTMLEscape)
			case "compress":
				filters = append(filters, Compress)
			default:
				return nil, fmt.Errorf("unknown filter %q", name)
			}
		}
	}
	return Chain(filters...), nil
}
