// Package directive compiles template source into a fragment tree.
//
// Compilation has two stages. A Locator splits the source into a flat list
// of sites: literal text, interpolations and directives. Two locators exist,
// Inline for #name(value) markers and Markup for directive attributes and
// elements in HTML. The Translator and the compiler then turn the sites into
// typed fragments against a static scope, so every directive has one
// implementation regardless of how it was written.
package directive

import (
	"strings"

	"github.com/leapstack-labs/quill/pkg/tplerr"
)

// SiteKind identifies what a Site holds.
type SiteKind int

// SiteKind constants.
const (
	SiteText SiteKind = iota
	SiteInterpolation
	SiteDirective
	SiteEnd
)

func (k SiteKind) String() string {
	switch k {
	case SiteText:
		return "text"
	case SiteInterpolation:
		return "interpolation"
	case SiteDirective:
		return "directive"
	case SiteEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Site is one located piece of a template.
type Site struct {
	Kind SiteKind
	// Name is the directive name. End sites carry the name of the directive
	// they close when the locator knows it.
	Name string
	// Value is the literal text, the interpolated expression or the
	// directive value.
	Value string
	// Offset is the position of Value in the source.
	Offset int
	// Pos is the position of the whole site in the source.
	Pos int
	// Raw interpolations skip the value filter.
	Raw bool
	// Attach makes else and elseif continue the if that closed right
	// before them instead of the innermost open if.
	Attach bool
	// Body is the sub-template source of a macro directive.
	Body string
}

// Locator finds the sites of a template.
type Locator interface {
	Locate(name, source string) ([]Site, error)
}

// Directive names.
const (
	If          = "if"
	ElseIf      = "elseif"
	Else        = "else"
	Foreach     = "foreach"
	BreakIfName = "breakif"
	Set         = "set"
	Define      = "define"
	Block       = "block"
	MacroName   = "macro"
	End         = "end"
)

var directives = map[string]bool{
	If: true, ElseIf: true, Else: true, Foreach: true, BreakIfName: true,
	Set: true, Define: true, Block: true, MacroName: true,
}

// IsDirective reports whether name is a directive.
func IsDirective(name string) bool { return directives[name] }

// opensBlock reports whether a directive has a body closed by an end.
func opensBlock(name string) bool {
	switch name {
	case If, ElseIf, Else, Foreach, Block, MacroName:
		return true
	}
	return false
}

// emitter collects sites and merges adjacent text.
type emitter struct {
	sites     []Site
	text      strings.Builder
	textStart int
}

func newEmitter() *emitter { return &emitter{textStart: -1} }

func (e *emitter) addText(s string, offset int) {
	if s == "" {
		return
	}
	if e.textStart < 0 {
		e.textStart = offset
	}
	e.text.WriteString(s)
}

func (e *emitter) flush() {
	if e.textStart < 0 {
		return
	}
	e.sites = append(e.sites, Site{Kind: SiteText, Value: e.text.String(), Offset: e.textStart, Pos: e.textStart})
	e.text.Reset()
	e.textStart = -1
}

func (e *emitter) add(s Site) {
	e.flush()
	e.sites = append(e.sites, s)
}

func (e *emitter) result() []Site {
	e.flush()
	return e.sites
}

const (
	commentOpen  = "<!--##"
	commentClose = "-->"
	cdataOpen    = "<![CDATA[##"
	cdataClose   = "]]>"
)

// hook recognizes a directive at src[i]. It returns the position after the
// directive, or ok false when src[i] is plain text.
type hook func(src string, i, end int, e *emitter) (next int, ok bool, err error)

// scanSpan emits the sites of src[start:end] applying the comment, CDATA,
// escape and interpolation rules. directive may be nil.
func scanSpan(src string, start, end int, e *emitter, directive hook) error {
	i := start
	for i < end {
		c := src[i]
		switch {
		case c == '<' && strings.HasPrefix(src[i:end], commentOpen):
			if j := strings.Index(src[i+len(commentOpen):end], commentClose); j >= 0 {
				i += len(commentOpen) + j + len(commentClose)
				continue
			}
		case c == '<' && strings.HasPrefix(src[i:end], cdataOpen):
			body := i + len(cdataOpen)
			if j := strings.Index(src[body:end], cdataClose); j >= 0 {
				e.addText(src[body:body+j], body)
				i = body + j + len(cdataClose)
				continue
			}
		case c == '\\':
			n := 0
			for i+n < end && src[i+n] == '\\' {
				n++
			}
			if i+n < end && (src[i+n] == '#' || src[i+n] == '$') {
				e.addText(strings.Repeat(`\`, n/2), i)
				if n%2 == 1 {
					e.addText(src[i+n:i+n+1], i+n)
					i += n + 1
				} else {
					i += n
					if next, ok, err := markerAt(src, i, end, e, directive); err != nil {
						return err
					} else if ok {
						i = next
					} else {
						e.addText(src[i:i+1], i)
						i++
					}
				}
				continue
			}
			e.addText(src[i:i+n], i)
			i += n
			continue
		}
		if c == '$' || c == '#' || c == '<' {
			next, ok, err := markerAt(src, i, end, e, directive)
			if err != nil {
				return err
			}
			if ok {
				i = next
				continue
			}
		}
		e.addText(src[i:i+1], i)
		i++
	}
	return nil
}

// markerAt handles an interpolation or directive starting at src[i].
func markerAt(src string, i, end int, e *emitter, directive hook) (int, bool, error) {
	if src[i] == '$' {
		return interpolationAt(src, i, end, e)
	}
	if directive == nil {
		return 0, false, nil
	}
	return directive(src, i, end, e)
}

func interpolationAt(src string, i, end int, e *emitter) (int, bool, error) {
	raw := false
	open := i + 1
	if open < end && src[open] == '!' {
		raw = true
		open++
	}
	if open >= end || src[open] != '{' {
		return 0, false, nil
	}
	closeAt := closing(src, open+1, end, '{', '}')
	if closeAt < 0 {
		return 0, false, tplerr.NewSyntaxError(i, "unclosed expression: missing '}'")
	}
	e.add(Site{
		Kind:   SiteInterpolation,
		Value:  src[open+1 : closeAt],
		Offset: open + 1,
		Pos:    i,
		Raw:    raw,
	})
	return closeAt + 1, true, nil
}

// closing finds the bracket that closes an already consumed opener,
// skipping quoted strings. It returns -1 when there is none before end.
func closing(src string, i, end int, openCh, closeCh byte) int {
	depth := 0
	var quote byte
	for ; i < end; i++ {
		c := src[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case openCh:
			depth++
		case closeCh:
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// trimValue trims a directive value and moves its offset past the leading
// whitespace.
func trimValue(v string, offset int) (string, int) {
	trimmed := strings.TrimLeft(v, " \t\r\n")
	offset += len(v) - len(trimmed)
	return strings.TrimRight(trimmed, " \t\r\n"), offset
}
