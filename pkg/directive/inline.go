package directive

import (
	"strings"

	"github.com/leapstack-labs/quill/pkg/tplerr"
)

// Inline locates #name(value) directives in plain text. A directive may be
// wrapped in an HTML comment, as in <!--#if(x)-->, to keep markup valid.
// #elseif and #else continue the open #if and one #end closes the chain.
type Inline struct{}

// NewInline creates an inline locator.
func NewInline() *Inline { return &Inline{} }

// marker is a directive found at a '#'.
type marker struct {
	name     string
	value    string
	valueOff int
	pos      int
	next     int
}

// Locate implements Locator.
func (l *Inline) Locate(_ string, source string) ([]Site, error) {
	e := newEmitter()
	if err := scanSpan(source, 0, len(source), e, l.directive); err != nil {
		return nil, err
	}
	return e.result(), nil
}

func (l *Inline) directive(src string, i, end int, e *emitter) (int, bool, error) {
	var (
		m   marker
		ok  bool
		err error
	)
	if src[i] == '<' {
		m, ok = commentedMarker(src, i, end)
	} else {
		m, ok, err = parseMarker(src, i, end)
	}
	if !ok || err != nil {
		return 0, false, err
	}
	if m.name == End {
		e.add(Site{Kind: SiteEnd, Pos: m.pos})
		return m.next, true, nil
	}
	value, off := trimValue(m.value, m.valueOff)
	if m.name != MacroName {
		e.add(Site{Kind: SiteDirective, Name: m.name, Value: value, Offset: off, Pos: m.pos})
		return m.next, true, nil
	}

	bodyEnd, next, found, err := findEnd(src, m.next, end)
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, tplerr.NewSyntaxError(m.pos, "unclosed #macro")
	}
	_, params, err := splitMacro(value, off)
	if err != nil {
		return 0, false, err
	}
	body := src[m.next:bodyEnd]
	if params != "" {
		body = "#define(" + params + ")" + body
	}
	e.add(Site{Kind: SiteDirective, Name: MacroName, Value: value, Offset: off, Pos: m.pos, Body: body})
	return next, true, nil
}

// parseMarker reads a directive at src[i] == '#'. Unknown names, and known
// names that need a value but have no parentheses, are plain text.
func parseMarker(src string, i, end int) (marker, bool, error) {
	if src[i] != '#' {
		return marker{}, false, nil
	}
	j := i + 1
	for j < end && isLetter(src[j]) {
		j++
	}
	name := src[i+1 : j]
	if name != End && !IsDirective(name) {
		return marker{}, false, nil
	}
	if j < end && src[j] == '(' {
		c := closing(src, j+1, end, '(', ')')
		if c < 0 {
			return marker{}, false, tplerr.NewSyntaxError(i, "missing ')' after #%s", name)
		}
		return marker{name: name, value: src[j+1 : c], valueOff: j + 1, pos: i, next: c + 1}, true, nil
	}
	if name == Else || name == End {
		return marker{name: name, valueOff: j, pos: i, next: j}, true, nil
	}
	return marker{}, false, nil
}

// commentedMarker reads a directive wrapped in <!-- and -->.
func commentedMarker(src string, i, end int) (marker, bool) {
	if !strings.HasPrefix(src[i:end], "<!--#") {
		return marker{}, false
	}
	m, ok, err := parseMarker(src, i+4, end)
	if !ok || err != nil {
		return marker{}, false
	}
	k := m.next
	for k < end && isSpace(src[k]) {
		k++
	}
	if !strings.HasPrefix(src[k:end], "-->") {
		return marker{}, false
	}
	m.pos = i
	m.next = k + 3
	return m, true
}

// findEnd finds the #end matching a block opened before from. It returns
// the position where the end marker starts and the position after it.
func findEnd(src string, from, end int) (int, int, bool, error) {
	depth := 0
	i := from
	for i < end {
		c := src[i]
		switch {
		case c == '\\':
			n := 0
			for i+n < end && src[i+n] == '\\' {
				n++
			}
			if n%2 == 1 && i+n < end && (src[i+n] == '#' || src[i+n] == '$') {
				n++
			}
			i += n
			continue
		case strings.HasPrefix(src[i:end], commentOpen):
			if j := strings.Index(src[i+len(commentOpen):end], commentClose); j >= 0 {
				i += len(commentOpen) + j + len(commentClose)
				continue
			}
		case strings.HasPrefix(src[i:end], cdataOpen):
			if j := strings.Index(src[i+len(cdataOpen):end], cdataClose); j >= 0 {
				i += len(cdataOpen) + j + len(cdataClose)
				continue
			}
		}

		var (
			m   marker
			ok  bool
			err error
		)
		switch c {
		case '<':
			m, ok = commentedMarker(src, i, end)
		case '#':
			m, ok, err = parseMarker(src, i, end)
		}
		if err != nil {
			return 0, 0, false, err
		}
		if !ok {
			i++
			continue
		}
		switch m.name {
		case If, Foreach, Block, MacroName:
			depth++
		case End:
			if depth == 0 {
				return i, m.next, true, nil
			}
			depth--
		}
		i = m.next
	}
	return 0, 0, false, nil
}

// splitMacro splits "name(params)" into its parts and validates the name.
func splitMacro(value string, offset int) (string, string, error) {
	if value == "" {
		return "", "", tplerr.NewSyntaxError(offset, "macro name is empty")
	}
	name, params := value, ""
	if i := strings.IndexByte(value, '('); i >= 0 {
		if !strings.HasSuffix(value, ")") {
			return "", "", tplerr.NewSyntaxError(offset, "invalid macro parameters %q", value)
		}
		name = strings.TrimSpace(value[:i])
		params = strings.TrimSpace(value[i+1 : len(value)-1])
	}
	if !isIdentifier(name) {
		return "", "", tplerr.NewSyntaxError(offset, "invalid macro name %q", name)
	}
	return name, params, nil
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isLetter(c) || c == '_' || c == '$' || i > 0 && c >= '0' && c <= '9' {
			continue
		}
		return false
	}
	return true
}
