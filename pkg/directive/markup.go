package directive

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/leapstack-labs/quill/pkg/tplerr"
)

// DefaultNamespace is the element prefix of the markup form.
const DefaultNamespace = "q"

// Markup locates directives written as HTML. A directive is either an
// attribute, as in <li foreach="u in users">, or an element in the
// configured namespace, as in <q:if test="n > 0">...</q:if>. Attributes are
// applied in declaration order and their end codes follow the element's end
// tag in reverse order. A macro attribute extracts the element as a
// sub-template and ignores every other directive on it.
type Markup struct {
	// Namespace is the element prefix. Attribute directives accept both the
	// prefixed and the bare name. An empty namespace disables element form.
	Namespace string
}

// NewMarkup creates a markup locator for the given namespace.
func NewMarkup(namespace string) *Markup {
	return &Markup{Namespace: namespace}
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// element is an open tag.
type element struct {
	tag  string
	ends []Site
	// drop hides the tags of element-form directives.
	drop bool
	// macro state, set on the element being extracted
	macro       *Site
	macroHead   string
	macroBodyAt int
}

type markupScan struct {
	loc     *Markup
	src     string
	masked  string
	e       *emitter
	stack   []*element
	capture *element
}

// Locate implements Locator.
func (m *Markup) Locate(_ string, source string) ([]Site, error) {
	masked, err := mask(source)
	if err != nil {
		return nil, err
	}
	s := &markupScan{loc: m, src: source, masked: masked, e: newEmitter()}
	if err := s.run(); err != nil {
		return nil, err
	}
	return s.e.result(), nil
}

func (s *markupScan) run() error {
	z := html.NewTokenizer(strings.NewReader(s.masked))
	pos := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return tplerr.NewSyntaxError(pos, "%v", z.Err())
		}
		start := pos
		pos += len(z.Raw())

		var err error
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			err = s.startTag(string(name), start, pos, tt == html.SelfClosingTagToken)
		case html.EndTagToken:
			name, _ := z.TagName()
			err = s.endTag(string(name), start, pos)
		default:
			err = s.text(start, pos)
		}
		if err != nil {
			return err
		}
	}
	for len(s.stack) > 0 {
		if err := s.close(len(s.src)); err != nil {
			return err
		}
	}
	return nil
}

func (s *markupScan) text(start, end int) error {
	if s.capture != nil {
		return nil
	}
	return scanSpan(s.src, start, end, s.e, nil)
}

// directiveName maps an attribute or tag name to a directive name.
func (s *markupScan) directiveName(name string, element bool) string {
	ns := s.loc.Namespace
	if ns != "" && strings.HasPrefix(name, ns+":") {
		name = name[len(ns)+1:]
	} else if element {
		return ""
	}
	if IsDirective(name) {
		return name
	}
	return ""
}

func (s *markupScan) startTag(tag string, start, end int, selfClosing bool) error {
	selfClosing = selfClosing || voidElements[tag]
	if s.capture != nil {
		if !selfClosing {
			s.stack = append(s.stack, &element{tag: tag})
		}
		return nil
	}
	attrs := scanAttributes(s.masked, start, end)

	if name := s.directiveName(tag, true); name != "" {
		value, off := "", end
		if len(attrs) > 0 {
			value, off = attrs[0].value(s.src)
		}
		el := &element{tag: tag, drop: true}
		if name == MacroName {
			head := ""
			if _, params, err := splitMacro(value, off); err != nil {
				return err
			} else if params != "" {
				head = "<" + s.loc.Namespace + ":" + Define + " value=\"" + html.EscapeString(params) + "\"/>"
			}
			return s.beginMacro(el, Site{Kind: SiteDirective, Name: MacroName, Value: value, Offset: off, Pos: start}, head, end, selfClosing)
		}
		s.e.add(Site{Kind: SiteDirective, Name: name, Value: value, Offset: off, Pos: start, Attach: name == Else || name == ElseIf})
		if opensBlock(name) {
			el.ends = []Site{{Kind: SiteEnd, Name: name, Pos: start}}
		}
		return s.open(el, end, selfClosing)
	}

	var found []attribute
	for _, a := range attrs {
		name := s.directiveName(a.name, false)
		if name == "" {
			continue
		}
		if name == MacroName {
			value, off := a.value(s.src)
			_, params, err := splitMacro(value, off)
			if err != nil {
				return err
			}
			repl := ""
			if params != "" {
				repl = " " + Define + "=\"" + html.EscapeString(params) + "\""
			}
			head := s.src[start:a.start] + repl + s.src[a.end:end]
			el := &element{tag: tag}
			return s.beginMacro(el, Site{Kind: SiteDirective, Name: MacroName, Value: value, Offset: off, Pos: a.start}, head, end, selfClosing)
		}
		a.directive = name
		found = append(found, a)
	}

	el := &element{tag: tag}
	at := start
	for _, a := range found {
		value, off := a.value(s.src)
		s.e.add(Site{Kind: SiteDirective, Name: a.directive, Value: value, Offset: off, Pos: a.start, Attach: a.directive == Else || a.directive == ElseIf})
		if opensBlock(a.directive) {
			el.ends = append([]Site{{Kind: SiteEnd, Name: a.directive, Pos: a.start}}, el.ends...)
		}
	}
	for _, a := range found {
		if err := scanSpan(s.src, at, a.start, s.e, nil); err != nil {
			return err
		}
		at = a.end
	}
	if err := scanSpan(s.src, at, end, s.e, nil); err != nil {
		return err
	}
	return s.open(el, end, selfClosing)
}

func (s *markupScan) open(el *element, end int, selfClosing bool) error {
	if selfClosing {
		for _, site := range el.ends {
			site.Pos = end
			s.e.add(site)
		}
		return nil
	}
	s.stack = append(s.stack, el)
	return nil
}

func (s *markupScan) beginMacro(el *element, site Site, head string, end int, selfClosing bool) error {
	if selfClosing {
		site.Body = head
		s.e.add(site)
		return nil
	}
	el.macro = &site
	el.macroHead = head
	el.macroBodyAt = end
	s.capture = el
	s.stack = append(s.stack, el)
	return nil
}

func (s *markupScan) endTag(tag string, start, end int) error {
	match := -1
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].tag == tag {
			match = i
			break
		}
	}
	if match < 0 {
		return s.text(start, end)
	}
	for len(s.stack) > match+1 {
		if err := s.close(start); err != nil {
			return err
		}
	}
	el := s.stack[match]
	s.stack = s.stack[:match]
	if el.macro != nil {
		s.finishMacro(el, start, end)
		return nil
	}
	if s.capture != nil {
		return nil
	}
	if !el.drop {
		if err := scanSpan(s.src, start, end, s.e, nil); err != nil {
			return err
		}
	}
	for _, site := range el.ends {
		site.Pos = end
		s.e.add(site)
	}
	return nil
}

// close closes the innermost element implicitly at pos.
func (s *markupScan) close(pos int) error {
	el := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	if el.macro != nil {
		s.finishMacro(el, pos, pos)
		return nil
	}
	if s.capture != nil {
		return nil
	}
	for _, site := range el.ends {
		site.Pos = pos
		s.e.add(site)
	}
	return nil
}

func (s *markupScan) finishMacro(el *element, bodyEnd, end int) {
	site := *el.macro
	if el.drop {
		site.Body = el.macroHead + s.src[el.macroBodyAt:bodyEnd]
	} else {
		site.Body = el.macroHead + s.src[el.macroBodyAt:end]
	}
	s.capture = nil
	s.e.add(site)
}

// attribute is the span of one attribute inside a start tag. start
// includes the whitespace before the name.
type attribute struct {
	name      string
	directive string
	start     int
	end       int
	valStart  int
	valEnd    int
	hasValue  bool
}

// value returns the unescaped, trimmed attribute value and its offset.
func (a attribute) value(src string) (string, int) {
	if !a.hasValue {
		return "", a.end
	}
	return trimValue(html.UnescapeString(src[a.valStart:a.valEnd]), a.valStart)
}

// scanAttributes finds the attributes of the start tag src[start:end].
func scanAttributes(src string, start, end int) []attribute {
	i := start + 1
	for i < end && !isSpace(src[i]) && src[i] != '/' && src[i] != '>' {
		i++
	}
	var attrs []attribute
	for i < end {
		ws := i
		for i < end && (isSpace(src[i]) || src[i] == '/') {
			i++
		}
		if i >= end || src[i] == '>' {
			break
		}
		nameStart := i
		for i < end && !isSpace(src[i]) && src[i] != '=' && src[i] != '>' &&
			!(src[i] == '/' && i+1 < end && src[i+1] == '>') {
			i++
		}
		a := attribute{name: strings.ToLower(src[nameStart:i]), start: ws}
		j := i
		for j < end && isSpace(src[j]) {
			j++
		}
		if j < end && src[j] == '=' {
			j++
			for j < end && isSpace(src[j]) {
				j++
			}
			a.hasValue = true
			if j < end && (src[j] == '"' || src[j] == '\'') {
				q := src[j]
				a.valStart = j + 1
				k := strings.IndexByte(src[j+1:end], q)
				if k < 0 {
					k = end - j - 1
				}
				a.valEnd = j + 1 + k
				i = min(a.valEnd+1, end)
			} else {
				a.valStart = j
				for j < end && !isSpace(src[j]) && src[j] != '>' {
					j++
				}
				a.valEnd = j
				i = j
			}
		}
		a.end = i
		attrs = append(attrs, a)
	}
	return attrs
}

// mask blanks out the regions the HTML tokenizer must not interpret:
// interpolations, CDATA sections and template comments. Offsets and line
// breaks are preserved.
func mask(src string) (string, error) {
	out := []byte(src)
	blank := func(from, to int) {
		for k := from; k < to; k++ {
			if out[k] != '\n' {
				out[k] = ' '
			}
		}
	}
	for i := 0; i < len(src); {
		switch {
		case src[i] == '\\':
			n := 0
			for i+n < len(src) && src[i+n] == '\\' {
				n++
			}
			if n%2 == 1 && i+n < len(src) && (src[i+n] == '#' || src[i+n] == '$') {
				n++
			}
			i += n
			continue
		case strings.HasPrefix(src[i:], commentOpen):
			if j := strings.Index(src[i+len(commentOpen):], commentClose); j >= 0 {
				to := i + len(commentOpen) + j + len(commentClose)
				blank(i, to)
				i = to
				continue
			}
		case strings.HasPrefix(src[i:], cdataOpen):
			if j := strings.Index(src[i+len(cdataOpen):], cdataClose); j >= 0 {
				to := i + len(cdataOpen) + j + len(cdataClose)
				blank(i, to)
				i = to
				continue
			}
		case src[i] == '$':
			open := i + 1
			if open < len(src) && src[open] == '!' {
				open++
			}
			if open < len(src) && src[open] == '{' {
				c := closing(src, open+1, len(src), '{', '}')
				if c < 0 {
					return "", tplerr.NewSyntaxError(i, "unclosed expression: missing '}'")
				}
				blank(i, c+1)
				i = c + 1
				continue
			}
		}
		i++
	}
	return string(out), nil
}
