package directive

import (
	"strings"

	"github.com/leapstack-labs/quill/pkg/expr"
	"github.com/leapstack-labs/quill/pkg/format"
	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

// DefaultStatusName is the variable holding the loop status.
const DefaultStatusName = "foreach"

// Options configures Compile. Zero fields take their defaults.
type Options struct {
	Locator     Locator
	Expressions *expr.Translator
	// TextFilter is applied to literal text at compile time.
	TextFilter format.Filter
	// Variables are visible to every expression of the template.
	Variables  map[string]*types.Type
	StatusName string
}

func (o Options) withDefaults() Options {
	if o.Locator == nil {
		o.Locator = NewInline()
	}
	if o.Expressions == nil {
		o.Expressions = expr.NewTranslator(funcs.NewDefaultRegistry(), expr.DefaultSequences())
	}
	if o.TextFilter == nil {
		o.TextFilter = format.Identity
	}
	if o.StatusName == "" {
		o.StatusName = DefaultStatusName
	}
	return o
}

// frame is an open block.
type frame struct {
	site Site
	frag Fragment
	body *Sequence
}

type builder struct {
	tr     *Translator
	scope  *Scope
	filter format.Filter
	root   *Sequence
	stack  []*frame
	texts  []string
	index  map[string]int
}

// Compile locates the sites of source and builds the fragment tree of
// template name. Errors carry offsets into source.
func Compile(name, source string, opts Options) (*Unit, error) {
	opts = opts.withDefaults()
	sites, err := opts.Locator.Locate(name, source)
	if err != nil {
		return nil, err
	}
	b := &builder{
		tr:     NewTranslator(opts.Expressions),
		scope:  NewScope(name, opts.Variables, opts.StatusName),
		filter: opts.TextFilter,
		root:   &Sequence{},
		index:  make(map[string]int),
	}
	for _, s := range sites {
		if err := b.add(s); err != nil {
			return nil, err
		}
	}
	if n := len(b.stack); n > 0 {
		open := b.stack[n-1].site
		return nil, tplerr.NewSyntaxError(open.Pos, "unclosed #%s", open.Name)
	}
	return &Unit{
		Name:       name,
		Source:     source,
		StatusName: opts.StatusName,
		Globals:    b.scope.globals,
		Parameters: b.scope.params,
		Returns:    b.scope.returns,
		Locals:     b.scope.locals,
		Texts:      b.texts,
		Macros:     b.scope.macros,
		Root:       b.root,
	}, nil
}

func (b *builder) current() *Sequence {
	if n := len(b.stack); n > 0 {
		return b.stack[n-1].body
	}
	return b.root
}

func (b *builder) add(site Site) error {
	switch site.Kind {
	case SiteText:
		b.text(site)
		return nil
	case SiteInterpolation:
		f, err := b.tr.OutputCode(site, b.scope)
		if err != nil {
			return err
		}
		b.current().append(f)
		return nil
	case SiteEnd:
		return b.end(site)
	}

	if site.Name == ElseIf || site.Name == Else {
		return b.continueChain(site)
	}
	f, err := b.tr.StatementCode(site, b.scope)
	if err != nil {
		return err
	}
	b.current().append(f)
	var body *Sequence
	switch x := f.(type) {
	case *Conditional:
		body = x.Branches[0].Body
	case *Loop:
		body = x.Body
	case *CaptureBlock:
		body = x.Body
	default:
		return nil
	}
	b.stack = append(b.stack, &frame{site: site, frag: f, body: body})
	return nil
}

func (b *builder) text(site Site) {
	s := b.filter.Filter(site.Value)
	if s == "" {
		return
	}
	i, ok := b.index[s]
	if !ok {
		i = len(b.texts)
		b.texts = append(b.texts, s)
		b.index[s] = i
	}
	b.current().append(&Literal{offset: site.Offset, Index: i, Text: s})
}

// continueChain adds an elseif or else branch. Inline sites continue the
// innermost open if. Attached sites, and inline sites without an open if,
// continue the if that closed last, with only whitespace in between.
func (b *builder) continueChain(site Site) error {
	if n := len(b.stack); !site.Attach && n > 0 {
		if c, ok := b.stack[n-1].frag.(*Conditional); ok {
			return b.branch(c, site, b.stack[n-1])
		}
	}

	seq := b.current()
	n := len(seq.Items)
	for n > 0 {
		lit, ok := seq.Items[n-1].(*Literal)
		if !ok || strings.TrimSpace(lit.Text) != "" {
			break
		}
		n--
	}
	if n == 0 {
		return tplerr.NewSyntaxError(site.Pos, "#%s without matching #if", site.Name)
	}
	c, ok := seq.Items[n-1].(*Conditional)
	if !ok {
		if _, text := seq.Items[n-1].(*Literal); text {
			return tplerr.NewSyntaxError(site.Pos, "invalid text before #%s", site.Name)
		}
		return tplerr.NewSyntaxError(site.Pos, "#%s without matching #if", site.Name)
	}
	seq.Items = seq.Items[:n]
	fr := &frame{site: site, frag: c}
	if err := b.branch(c, site, fr); err != nil {
		return err
	}
	b.stack = append(b.stack, fr)
	return nil
}

func (b *builder) branch(c *Conditional, site Site, fr *frame) error {
	if c.hasElse() {
		return tplerr.NewSyntaxError(site.Pos, "#%s after #else", site.Name)
	}
	f, err := b.tr.StatementCode(site, b.scope)
	if err != nil {
		return err
	}
	br := f.(*Conditional).Branches[0]
	c.Branches = append(c.Branches, br)
	fr.site = site
	fr.body = br.Body
	return nil
}

func (b *builder) end(site Site) error {
	n := len(b.stack)
	if n == 0 {
		return tplerr.NewSyntaxError(site.Pos, "#end without matching directive")
	}
	fr := b.stack[n-1]
	if site.Name != "" && family(site.Name) != family(fr.site.Name) {
		return tplerr.NewSyntaxError(site.Pos, "end of #%s while #%s is open", site.Name, fr.site.Name)
	}
	b.stack = b.stack[:n-1]
	return b.tr.StatementEndCode(fr.frag, b.scope)
}

func family(name string) string {
	if name == ElseIf || name == Else {
		return If
	}
	return name
}
