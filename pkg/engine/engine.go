// Package engine compiles, caches and serves templates.
//
// An Engine ties a loader, a directive front-end, a backend and a cache
// together. Templates are compiled at most once per name at a time:
// concurrent first requests for the same name wait for a single
// compilation, while distinct names compile in parallel. The component set
// is an immutable snapshot swapped atomically by Configure, so renders never
// observe a half-applied change.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/quill/pkg/directive"
	"github.com/leapstack-labs/quill/pkg/expr"
	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/loader"
	"github.com/leapstack-labs/quill/pkg/template"
	"github.com/leapstack-labs/quill/pkg/tplerr"
	"github.com/leapstack-labs/quill/pkg/types"
)

// ErrEmptyName is returned for a blank template name.
var ErrEmptyName = errors.New("empty template name")

// Engine serves compiled templates. It is safe for concurrent use.
type Engine struct {
	state    atomic.Pointer[components]
	literals *loader.StringLoader
	// locks holds one *sync.Mutex per template name. Entries are never
	// removed.
	locks sync.Map
	// mu serializes Configure.
	mu sync.Mutex
}

var _ directive.TemplateSource = (*Engine)(nil)

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{literals: loader.NewStringLoader()}
	c := defaults()
	for _, opt := range opts {
		opt(c)
	}
	e.publish(c)
	c.logger.Debug("engine configured",
		"locator", fmt.Sprintf("%T", c.locator),
		"backend", fmt.Sprintf("%T", c.backend),
		"reloadable", c.reloadable,
	)
	return e
}

func (e *Engine) publish(c *components) {
	c.expressions = expr.NewTranslator(c.functions, c.sequences)
	c.assembler = template.NewAssembler(template.Config{
		Backend: c.backend,
		Compile: directive.Options{
			Locator:     c.locator,
			Expressions: c.expressions,
			TextFilter:  c.textFilter,
			Variables:   c.variables,
			StatusName:  c.statusName,
		},
		Formatter: c.formatter,
		Filter:    c.filter,
		Templates: e,
		Logger:    c.logger,
	})
	e.state.Store(c)
}

// Configure applies opts to a copy of the current components and publishes
// the copy. Templates compiled with the previous components are dropped
// from the cache; renders already running finish with what they started
// with.
func (e *Engine) Configure(opts ...Option) {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.state.Load()
	next := *old
	for _, opt := range opts {
		opt(&next)
	}
	e.publish(&next)
	old.cache.Clear()
	if next.cache != old.cache {
		next.cache.Clear()
	}
	next.logger.Debug("engine reconfigured")
}

// SetLoader replaces the loader.
func (e *Engine) SetLoader(l loader.Loader) { e.Configure(WithLoader(l)) }

// SetCache replaces the cache.
func (e *Engine) SetCache(c Cache) { e.Configure(WithCache(c)) }

// SetReloadable switches reload-on-modify.
func (e *Engine) SetReloadable(reload bool) { e.Configure(WithReloadable(reload)) }

// Functions is the function registry templates are compiled against.
func (e *Engine) Functions() *funcs.Registry { return e.state.Load().functions }

// Reloadable reports whether reload-on-modify is enabled.
func (e *Engine) Reloadable() bool { return e.state.Load().reloadable }

// GetTemplate returns the compiled template called name in the default
// encoding. A name of the form "page#macro" returns a macro of page;
// page is compiled first.
func (e *Engine) GetTemplate(name string) (*template.Template, error) {
	return e.GetTemplateEncoding(name, "")
}

// GetTemplateEncoding is GetTemplate for a resource stored in enc.
func (e *Engine) GetTemplateEncoding(name, enc string) (*template.Template, error) {
	c := e.state.Load()
	name = cleanName(name)
	if name == "" {
		return nil, tplerr.NewResourceError(name, ErrEmptyName)
	}
	if enc == "" {
		enc = c.encoding
	}
	if i := strings.IndexByte(name, '#'); i > 0 {
		if _, err := e.get(c, name[:i], enc); err != nil {
			return nil, err
		}
	}
	return e.get(c, name, enc)
}

// Template resolves macro sub-templates for compiled templates.
func (e *Engine) Template(name string) (types.Renderable, error) {
	t, err := e.GetTemplate(name)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func cleanName(name string) string {
	if i := strings.IndexByte(name, '#'); i >= 0 {
		return loader.CleanName(name[:i]) + name[i:]
	}
	return loader.CleanName(name)
}

// fresh reports whether a cached template can be served without looking
// at its resource again.
func (c *components) fresh(t *template.Template, enc string) bool {
	return !c.reloadable && t.Encoding() == enc
}

func (e *Engine) get(c *components, name, enc string) (*template.Template, error) {
	cached, ok := c.cache.Get(name)
	if ok && c.fresh(cached, enc) {
		return cached, nil
	}

	var res *loader.Resource
	if ok {
		var err error
		if res, err = e.load(c, name, enc); err != nil {
			return nil, err
		}
		if current(cached, res) {
			return cached, nil
		}
	}

	mu := e.lock(name)
	mu.Lock()
	defer mu.Unlock()

	// Another caller may have compiled it while we waited.
	if cached, ok := c.cache.Get(name); ok {
		if c.fresh(cached, enc) || res != nil && current(cached, res) {
			c.logger.Debug("cache hit after wait", "template", name)
			return cached, nil
		}
	}
	if res == nil {
		var err error
		if res, err = e.load(c, name, enc); err != nil {
			return nil, err
		}
	}
	if cached != nil {
		c.logger.Debug("template modified, recompiling", "template", name,
			"cached", cached.LastModified(), "modified", res.LastModified)
	} else {
		c.logger.Debug("cache miss", "template", name)
	}

	t, err := c.assembler.Assemble(res)
	if err != nil {
		return nil, err
	}
	if e.state.Load() == c {
		c.cache.Put(name, t)
	}
	if t != cached {
		e.registerMacros(c, t)
	}
	return t, nil
}

func current(t *template.Template, res *loader.Resource) bool {
	return t.LastModified().Equal(res.LastModified) && t.Encoding() == res.Encoding
}

func (e *Engine) lock(name string) *sync.Mutex {
	if mu, ok := e.locks.Load(name); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := e.locks.LoadOrStore(name, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// load resolves name against the literal templates, then the loader.
func (e *Engine) load(c *components, name, enc string) (*loader.Resource, error) {
	if e.literals.Has(name) {
		if res, err := e.literals.Load(name, enc); err == nil {
			return res, nil
		}
	}
	if c.loader == nil {
		return nil, tplerr.NewResourceError(name, loader.ErrNotFound)
	}
	res, err := c.loader.Load(name, enc)
	if err != nil {
		return nil, tplerr.NewResourceError(name, err)
	}
	return res, nil
}

// registerMacros publishes the macros of t as literal templates so
// "page#macro" resolves to them.
func (e *Engine) registerMacros(c *components, t *template.Template) {
	keep := make(map[string]bool, len(t.Macros()))
	for _, m := range t.Macros() {
		keep[m.Key] = true
	}
	prefix := t.Name() + "#"
	names, _ := e.literals.List()
	for _, name := range names {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		// Nested macros live and die with the macro that declares them.
		child, _, _ := strings.Cut(rest, "#")
		if !keep[prefix+child] {
			e.literals.Remove(name)
			e.evict(name)
			c.logger.Debug("dropped macro", "template", t.Name(), "macro", name)
		}
	}
	for _, m := range t.Macros() {
		before := e.literals.Has(m.Key)
		modified := e.literals.Add(m.Key, m.Source)
		if cached, ok := c.cache.Get(m.Key); ok && !cached.LastModified().Equal(modified) {
			c.cache.Remove(m.Key)
		}
		if !before {
			c.logger.Debug("registered macro", "template", t.Name(), "macro", m.Key)
		}
	}
}

// AddTemplate registers source as a literal template. Literal templates
// take precedence over the loader.
func (e *Engine) AddTemplate(name, source string) {
	name = cleanName(name)
	e.literals.Add(name, source)
	e.evict(name)
}

// RemoveTemplate unregisters a literal template and reports whether it
// existed.
func (e *Engine) RemoveTemplate(name string) bool {
	name = cleanName(name)
	ok := e.literals.Remove(name)
	e.evict(name)
	return ok
}

// evict drops every compiled version of name. A literal and a loader
// resource can share a fingerprint, so the assembler must forget it too.
func (e *Engine) evict(name string) {
	c := e.state.Load()
	c.cache.Remove(name)
	c.assembler.Forget(name)
}

// Invalidate drops the compiled template called name so the next request
// compiles it again.
func (e *Engine) Invalidate(name string) {
	name = cleanName(name)
	e.evict(name)
	e.state.Load().logger.Debug("invalidated", "template", name)
}

// Names lists every template the engine can serve: literal templates and
// the loader's templates, sorted and without duplicates.
func (e *Engine) Names() ([]string, error) {
	c := e.state.Load()
	names, _ := e.literals.List()
	if c.loader != nil {
		more, err := c.loader.List()
		if err != nil {
			return nil, fmt.Errorf("list templates: %w", err)
		}
		names = append(names, more...)
	}
	sort.Strings(names)
	out := names[:0]
	for i, n := range names {
		if i == 0 || n != names[i-1] {
			out = append(out, n)
		}
	}
	return out, nil
}

// GetExpression compiles a standalone expression. params declares the
// variables it may use in addition to the engine's global variables.
func (e *Engine) GetExpression(source string, params map[string]*types.Type) (*expr.Expression, error) {
	e2, err := e.GetExpressionAt(source, params, 0)
	if err != nil {
		return nil, tplerr.Annotate("expression", source, err)
	}
	return e2, nil
}

// GetExpressionAt is GetExpression for source found at offset within a
// larger text. Error offsets are relative to that text.
func (e *Engine) GetExpressionAt(source string, params map[string]*types.Type, offset int) (*expr.Expression, error) {
	c := e.state.Load()
	vars := make(map[string]*types.Type, len(c.variables)+len(params))
	for k, v := range c.variables {
		vars[k] = v
	}
	for k, v := range params {
		vars[k] = v
	}
	return c.expressions.Translate(source, vars, offset)
}

// PrecompileError collects the failures of Precompile.
type PrecompileError struct {
	Errors []error
}

func (e *PrecompileError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d templates failed to compile:\n%s", len(e.Errors), strings.Join(msgs, "\n"))
}

func (e *PrecompileError) Unwrap() []error { return e.Errors }

// Precompile compiles every template the engine can list. A failing
// template does not stop the others; all failures are returned together
// in a *PrecompileError. It returns the number of templates compiled.
func (e *Engine) Precompile(ctx context.Context) (int, error) {
	c := e.state.Load()
	names, err := e.Names()
	if err != nil {
		return 0, err
	}
	start := time.Now()

	var (
		mu       sync.Mutex
		failures []error
		compiled atomic.Int32
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := e.GetTemplate(name); err != nil {
				c.logger.Warn("precompile failed", "template", name, "error", err)
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return nil
			}
			compiled.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(compiled.Load()), err
	}
	c.logger.Debug("precompiled templates",
		"templates", len(names),
		"failed", len(failures),
		"duration", time.Since(start),
	)
	if len(failures) > 0 {
		return int(compiled.Load()), &PrecompileError{Errors: failures}
	}
	return int(compiled.Load()), nil
}
