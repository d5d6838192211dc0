package engine

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/quill/pkg/directive"
	"github.com/leapstack-labs/quill/pkg/expr"
	"github.com/leapstack-labs/quill/pkg/format"
	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/loader"
	"github.com/leapstack-labs/quill/pkg/template"
	"github.com/leapstack-labs/quill/pkg/types"
)

// Option configures an Engine.
type Option func(*components)

// components is one immutable snapshot of the engine's pluggable parts.
// Options modify a private copy before it is published.
type components struct {
	loader     loader.Loader
	locator    directive.Locator
	backend    template.Backend
	cache      Cache
	filter     format.Filter
	textFilter format.Filter
	formatter  format.Formatter
	functions  *funcs.Registry
	sequences  expr.SequenceSource
	variables  map[string]*types.Type
	statusName string
	encoding   string
	reloadable bool
	logger     *slog.Logger

	// Derived when the snapshot is published.
	expressions *expr.Translator
	assembler   *template.Assembler
}

func defaults() *components {
	return &components{
		locator:    directive.NewInline(),
		backend:    template.NewInterpreter(),
		cache:      NewMapCache(),
		filter:     format.Identity,
		textFilter: format.Identity,
		formatter:  format.NewFormatter(),
		functions:  funcs.NewDefaultRegistry(),
		sequences:  expr.DefaultSequences(),
		statusName: directive.DefaultStatusName,
		encoding:   loader.DefaultEncoding,
		logger:     slog.New(slog.DiscardHandler),
	}
}

// WithLoader sets the loader consulted after the literal templates.
func WithLoader(l loader.Loader) Option {
	return func(c *components) { c.loader = l }
}

// WithLocator selects the directive front-end.
func WithLocator(l directive.Locator) Option {
	return func(c *components) {
		if l != nil {
			c.locator = l
		}
	}
}

// WithBackend sets the backend that turns compiled units into programs.
func WithBackend(b template.Backend) Option {
	return func(c *components) {
		if b != nil {
			c.backend = b
		}
	}
}

// WithCache sets the template cache.
func WithCache(cache Cache) Option {
	return func(c *components) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// WithFilter sets the filter applied to interpolated values.
func WithFilter(f format.Filter) Option {
	return func(c *components) {
		if f != nil {
			c.filter = f
		}
	}
}

// WithTextFilter sets the filter applied to literal text at compile time.
func WithTextFilter(f format.Filter) Option {
	return func(c *components) {
		if f != nil {
			c.textFilter = f
		}
	}
}

// WithFormatter sets the value formatter.
func WithFormatter(f format.Formatter) Option {
	return func(c *components) {
		if f != nil {
			c.formatter = f
		}
	}
}

// WithFunctions sets the function registry.
func WithFunctions(r *funcs.Registry) Option {
	return func(c *components) {
		if r != nil {
			c.functions = r
		}
	}
}

// WithSequences sets the source of string ranges.
func WithSequences(s expr.SequenceSource) Option {
	return func(c *components) { c.sequences = s }
}

// WithReloadable makes the engine recompile templates whose resource has
// a different modification time than the cached template.
func WithReloadable(reload bool) Option {
	return func(c *components) { c.reloadable = reload }
}

// WithEncoding sets the encoding used when a request names none.
func WithEncoding(enc string) Option {
	return func(c *components) {
		if enc != "" {
			c.encoding = enc
		}
	}
}

// WithVariables declares variables visible to every template.
func WithVariables(vars map[string]*types.Type) Option {
	return func(c *components) {
		c.variables = make(map[string]*types.Type, len(vars))
		for k, v := range vars {
			c.variables[k] = v
		}
	}
}

// WithStatusName renames the loop status variable.
func WithStatusName(name string) Option {
	return func(c *components) {
		if name != "" {
			c.statusName = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *components) {
		if l != nil {
			c.logger = l
		}
	}
}

// Locator names accepted by ParseLocator.
const (
	LocatorInline = "inline"
	LocatorMarkup = "markup"
)

// ParseLocator returns the front-end called name. namespace is the markup
// element prefix and is ignored by the inline front-end.
func ParseLocator(name, namespace string) (directive.Locator, error) {
	switch name {
	case "", LocatorInline:
		return directive.NewInline(), nil
	case LocatorMarkup:
		return directive.NewMarkup(namespace), nil
	}
	return nil, fmt.Errorf("unknown locator %q (want %s or %s)", name, LocatorInline, LocatorMarkup)
}
