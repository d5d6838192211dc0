// Package bootstrap builds a configured engine from project configuration.
// The CLI commands, the render server and the watcher share it so every
// surface sees the same loaders, functions and filters.
package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/leapstack-labs/quill/internal/config"
	"github.com/leapstack-labs/quill/internal/macro"
	"github.com/leapstack-labs/quill/internal/watch"
	"github.com/leapstack-labs/quill/pkg/engine"
	"github.com/leapstack-labs/quill/pkg/expr"
	"github.com/leapstack-labs/quill/pkg/format"
	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/loader"
)

// functionsDebounce collapses editor save bursts into one reload.
const functionsDebounce = 100 * time.Millisecond

// AllTemplates is the name passed to a watcher's notify handler when a
// change affects every template.
const AllTemplates = "*"

// Project is an engine together with the resources it holds open.
type Project struct {
	Config *config.EngineConfig
	Engine *engine.Engine
	// Functions lists the functions loaded from function files.
	Functions []*funcs.Function
	// SQL is the database loader, or nil.
	SQL *loader.SQLLoader

	closers []io.Closer
}

// Open builds the engine described by cfg.
func Open(cfg *config.EngineConfig, logger *slog.Logger) (*Project, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Project{Config: cfg}
	ldr, err := p.openLoaders(logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	reg, fns, err := loadFunctions(cfg, logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.Functions = fns

	opts, err := Options(cfg, logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	opts = append(opts, engine.WithLoader(ldr), engine.WithFunctions(reg))
	p.Engine = engine.New(opts...)

	logger.Debug("engine ready",
		"templates", cfg.TemplatesDir,
		"locator", cfg.Locator,
		"functions", len(p.Functions),
		"reload", cfg.Reload)
	return p, nil
}

func loadFunctions(cfg *config.EngineConfig, logger *slog.Logger) (*funcs.Registry, []*funcs.Function, error) {
	reg := funcs.NewDefaultRegistry()
	fns, err := macro.LoadAndRegister(cfg.FunctionsDir, reg, macro.Options{
		Constants: cfg.Constants,
		MaxSteps:  cfg.Starlark.MaxSteps,
		PoolSize:  cfg.Starlark.PoolSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load functions: %w", err)
	}
	return reg, fns, nil
}

// ReloadFunctions reloads the function files and swaps the engine's
// registry. Cached templates are dropped since they bound the old
// functions. On error the engine keeps its current functions.
func (p *Project) ReloadFunctions(logger *slog.Logger) error {
	reg, fns, err := loadFunctions(p.Config, logger)
	if err != nil {
		return err
	}
	p.Engine.Configure(engine.WithFunctions(reg))
	p.Functions = fns
	return nil
}

// Watcher returns a watcher that invalidates changed templates and reloads
// the function files when one of them changes. notify, if set, runs after
// each change has been applied.
func (p *Project) Watcher(logger *slog.Logger, notify watch.Handler) *watch.Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if notify == nil {
		notify = func(string) {}
	}
	w := watch.New(logger)
	w.Add(p.Config.TemplatesDir, 0, func(name string) {
		p.Engine.Invalidate(name)
		notify(name)
	})
	w.Add(p.Config.FunctionsDir, functionsDebounce, func(name string) {
		if !strings.HasSuffix(name, macro.Extension) {
			return
		}
		if err := p.ReloadFunctions(logger); err != nil {
			logger.Warn("function files not reloaded", "file", name, "error", err)
			return
		}
		logger.Info("reloaded functions", "file", name, "functions", len(p.Functions))
		notify(AllTemplates)
	})
	return w
}

// Options translates the engine settings of cfg, except the loader and the
// function registry, into engine options.
func Options(cfg *config.EngineConfig, logger *slog.Logger) ([]engine.Option, error) {
	locator, err := engine.ParseLocator(cfg.Locator, cfg.Namespace)
	if err != nil {
		return nil, err
	}
	filter, err := format.ByName(cfg.Filters...)
	if err != nil {
		return nil, fmt.Errorf("filters: %w", err)
	}
	textFilter, err := format.ByName(cfg.TextFilters...)
	if err != nil {
		return nil, fmt.Errorf("text_filters: %w", err)
	}
	vars, err := cfg.VariableTypes()
	if err != nil {
		return nil, err
	}

	sequences := expr.DefaultSequences()
	for _, seq := range cfg.Sequences {
		sequences.Add(seq)
	}

	return []engine.Option{
		engine.WithLocator(locator),
		engine.WithFilter(filter),
		engine.WithTextFilter(textFilter),
		engine.WithFormatter(Formatter(cfg)),
		engine.WithCache(NewCache(cfg.Cache)),
		engine.WithSequences(sequences),
		engine.WithVariables(vars),
		engine.WithEncoding(cfg.Encoding),
		engine.WithReloadable(cfg.Reload),
		engine.WithStatusName(cfg.StatusName),
		engine.WithLogger(logger),
	}, nil
}

// Formatter returns the value formatter for the locale and time layout of
// cfg.
func Formatter(cfg *config.EngineConfig) *format.ValueFormatter {
	opts := []format.Option{format.WithLocale(cfg.Locale)}
	if cfg.TimeLayout != "" {
		opts = append(opts, format.WithTimeLayout(cfg.TimeLayout))
	}
	return format.NewFormatter(opts...)
}

// NewCache returns the cache selected by cfg.
func NewCache(cfg config.CacheConfig) engine.Cache {
	switch cfg.Kind {
	case config.CacheLRU:
		return engine.NewLRUCache(cfg.Size, cfg.TTL)
	case config.CacheNone:
		return engine.NopCache{}
	default:
		return engine.NewMapCache()
	}
}

// openLoaders chains the templates directory, the archive and the database,
// in that order. It returns nil when none is configured.
func (p *Project) openLoaders(logger *slog.Logger) (loader.Loader, error) {
	cfg := p.Config
	var loaders []loader.Loader

	if info, err := os.Stat(cfg.TemplatesDir); err == nil && info.IsDir() {
		loaders = append(loaders, loader.NewFileLoader(cfg.TemplatesDir, cfg.Suffixes...))
	} else if err == nil {
		return nil, fmt.Errorf("templates path is not a directory: %s", cfg.TemplatesDir)
	}

	if cfg.Archive != "" {
		zl, err := loader.OpenZipLoader(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		p.closers = append(p.closers, zl)
		loaders = append(loaders, zl)
	}

	if cfg.Database != nil {
		sl, err := loader.OpenSQLLoader(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, sl)
		p.SQL = sl
		loaders = append(loaders, sl)
	}

	switch len(loaders) {
	case 0:
		logger.Debug("no template sources configured", "templates", cfg.TemplatesDir)
		return nil, nil
	case 1:
		return loaders[0], nil
	}
	return loader.NewMultiLoader(logger, loaders...), nil
}

// Close releases the archive and database handles.
func (p *Project) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	p.closers = nil
	return errors.Join(errs...)
}
