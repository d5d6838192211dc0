package macro

import (
	"log/slog"
	"sort"

	"go.starlark.net/starlark"

	quillstar "github.com/leapstack-labs/quill/internal/starlark"
	"github.com/leapstack-labs/quill/pkg/funcs"
)

// Options configures LoadAndRegister.
type Options struct {
	// Constants is exposed to every file as the frozen dict "constants".
	Constants map[string]any
	// MaxSteps bounds each call. Zero is unbounded.
	MaxSteps uint64
	// PoolSize is the number of idle threads kept between calls.
	PoolSize int
	Logger   *slog.Logger
}

// Register adds the callable exports of modules to reg under their
// namespaces. Exports that are not callable are skipped. It returns the
// registered functions.
func Register(reg *funcs.Registry, modules []*LoadedModule, caller *quillstar.Caller) ([]*funcs.Function, error) {
	var registered []*funcs.Function
	for _, m := range modules {
		parsed := &ParsedNamespace{Name: m.Namespace, FilePath: m.Path, Functions: m.Functions}

		names := make([]string, 0, len(m.Exports))
		for name := range m.Exports {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			fn, ok := m.Exports[name].(starlark.Callable)
			if !ok {
				continue
			}
			f := caller.Function(m.Namespace, name, fn, signatureOf(name, fn, parsed))
			if err := reg.Register(f); err != nil {
				return nil, err
			}
			registered = append(registered, f)
		}
	}
	return registered, nil
}

// signatureOf prefers the static description of a def and falls back to
// the runtime function for aliases and lambdas.
func signatureOf(name string, fn starlark.Callable, parsed *ParsedNamespace) quillstar.Signature {
	if def, ok := parsed.Lookup(name); ok && def.Name == fn.Name() {
		return quillstar.Signature{Required: def.Required, Optional: def.Optional, Doc: def.Docstring}
	}
	sfn, ok := fn.(*starlark.Function)
	if !ok {
		return quillstar.Signature{Optional: true}
	}
	positional := sfn.NumParams() - sfn.NumKwonlyParams()
	if sfn.HasVarargs() {
		positional--
	}
	if sfn.HasKwargs() {
		positional--
	}
	sig := quillstar.Signature{Optional: sfn.HasVarargs(), Doc: sfn.Doc()}
	for i := 0; i < positional; i++ {
		if sfn.ParamDefault(i) != nil {
			sig.Optional = true
			continue
		}
		if !sig.Optional {
			sig.Required++
		}
	}
	return sig
}

// LoadAndRegister loads the function files in dir and registers their
// exports in reg.
func LoadAndRegister(dir string, reg *funcs.Registry, opts Options) ([]*funcs.Function, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	modules, err := NewLoader(dir, opts.Constants, logger).Load()
	if err != nil {
		return nil, err
	}
	caller := quillstar.NewCaller(quillstar.NewThreadPool(opts.PoolSize, logger), opts.MaxSteps)
	registered, err := Register(reg, modules, caller)
	if err != nil {
		return nil, err
	}
	logger.Debug("registered starlark functions", "dir", dir, "modules", len(modules), "functions", len(registered))
	return registered, nil
}
