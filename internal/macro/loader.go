// Package macro loads function files: Starlark modules whose exported
// functions become template functions. Each file is a namespace named after
// the file, so strings.star defines strings.pad, strings.slug and so on.
package macro

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	quillstar "github.com/leapstack-labs/quill/internal/starlark"
)

// Extension is the suffix of function files.
const Extension = ".star"

// Loader scans a directory for function files and executes them.
type Loader struct {
	dir       string
	constants map[string]any
	logger    *slog.Logger
}

// NewLoader creates a loader for dir. constants is exposed to every file as
// the frozen dict "constants".
func NewLoader(dir string, constants map[string]any, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{dir: dir, constants: constants, logger: logger}
}

// LoadedModule is an executed function file.
type LoadedModule struct {
	// Namespace is the file name without its extension.
	Namespace string
	Path      string
	// Exports holds the globals whose names do not start with "_".
	Exports starlark.StringDict
	// Functions describes the top-level defs, in source order.
	Functions []*ParsedFunction
}

// Load executes every function file in the directory, sorted by name. A
// missing directory yields no modules.
func (l *Loader) Load() ([]*LoadedModule, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("access functions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("functions path is not a directory: %s", l.dir)
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*"+Extension))
	if err != nil {
		return nil, fmt.Errorf("scan functions directory: %w", err)
	}
	sort.Strings(files)

	predeclared, err := quillstar.Predeclared(l.constants)
	if err != nil {
		return nil, fmt.Errorf("function constants: %w", err)
	}

	modules := make([]*LoadedModule, 0, len(files))
	for _, file := range files {
		module, err := l.loadFile(file, predeclared)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded function file", "namespace", module.Namespace, "exports", len(module.Exports))
		modules = append(modules, module)
	}
	return modules, nil
}

func (l *Loader) loadFile(path string, predeclared starlark.StringDict) (*LoadedModule, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a glob of the functions directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("read: %v", err)}
	}

	namespace := strings.TrimSuffix(filepath.Base(path), Extension)
	if err := validateNamespace(namespace); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	parsed, err := ParseFile(path, content)
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	logger := l.logger
	thread := &starlark.Thread{
		Name: "load:" + namespace,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Debug("starlark print", "namespace", namespace, "msg", msg)
		},
	}
	globals, err := starlark.ExecFileOptions(syntax.LegacyFileOptions(), thread, path, content, predeclared)
	if err != nil {
		msg := err.Error()
		var ee *starlark.EvalError
		if errors.As(err, &ee) {
			msg = ee.Backtrace()
		}
		return nil, &LoadError{File: path, Message: msg}
	}

	exports := make(starlark.StringDict, len(globals))
	for name, value := range globals {
		if !strings.HasPrefix(name, "_") {
			exports[name] = value
		}
	}

	return &LoadedModule{
		Namespace: namespace,
		Path:      path,
		Exports:   exports,
		Functions: parsed.Functions,
	}, nil
}

// validateNamespace requires an identifier so ns.fn parses as a qualified
// call.
func validateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	for i, r := range name {
		switch {
		case isLetter(r) || r == '_':
		case i > 0 && isDigit(r):
		case i == 0:
			return fmt.Errorf("namespace must start with letter or underscore: %s", name)
		default:
			return fmt.Errorf("namespace contains invalid character: %s", name)
		}
	}
	return nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// LoadError is a function file that could not be loaded.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("functions/%s: %s", filepath.Base(e.File), e.Message)
}
