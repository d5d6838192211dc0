package template

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/quill/pkg/directive"
	"github.com/leapstack-labs/quill/pkg/format"
	"github.com/leapstack-labs/quill/pkg/loader"
	"github.com/leapstack-labs/quill/pkg/tplerr"
)

// excerptLines bounds the unit dump attached to backend errors.
const excerptLines = 40

// Config holds the components an Assembler builds templates with.
type Config struct {
	Backend Backend
	// Compile configures the directive compiler.
	Compile directive.Options
	// Formatter renders interpolated values. Nil uses format.NewFormatter().
	Formatter format.Formatter
	// Filter post-processes interpolated values unless they are raw.
	Filter format.Filter
	// Templates resolves macro sub-templates at render time.
	Templates directive.TemplateSource
	Logger    *slog.Logger
}

// Assembler compiles resources into templates. Templates are remembered by
// fingerprint; assembling a resource whose name, encoding and modification
// time match an earlier one returns the earlier template.
type Assembler struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	byPrint map[string]*Template
	// latest maps a template name to its newest fingerprint so superseded
	// versions can be dropped.
	latest map[string]string
}

// NewAssembler creates an assembler.
func NewAssembler(cfg Config) *Assembler {
	if cfg.Backend == nil {
		cfg.Backend = NewInterpreter()
	}
	if cfg.Formatter == nil {
		cfg.Formatter = format.NewFormatter()
	}
	if cfg.Filter == nil {
		cfg.Filter = format.Identity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Assembler{
		cfg:     cfg,
		logger:  logger,
		byPrint: make(map[string]*Template),
		latest:  make(map[string]string),
	}
}

// Assemble compiles res, or returns the template already built for its
// fingerprint.
func (a *Assembler) Assemble(res *loader.Resource) (*Template, error) {
	fp := Fingerprint(res.Name, res.Encoding, res.LastModified)
	if t := a.lookup(fp); t != nil {
		a.logger.Debug("fingerprint hit", "template", res.Name, "fingerprint", fp)
		return t, nil
	}

	source, err := res.Source()
	if err != nil {
		return nil, tplerr.NewResourceError(res.Name, err)
	}
	return a.assemble(res, fp, source)
}

// AssembleSource compiles source text that did not come from a loader.
func (a *Assembler) AssembleSource(name, source string, modified time.Time) (*Template, error) {
	return a.Assemble(loader.NewTextResource(name, "", modified, source))
}

func (a *Assembler) assemble(res *loader.Resource, fp, source string) (*Template, error) {
	start := time.Now()
	unit, err := directive.Compile(res.Name, source, a.cfg.Compile)
	if err != nil {
		return nil, tplerr.Annotate(res.Name, source, err)
	}
	unit.Encoding = res.Encoding
	unit.LastModified = res.LastModified
	unit.Fingerprint = fp

	program, err := a.cfg.Backend.Compile(unit)
	if err != nil {
		var be *tplerr.BackendError
		if !errors.As(err, &be) {
			err = tplerr.NewBackendError(res.Name, excerpt(unit.Dump()), err)
		}
		return nil, err
	}

	t := &Template{
		unit:      unit,
		program:   program,
		formatter: a.cfg.Formatter,
		filter:    a.cfg.Filter,
		templates: a.cfg.Templates,
	}
	a.store(res.Name, fp, t)
	a.logger.Debug("compiled template",
		"template", res.Name,
		"fingerprint", fp,
		"parameters", len(unit.Parameters),
		"macros", len(unit.Macros),
		"duration", time.Since(start),
	)
	return t, nil
}

func (a *Assembler) lookup(fp string) *Template {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byPrint[fp]
}

func (a *Assembler) store(name, fp string, t *Template) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if old, ok := a.latest[name]; ok && old != fp {
		delete(a.byPrint, old)
	}
	a.latest[name] = fp
	a.byPrint[fp] = t
}

// Forget drops every remembered version of name.
func (a *Assembler) Forget(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if fp, ok := a.latest[name]; ok {
		delete(a.byPrint, fp)
		delete(a.latest, name)
	}
}

// Len is the number of remembered templates.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byPrint)
}

// Fingerprint names a template version by name, encoding and modification
// time. Bytes outside [A-Za-z0-9] are written as _xx so distinct names
// never share a fingerprint.
func Fingerprint(name, encoding string, modified time.Time) string {
	var sb strings.Builder
	mangle(&sb, name)
	sb.WriteByte('$')
	mangle(&sb, encoding)
	sb.WriteByte('$')
	sb.WriteString(strconv.FormatInt(modified.UnixMilli(), 10))
	return sb.String()
}

func mangle(sb *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(sb, "_%02x", c)
	}
}

func excerpt(dump string) string {
	lines := strings.SplitAfter(dump, "\n")
	if len(lines) <= excerptLines {
		return strings.TrimRight(dump, "\n")
	}
	return strings.Join(lines[:excerptLines], "") + "..."
}
