package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/quill/internal/bootstrap"
	"github.com/leapstack-labs/quill/internal/cli/output"
	"github.com/leapstack-labs/quill/pkg/engine"
	"github.com/leapstack-labs/quill/pkg/format"
	"github.com/leapstack-labs/quill/pkg/funcs"
	"github.com/leapstack-labs/quill/pkg/types"
)

const (
	replPrompt  = "quill> "
	historyFile = ".quill_history"
)

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Evaluate expressions interactively",
		Long: `Start an interactive session that evaluates one expression per line.

Variables set with .set stay declared for the rest of the session.`,
		Example: `  quill repl
  quill> .set n:int=20
  quill> n + 22
  42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd)
		},
	}
}

// session is the state of one REPL run.
type session struct {
	engine    *engine.Engine
	formatter format.Formatter
	r         *output.Renderer
	decl      map[string]*types.Type
	values    map[string]any
}

func newSession(e *engine.Engine, f format.Formatter, r *output.Renderer) *session {
	return &session{
		engine:    e,
		formatter: f,
		r:         r,
		decl:      map[string]*types.Type{},
		values:    map[string]any{},
	}
}

func runREPL(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	e := cmdCtx.Project.Engine
	s := newSession(e, bootstrap.Formatter(&cmdCtx.Cfg.EngineConfig), cmdCtx.Renderer)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     filepath.Join(cmdCtx.Cfg.ProjectRoot, historyFile),
		AutoComplete:    newFunctionCompleter(e.Functions()),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Quill expression REPL")
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !s.handle(strings.TrimSpace(line)) {
			return nil
		}
	}
}

// handle runs one input line. It returns false when the session ends.
func (s *session) handle(line string) bool {
	if line == "" {
		return true
	}
	if strings.HasPrefix(line, ".") {
		return s.dotCommand(line)
	}
	result, err := evaluate(s.engine, s.formatter, line, s.decl, s.values)
	if err != nil {
		s.r.Error(err.Error())
		return true
	}
	s.r.Printf("%s %s\n", result.Text, s.r.Muted(": "+result.Type))
	return true
}

func (s *session) dotCommand(line string) bool {
	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(command) {
	case ".quit", ".exit":
		return false

	case ".help":
		printREPLHelp(s.r.Writer())

	case ".set":
		v, err := parseTypedVar(rest)
		if err != nil {
			s.r.Error(err.Error())
			return true
		}
		s.decl[v.Name] = v.Type
		s.values[v.Name] = v.Value

	case ".unset":
		delete(s.decl, rest)
		delete(s.values, rest)

	case ".vars":
		names := make([]string, 0, len(s.decl))
		for name := range s.decl {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s.r.Printf("%s %s = %s\n", s.decl[name], name, s.formatter.Format(s.values[name]))
		}

	case ".functions":
		for _, f := range s.engine.Functions().Functions() {
			s.r.Println(f.Signature())
		}

	default:
		s.r.Error(fmt.Sprintf("Unknown command: %s (type .help for commands)", command))
	}
	return true
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help                  Show this help message
  .set name:Type=value   Declare and bind a variable
  .unset name            Remove a variable
  .vars                  List variables
  .functions             List functions
  .quit / .exit          Exit the REPL

Tips:
  - Every other line is evaluated as an expression
  - Use arrow keys to navigate history
  - Tab completion works for function names
`
	_, _ = fmt.Fprintln(w, help)
}

// newFunctionCompleter creates a readline completer for function names and
// dot-commands.
func newFunctionCompleter(reg *funcs.Registry) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	seen := map[string]bool{}
	for _, f := range reg.Functions() {
		name := f.QualifiedName()
		if seen[name] {
			continue
		}
		seen[name] = true
		items = append(items, readline.PcItem(name+"("))
	}
	for _, c := range []string{".help", ".set", ".unset", ".vars", ".functions", ".quit", ".exit"} {
		items = append(items, readline.PcItem(c))
	}
	return readline.NewPrefixCompleter(items...)
}
