package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/quill/internal/cli/output"
	"github.com/leapstack-labs/quill/pkg/funcs"
)

// Function sources.
const (
	SourceBuiltin  = "builtin"
	SourceStarlark = "starlark"
)

// FunctionInfo describes one function in functions output.
type FunctionInfo struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Source    string `json:"source"`
	Doc       string `json:"doc,omitempty"`
}

// NewFunctionsCommand creates the functions command.
func NewFunctionsCommand() *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List the functions available to expressions",
		Long: `List the built-in functions and the functions loaded from Starlark
files, with their signatures.`,
		Example: `  # All functions
  quill functions

  # Only one namespace
  quill functions --ns text`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunctions(cmd, namespace)
		},
	}
	cmd.Flags().StringVar(&namespace, "ns", "", "Only list functions of this namespace")
	return cmd
}

func runFunctions(cmd *cobra.Command, namespace string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	infos := describeFunctions(cmdCtx.Project.Engine.Functions(), cmdCtx.Project.Functions, namespace)

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(infos)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Functions (%d total)", len(infos))))
		r.Println("")
		for _, f := range infos {
			line := fmt.Sprintf("- `%s` (%s)", f.Signature, f.Source)
			if f.Doc != "" {
				line += ": " + firstLine(f.Doc)
			}
			r.Println(line)
		}
	default:
		r.Header(1, fmt.Sprintf("Functions (%d total)", len(infos)))
		t := table.NewWriter()
		t.SetOutputMirror(r.Writer())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Signature", "Source", "Doc"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		})
		for _, f := range infos {
			t.AppendRow(table.Row{f.Signature, f.Source, firstLine(f.Doc)})
		}
		t.Render()
	}
	return nil
}

func describeFunctions(reg *funcs.Registry, loaded []*funcs.Function, namespace string) []FunctionInfo {
	fromStarlark := make(map[*funcs.Function]bool, len(loaded))
	for _, f := range loaded {
		fromStarlark[f] = true
	}

	infos := []FunctionInfo{}
	for _, f := range reg.Functions() {
		if namespace != "" && f.Namespace != namespace {
			continue
		}
		source := SourceBuiltin
		if fromStarlark[f] {
			source = SourceStarlark
		}
		infos = append(infos, FunctionInfo{
			Name:      f.QualifiedName(),
			Signature: f.Signature(),
			Source:    source,
			Doc:       f.Doc,
		})
	}
	return infos
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
