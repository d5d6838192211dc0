package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/quill/internal/cli/output"
	"github.com/leapstack-labs/quill/pkg/directive"
	"github.com/leapstack-labs/quill/pkg/engine"
)

// TemplateInfo describes one template in list output.
type TemplateInfo struct {
	Name       string   `json:"name"`
	Parameters []string `json:"parameters"`
	Returns    []string `json:"returns"`
	Macros     int      `json:"macros"`
	Error      string   `json:"error,omitempty"`
}

// ListOutput is the JSON output of the list command.
type ListOutput struct {
	Templates []TemplateInfo `json:"templates"`
	Total     int            `json:"total"`
	Failed    int            `json:"failed"`
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates and their parameters",
		Long: `List every template the configured sources provide, with the
parameters and return variables each declares.

Output adapts to environment:
  - Terminal: Table
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List all templates (auto-detect output format)
  quill list

  # List templates as JSON
  quill list --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	listOutput, err := listTemplates(cmdCtx.Project.Engine)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(listOutput)
	case output.ModeMarkdown:
		listMarkdown(listOutput, r)
	default:
		listText(listOutput, r)
	}
	return nil
}

func listTemplates(e *engine.Engine) (ListOutput, error) {
	names, err := e.Names()
	if err != nil {
		return ListOutput{}, fmt.Errorf("failed to list templates: %w", err)
	}
	out := ListOutput{Templates: make([]TemplateInfo, 0, len(names)), Total: len(names)}
	for _, name := range names {
		info := TemplateInfo{Name: name, Parameters: []string{}, Returns: []string{}}
		tpl, err := e.GetTemplate(name)
		if err != nil {
			info.Error = err.Error()
			out.Failed++
		} else {
			info.Parameters = declarations(tpl.Parameters())
			info.Returns = declarations(tpl.Returns())
			info.Macros = len(tpl.Macros())
		}
		out.Templates = append(out.Templates, info)
	}
	return out, nil
}

func declarations(vs []directive.Variable) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

func listText(l ListOutput, r *output.Renderer) {
	r.Header(1, fmt.Sprintf("Templates (%d total)", l.Total))

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Template", "Parameters", "Returns", "Macros"})
	for _, info := range l.Templates {
		if info.Error != "" {
			t.AppendRow(table.Row{info.Name, r.Styles().Error.Render("does not compile"), "", ""})
			continue
		}
		t.AppendRow(table.Row{
			info.Name,
			strings.Join(info.Parameters, ", "),
			strings.Join(info.Returns, ", "),
			info.Macros,
		})
	}
	t.Render()
}

func listMarkdown(l ListOutput, r *output.Renderer) {
	r.Println(output.FormatHeader(1, fmt.Sprintf("Templates (%d total)", l.Total)))
	r.Println("")
	for _, info := range l.Templates {
		r.Println(output.FormatHeader(2, info.Name))
		if info.Error != "" {
			r.Println(output.FormatKeyValue("Error", info.Error))
			r.Println("")
			continue
		}
		if len(info.Parameters) > 0 {
			r.Println(output.FormatKeyValue("Parameters", strings.Join(info.Parameters, ", ")))
		}
		if len(info.Returns) > 0 {
			r.Println(output.FormatKeyValue("Returns", strings.Join(info.Returns, ", ")))
		}
		if info.Macros > 0 {
			r.Println(output.FormatKeyValue("Macros", fmt.Sprintf("%d", info.Macros)))
		}
		r.Println("")
	}
}
