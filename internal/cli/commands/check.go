package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/quill/internal/cli/output"
	"github.com/leapstack-labs/quill/pkg/engine"
	"github.com/leapstack-labs/quill/pkg/tplerr"
)

// Diagnostic is one template that failed to compile.
type Diagnostic struct {
	Template string `json:"template"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
	Snippet  string `json:"snippet,omitempty"`
}

// CheckOutput is the JSON output of the check command.
type CheckOutput struct {
	Compiled    int          `json:"compiled"`
	Failed      int          `json:"failed"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compile every template and report errors",
		Long: `Compile every template the configured sources provide, in parallel,
and report each failure with its location.

The command exits with an error when any template fails to compile, so it
can gate a CI pipeline.`,
		Example: `  quill check
  quill check --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd)
		},
	}
}

func runCheck(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := checkTemplates(cmd, cmdCtx.Project.Engine)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(result); err != nil {
			return err
		}
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Template check"))
		r.Println("")
		r.Println(output.FormatKeyValue("Compiled", fmt.Sprintf("%d", result.Compiled)))
		r.Println(output.FormatKeyValue("Failed", fmt.Sprintf("%d", result.Failed)))
		for _, d := range result.Diagnostics {
			r.Println("")
			r.Println(output.FormatHeader(2, d.Template))
			r.Println(d.Message)
			if d.Snippet != "" {
				r.Println("```")
				r.Println(d.Snippet)
				r.Println("```")
			}
		}
	default:
		for _, d := range result.Diagnostics {
			printDiagnostic(r, d)
		}
		if result.Failed == 0 {
			r.Success(fmt.Sprintf("%d templates compiled", result.Compiled))
		}
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d templates failed to compile", result.Failed, result.Compiled+result.Failed)
	}
	return nil
}

func checkTemplates(cmd *cobra.Command, e *engine.Engine) (CheckOutput, error) {
	result := CheckOutput{Diagnostics: []Diagnostic{}}
	compiled, err := e.Precompile(cmd.Context())
	result.Compiled = compiled
	if err == nil {
		return result, nil
	}

	var pe *engine.PrecompileError
	if !errors.As(err, &pe) {
		return result, err
	}
	for _, failure := range pe.Errors {
		result.Diagnostics = append(result.Diagnostics, diagnose(failure))
	}
	result.Failed = len(result.Diagnostics)
	return result, nil
}

// diagnose extracts the location of a compile failure.
func diagnose(err error) Diagnostic {
	var ce *tplerr.CompileError
	if !errors.As(err, &ce) {
		d := Diagnostic{Message: err.Error()}
		var re *tplerr.ResourceError
		if errors.As(err, &re) {
			d.Template = re.Name
		}
		return d
	}
	d := Diagnostic{
		Template: ce.Template,
		Line:     ce.Line,
		Column:   ce.Column,
		Message:  ce.Err.Error(),
		Snippet:  ce.Snippet,
	}
	var pe tplerr.Error
	if errors.As(ce.Err, &pe) {
		d.Message = pe.Message()
	}
	return d
}

func printDiagnostic(r *output.Renderer, d Diagnostic) {
	styles := r.Styles()
	where := d.Template
	if d.Line > 0 {
		where = fmt.Sprintf("%s:%d:%d", d.Template, d.Line, d.Column)
	}
	r.Error(fmt.Sprintf("%s %s", styles.Bold.Render(where), d.Message))
	if d.Snippet == "" {
		return
	}
	lines := strings.Split(d.Snippet, "\n")
	for i, line := range lines {
		if i == len(lines)-1 && strings.HasSuffix(line, "^") {
			line = strings.TrimSuffix(line, "^") + styles.Caret.Render("^")
		} else {
			line = styles.Muted.Render(line)
		}
		_, _ = fmt.Fprintln(r.ErrWriter(), "    "+line)
	}
}
