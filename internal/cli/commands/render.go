package commands

import (
	"fmt"
	"os"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/quill/internal/cli/output"
)

// RenderOptions holds options for the render command.
type RenderOptions struct {
	Params     []string
	ParamsFile string
	Format     string
	Out        string
}

// RenderOutput is the JSON output of the render command.
type RenderOutput struct {
	Template string         `json:"template"`
	Output   string         `json:"output"`
	Returns  map[string]any `json:"returns"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	opts := &RenderOptions{}
	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a template",
		Long: `Render a template with parameters given on the command line or in a
YAML file.

Parameters given as name=value are parsed by the declared parameter type.
Values from --params keep their YAML types and are converted.

Output adapts to environment:
  - Terminal or pipe: the rendered text
  - JSON: the output together with the template's return values`,
		Example: `  # Render a template
  quill render mail/welcome.html --param name=Ada --param count=3

  # Take parameters from a file and write the result to disk
  quill render report.html --params values.yaml --out report.out.html

  # Convert rendered HTML to Markdown
  quill render page.html --format markdown`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "Parameter as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.ParamsFile, "params", "", "YAML file of parameter values")
	cmd.Flags().StringVar(&opts.Format, "format", "raw", "Output conversion: raw, markdown")
	cmd.Flags().StringVar(&opts.Out, "out", "", "Write the output to a file")

	return cmd
}

func runRender(cmd *cobra.Command, name string, opts *RenderOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	tpl, err := cmdCtx.Project.Engine.GetTemplate(name)
	if err != nil {
		return err
	}
	params, err := bindParams(tpl.Parameters(), opts.ParamsFile, opts.Params)
	if err != nil {
		return err
	}

	var sb strings.Builder
	returns, err := tpl.Execute(&sb, params)
	if err != nil {
		return err
	}
	text, err := convert(sb.String(), opts.Format)
	if err != nil {
		return err
	}

	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.Out, err)
		}
		r.Success(fmt.Sprintf("Rendered %s to %s", tpl.Name(), opts.Out))
		return nil
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(RenderOutput{Template: tpl.Name(), Output: text, Returns: returns})
	}
	_, err = fmt.Fprint(r.Writer(), text)
	return err
}

// convert applies the --format conversion to rendered output.
func convert(text, format string) (string, error) {
	switch format {
	case "", "raw":
		return text, nil
	case "markdown", "md":
		md, err := htmltomarkdown.ConvertString(text)
		if err != nil {
			return "", fmt.Errorf("convert to markdown: %w", err)
		}
		return md, nil
	}
	return "", fmt.Errorf("unknown format %q (want raw or markdown)", format)
}
