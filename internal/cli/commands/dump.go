package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/quill/internal/cli/output"
)

// DumpOutput is the JSON output of the dump command.
type DumpOutput struct {
	Template    string `json:"template"`
	Fingerprint string `json:"fingerprint"`
	Tree        string `json:"tree"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <template>",
		Short: "Print the compiled form of a template",
		Long: `Compile a template and print its fragment tree: declared variables,
extracted macros, literal text and the translated expressions.

This is useful for debugging directive placement and expression types.`,
		Example: `  quill dump mail/welcome.html`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, args[0])
		},
	}
}

func runDump(cmd *cobra.Command, name string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	tpl, err := cmdCtx.Project.Engine.GetTemplate(name)
	if err != nil {
		return err
	}
	tree := tpl.Unit().Dump()

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(DumpOutput{Template: tpl.Name(), Fingerprint: tpl.Fingerprint(), Tree: tree})
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Compiled template: "+tpl.Name()))
		r.Println("")
		r.Println("```")
		r.Printf("%s", tree)
		r.Println("```")
	default:
		r.Println(r.Muted(tpl.Fingerprint()))
		r.Printf("%s", tree)
	}
	return nil
}
