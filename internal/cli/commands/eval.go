package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/quill/internal/bootstrap"
	"github.com/leapstack-labs/quill/internal/cli/output"
	"github.com/leapstack-labs/quill/pkg/engine"
	"github.com/leapstack-labs/quill/pkg/format"
	"github.com/leapstack-labs/quill/pkg/types"
)

// EvalOptions holds options for the eval command.
type EvalOptions struct {
	Vars     []string
	VarsFile string
}

// EvalOutput is the JSON output of the eval command.
type EvalOutput struct {
	Expression string `json:"expression"`
	Type       string `json:"type"`
	Value      any    `json:"value"`
	Text       string `json:"text"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	opts := &EvalOptions{}
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression",
		Long: `Type-check and evaluate a single expression with the configured
functions and global variables.

Variables are declared with --var name:Type=value. Without a type the
variable is a String. Values from --vars are typed by their YAML form.`,
		Example: `  # Arithmetic and string functions
  quill eval '1 + 2 * 3'
  quill eval 'text.upper(name)' --var name=ada

  # Typed variables
  quill eval 'n * 2' --var n:int=21

  # Print the static type along with the value
  quill eval '[1, 2, 3]' --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "Variable as name:Type=value (repeatable)")
	cmd.Flags().StringVar(&opts.VarsFile, "vars", "", "YAML file of variable values")

	return cmd
}

func runEval(cmd *cobra.Command, source string, opts *EvalOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	decl, values, err := bindVars(opts.VarsFile, opts.Vars)
	if err != nil {
		return err
	}
	f := bootstrap.Formatter(&cmdCtx.Cfg.EngineConfig)
	result, err := evaluate(cmdCtx.Project.Engine, f, source, decl, values)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(result)
	}
	r.Println(result.Text)
	return nil
}

// evaluate compiles and evaluates source. The text form of the value is
// formatted the way an interpolation would print it.
func evaluate(e *engine.Engine, f format.Formatter, source string, decl map[string]*types.Type, values map[string]any) (EvalOutput, error) {
	ex, err := e.GetExpression(source, decl)
	if err != nil {
		return EvalOutput{}, err
	}
	v, err := ex.Evaluate(values)
	if err != nil {
		return EvalOutput{}, err
	}
	return EvalOutput{
		Expression: ex.String(),
		Type:       ex.Type().String(),
		Value:      v,
		Text:       f.Format(v),
	}, nil
}
