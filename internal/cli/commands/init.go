package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/quill/internal/cli/output"
	"github.com/leapstack-labs/quill/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new Quill project",
		Long: `Initialize a new Quill project with a default layout and configuration.

This creates:
  - templates/ with a sample template
  - functions/ with a sample Starlark function file
  - quill.yaml configuration file`,
		Example: `  # Initialize in current directory
  quill init

  # Initialize in a new directory
  quill init my-site

  # Force overwrite existing files
  quill init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileName)
	}

	if err := copyScaffold("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listScaffoldFiles("minimal")
	for _, f := range files {
		r.Println(r.Styles().Success.Render("✓") + " " + f)
	}

	r.Println("")
	r.Success("Quill project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Add templates to templates/")
	r.Println("  2. Add Starlark functions to functions/")
	r.Println("  3. Run 'quill render hello.html -p name=world -p count=3'")
	r.Println("  4. Run 'quill check' to compile every template")

	return nil
}
