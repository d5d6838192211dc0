package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/quill/pkg/loader"
)

// errNoDatabase is returned by db subcommands when quill.yaml has no
// database section.
var errNoDatabase = errors.New("no database configured (set database.driver and database.dsn)")

// NewDBCommand creates the db command.
func NewDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage templates stored in a database",
		Long: `Manage the templates table read by the database loader.

The database is configured in quill.yaml:

  database:
    driver: sqlite   # or pgx
    dsn: .quill/templates.db`,
	}

	cmd.AddCommand(newDBMigrateCommand())
	cmd.AddCommand(newDBPutCommand())
	cmd.AddCommand(newDBDeleteCommand())
	return cmd
}

// withDatabase runs fn with the project's SQL loader.
func withDatabase(cmd *cobra.Command, fn func(*CommandContext, *loader.SQLLoader) error) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if cmdCtx.Project.SQL == nil {
		return errNoDatabase
	}
	return fn(cmdCtx, cmdCtx.Project.SQL)
}

func readAll(cmd *cobra.Command) ([]byte, error) {
	return io.ReadAll(cmd.InOrStdin())
}

func newDBMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the templates table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(cmdCtx *CommandContext, sl *loader.SQLLoader) error {
				if err := sl.Migrate(); err != nil {
					return err
				}
				cmdCtx.Renderer.Success("Database migrated")
				return nil
			})
		},
	}
}

func newDBPutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put <name> <file>",
		Short: "Store a template from a file",
		Example: `  quill db put mail/welcome.html ./welcome.html
  cat page.html | quill db put page.html -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[1] == "-" {
				data, err = readAll(cmd)
			} else {
				data, err = os.ReadFile(args[1])
			}
			if err != nil {
				return fmt.Errorf("failed to read template: %w", err)
			}
			return withDatabase(cmd, func(cmdCtx *CommandContext, sl *loader.SQLLoader) error {
				if err := sl.Put(cmd.Context(), args[0], string(data)); err != nil {
					return err
				}
				cmdCtx.Renderer.Success("Stored " + loader.CleanName(args[0]))
				return nil
			})
		},
	}
}

func newDBDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored template",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(cmdCtx *CommandContext, sl *loader.SQLLoader) error {
				if err := sl.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmdCtx.Renderer.Success("Deleted " + loader.CleanName(args[0]))
				return nil
			})
		},
	}
}
