package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/syssam/strata/dialect/sql/migrate"
	"github.com/syssam/strata/schema"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	DryRun             bool
	AllowDropColumn    bool
	AllowDropKey       bool
	AllowNullToNotNull bool
}

func (o *MigrateOptions) options() []migrate.Option {
	var opts []migrate.Option
	if o.AllowDropColumn {
		opts = append(opts, migrate.AllowDropColumn())
	}
	if o.AllowDropKey {
		opts = append(opts, migrate.AllowDropKey())
	}
	if o.AllowNullToNotNull {
		opts = append(opts, migrate.AllowNullToNotNull())
	}
	return opts
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate <definitions.yaml>",
		Short: "Create or alter tables to match their definitions",
		Long: `Create or alter tables to match the definitions of a YAML file, one
document per table, in the format printed by describe.

Dropping columns or keys and making nullable columns NOT NULL are refused
unless allowed with a flag.

Exit codes:
  0 - Migrated, or nothing to do
  1 - The plan was refused
  2 - Command error (invalid file, connection failure, etc.)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the plan without applying it")
	cmd.Flags().BoolVar(&opts.AllowDropColumn, "allow-drop-column", false, "allow dropping columns")
	cmd.Flags().BoolVar(&opts.AllowDropKey, "allow-drop-key", false, "allow dropping keys")
	cmd.Flags().BoolVar(&opts.AllowNullToNotNull, "allow-null-to-not-null", false, "allow nullable columns to become NOT NULL")

	return cmd
}

func runMigrate(opts *MigrateOptions, path string, cmd *cobra.Command) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read definitions", err)
	}
	defs, err := schema.UnmarshalDefinitions(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "parse definitions", err)
	}
	db, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	m := migrate.New(db, opts.options()...)
	plan, err := m.Plan(ctx, defs...)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)
	if opts.DryRun || plan.Result.HasErrors() {
		if err := f.Success(plan.String()); err != nil {
			return err
		}
		if plan.Result.HasErrors() {
			return NewExitError(ExitFailure, fmt.Sprintf("migration refused with %d error(s)", len(plan.Result.Errors)))
		}
		return nil
	}
	if err := m.Migrate(ctx, defs...); err != nil {
		return err
	}
	return f.Success(fmt.Sprintf("Applied %d change(s)", len(plan.Changes)))
}
