// Package cli implements the strata command line.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/syssam/strata/config"
	"github.com/syssam/strata/dialect/sql"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Config  string
	Format  string // "json" | "text"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the strata CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "strata",
		Short: "Inspect and migrate strata databases",
		Long: `Inspect, query and migrate the tables of a MySQL, PostgreSQL or SQLite
database described by a strata configuration file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "strata.yaml", "configuration file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every statement to stderr")

	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// open loads the configuration and opens its database. Verbose turns on
// statement logging to the command's stderr.
func (o *RootOptions) open(cmd *cobra.Command) (*sql.Database, error) {
	c, err := config.Load(o.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	if o.Verbose {
		c.Debug = true
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	db, err := c.Open(logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}
	return db, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
