package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/strata/schema"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			tables, err := db.Tables(cmd.Context())
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				if tables == nil {
					tables = []string{}
				}
				return f.Success(tables)
			}
			return f.Success(strings.Join(tables, "\n"))
		},
	}
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Print the definition of a table",
		Long: `Print the introspected definition of a table as YAML. The output can be
edited and fed back to the migrate command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			def, err := db.Definition(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := schema.MarshalDefinition(def)
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(string(out))
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
