package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syssam/strata/selection"
)

// QueryOptions holds flags for the query and count commands.
type QueryOptions struct {
	*RootOptions
	Where   string
	Columns []string
	OrderBy []string
	Desc    bool
	Limit   int
	Offset  int
}

func (o *QueryOptions) apply(s *selection.Selection) *selection.Selection {
	if o.Where != "" {
		s = s.Where(o.Where)
	}
	if len(o.OrderBy) > 0 {
		if o.Desc {
			s = s.OrderByDescending(o.OrderBy...)
		} else {
			s = s.OrderBy(o.OrderBy...)
		}
	}
	if o.Limit >= 0 {
		s = s.Limit(o.Limit)
	}
	return s
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Print the records of a table",
		Long: `Print the records of a table matching an expression.

Examples:
  strata query users --where 'age >= 18 and name like "a%"' --order-by name
  strata query users --select id,name --limit 10 --offset 20 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			tbl := db.Table(args[0])
			columns := opts.Columns
			if len(columns) == 0 {
				def, err := tbl.Definition(ctx)
				if err != nil {
					return err
				}
				columns = def.Fields()
			}
			records, err := opts.apply(tbl.Select()).Offset(opts.Offset).Select(columns...).All(ctx)
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Records(columns, records)
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "filter expression")
	cmd.Flags().StringSliceVar(&opts.Columns, "select", nil, "columns to print (default all)")
	cmd.Flags().StringSliceVar(&opts.OrderBy, "order-by", nil, "columns to sort by")
	cmd.Flags().BoolVar(&opts.Desc, "desc", false, "sort in descending order")
	cmd.Flags().IntVar(&opts.Limit, "limit", -1, "maximum number of records")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of records to skip")

	return cmd
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts, Limit: -1}

	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Count the records of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := opts.apply(db.Table(args[0]).Select()).Count(cmd.Context())
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(n)
			}
			return f.Success(fmt.Sprint(n))
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "filter expression")
	return cmd
}
