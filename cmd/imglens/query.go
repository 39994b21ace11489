package main

import (
	"github.com/spf13/cobra"

	"github.com/imglens/imglens/explorer"
)

func newQueryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List stored items matching metadata filters",
		Long: `Query scans the store and prints items whose labels, split, or schema
fields match every --filter expression, in store order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd)
		},
	}
	cmd.Flags().StringArray("filter", nil, `filter "field op value" (repeatable, all must match)`)
	cmd.Flags().IntP("limit", "n", 0, "maximum results; 0 means all")
	return cmd
}

func (a *app) runQuery(cmd *cobra.Command) error {
	ctx := cmd.Context()
	exprs, _ := cmd.Flags().GetStringArray("filter")
	pred, err := parseFilters(exprs)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	eng, s, err := a.openExplorer(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	items, err := eng.QueryPredicate(ctx, pred, limit)
	if err != nil {
		return err
	}
	return renderTable(cmd.OutOrStdout(), explorer.TabulateItems(items))
}
