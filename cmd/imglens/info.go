package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show store metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInfo(cmd)
		},
	}
}

func (a *app) runInfo(cmd *cobra.Command) error {
	ctx := cmd.Context()
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := s.Info(ctx)
	if err != nil {
		return err
	}

	var fields []string
	for name, kind := range info.Fields {
		fields = append(fields, fmt.Sprintf("%s:%s", name, kind))
	}
	sort.Strings(fields)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "dataset\t%s\n", info.Dataset)
	fmt.Fprintf(tw, "model\t%s\n", info.Model)
	fmt.Fprintf(tw, "items\t%d\n", info.Count)
	fmt.Fprintf(tw, "dim\t%d\n", info.Dim)
	fmt.Fprintf(tw, "content hash\t%s\n", info.ContentHash)
	if len(fields) > 0 {
		fmt.Fprintf(tw, "fields\t%s\n", strings.Join(fields, " "))
	}
	if !info.CreatedAt.IsZero() {
		fmt.Fprintf(tw, "created\t%s\n", info.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "database\t%s\n", s.Path())
	return tw.Flush()
}
