package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newLogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the store operation journal, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLog(cmd)
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "maximum entries; 0 means all")
	return cmd
}

func (a *app) runLog(cmd *cobra.Command) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.Log(ctx, limit)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		ts := ""
		if !e.CreatedAt.IsZero() {
			ts = e.CreatedAt.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{strconv.FormatInt(e.Seq, 10), ts, e.Op, e.Detail})
	}
	return renderRows(cmd.OutOrStdout(), []string{"seq", "time", "op", "detail"}, rows)
}
