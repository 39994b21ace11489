package main

import (
	"github.com/spf13/cobra"
)

func newAppendCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Ingest new manifest items into an existing store",
		Long: `Append ingests the manifest items the store does not hold yet, assigning
the next indices. Existing rows are never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runIngest(cmd, true)
		},
	}
	cmd.Flags().StringP("manifest", "m", "", "dataset manifest (YAML)")
	addExtractionFlags(cmd)
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}
