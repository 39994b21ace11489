package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imglens/imglens/embedding"
	"github.com/imglens/imglens/index"
)

func newReindexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the persisted vector index",
		Long: `Reindex rebuilds the vector index for a metric from the stored embeddings
and persists it, so later searches skip the initial build.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReindex(cmd)
		},
	}
	cmd.Flags().String("metric", "", "distance metric: cosine, l2")
	cmd.Flags().String("kind", "auto", "index kind: auto, brute, cover")
	return cmd
}

func (a *app) runReindex(cmd *cobra.Command) error {
	ctx := cmd.Context()

	name, _ := cmd.Flags().GetString("metric")
	if name == "" {
		name = a.cfg.Search.Metric
	}
	metric, err := embedding.ParseMetric(name)
	if err != nil {
		return err
	}
	kindName, _ := cmd.Flags().GetString("kind")
	kind, err := index.ParseKind(kindName)
	if err != nil {
		return err
	}

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.RebuildIndex(ctx, metric, kind)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d items for %s\n", n, metric)
	return nil
}
