package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imglens/imglens/simindex"
)

func newSimindexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simindex",
		Short: "Report near-duplicate neighborhoods for every stored item",
		Long: `Simindex counts, for every stored item, how many of its top-k nearest
neighbors lie within a cosine distance threshold. Results are cached in the
store and reused until the embeddings change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSimindex(cmd)
		},
	}
	cmd.Flags().Float64("max-dist", 0.05, "neighbor distance threshold")
	cmd.Flags().Int("top-k", 10, "neighbors examined per item")
	cmd.Flags().Bool("refresh", false, "recompute even if a cached result exists")
	return cmd
}

func (a *app) runSimindex(cmd *cobra.Command) error {
	ctx := cmd.Context()

	maxDist := a.cfg.SimIndex.MaxDist
	if cmd.Flags().Changed("max-dist") {
		maxDist, _ = cmd.Flags().GetFloat64("max-dist")
	}
	topK := a.cfg.SimIndex.TopK
	if cmd.Flags().Changed("top-k") {
		topK, _ = cmd.Flags().GetInt("top-k")
	}
	refresh, _ := cmd.Flags().GetBool("refresh")

	eng, s, err := a.openExplorer(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	cache := simindex.New(eng, simindex.WithLogger(a.log))
	key := simindex.KeyFor(s, maxDist, topK)
	get := cache.Get
	if refresh {
		get = cache.Refresh
	}
	entries, err := get(ctx, key)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(e.Index),
			e.FilePath,
			strconv.Itoa(e.Count),
			strings.Join(e.SimilarFilePaths, ","),
		})
	}
	return renderRows(cmd.OutOrStdout(), []string{"index", "file_path", "count", "similar_file_paths"}, rows)
}
