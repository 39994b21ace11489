package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imglens/imglens/embedding"
	"github.com/imglens/imglens/explorer"
)

func newSimilarCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar [index...]",
		Short: "Find stored items nearest to items, images, or a vector",
		Long: `Similar ranks stored items by distance to a query seeded from stored item
indices (arguments), external images (--image, vectorized through the
embedding server), or a raw vector (--vector). Multiple seeds query their
mean vector. Queried indices never appear in the result.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSimilar(cmd, args)
		},
	}
	cmd.Flags().StringArray("image", nil, "query image path or URL (repeatable)")
	cmd.Flags().String("vector", "", "raw query vector as comma-separated floats")
	cmd.Flags().IntP("limit", "n", 25, "maximum results; 0 means all")
	cmd.Flags().String("metric", "", "distance metric: cosine, l2")
	cmd.Flags().StringArray("filter", nil, `pre-filter "field op value" (repeatable, all must match)`)
	cmd.Flags().StringArray("post-filter", nil, "filter applied to ranked results before truncation (repeatable)")
	cmd.Flags().IntSlice("exclude", nil, "store indices to drop from the result")
	return cmd
}

func (a *app) runSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts, err := a.searchOptions(cmd)
	if err != nil {
		return err
	}
	images, _ := cmd.Flags().GetStringArray("image")
	rawVec, _ := cmd.Flags().GetString("vector")

	seeds := 0
	for _, present := range []bool{len(args) > 0, len(images) > 0, rawVec != ""} {
		if present {
			seeds++
		}
	}
	if seeds != 1 {
		return fmt.Errorf("provide exactly one query seed: stored indices, --image, or --vector")
	}

	eng, s, err := a.openExplorer(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var matches []explorer.Match
	switch {
	case len(args) > 0:
		indices, perr := parseIndices(args)
		if perr != nil {
			return perr
		}
		matches, err = eng.SimilarByIndices(ctx, indices, opts)
	case len(images) > 0:
		matches, err = eng.SimilarByImages(ctx, images, opts)
	default:
		vec, perr := parseVector(rawVec)
		if perr != nil {
			return perr
		}
		matches, err = eng.QueryVector(ctx, vec, opts)
	}
	if err != nil {
		return err
	}
	return renderTable(cmd.OutOrStdout(), explorer.TabulateMatches(matches))
}

// searchOptions assembles SearchOptions from flags, falling back to the
// configured defaults.
func (a *app) searchOptions(cmd *cobra.Command) (explorer.SearchOptions, error) {
	var opts explorer.SearchOptions

	opts.Limit = a.cfg.Search.Limit
	if cmd.Flags().Changed("limit") {
		opts.Limit, _ = cmd.Flags().GetInt("limit")
	}

	name, _ := cmd.Flags().GetString("metric")
	if name == "" {
		name = a.cfg.Search.Metric
	}
	metric, err := embedding.ParseMetric(name)
	if err != nil {
		return opts, err
	}
	opts.Metric = metric

	pre, _ := cmd.Flags().GetStringArray("filter")
	if opts.PreFilter, err = parseFilters(pre); err != nil {
		return opts, err
	}
	post, _ := cmd.Flags().GetStringArray("post-filter")
	if opts.PostFilter, err = parseFilters(post); err != nil {
		return opts, err
	}
	opts.Exclude, _ = cmd.Flags().GetIntSlice("exclude")
	return opts, nil
}
