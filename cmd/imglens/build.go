package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imglens/imglens/dataset"
	"github.com/imglens/imglens/extractor"
	"github.com/imglens/imglens/store"
)

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Ingest a dataset manifest into the store",
		Long: `Build creates the store if needed and ingests the manifest, extracting an
embedding for every item not already present. Re-running a build is a no-op;
--force drops existing rows and rebuilds from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runIngest(cmd, false)
		},
	}
	cmd.Flags().StringP("manifest", "m", "", "dataset manifest (YAML)")
	cmd.Flags().String("model", "", "embedding model for a new store (defaults to the config file)")
	cmd.Flags().Bool("force", false, "drop existing rows and rebuild")
	addExtractionFlags(cmd)
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func addExtractionFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "embedding server URL (overrides the config file)")
	cmd.Flags().Bool("batch", false, "extract through the batch endpoint")
	cmd.Flags().Int("batch-size", 0, "images per batch request")
	cmd.Flags().Int("parallelism", 0, "concurrent extraction requests")
}

// runIngest implements build and append: load the manifest, open or create
// the store, and ingest through the configured embedding server.
func (a *app) runIngest(cmd *cobra.Command, appendOnly bool) error {
	ctx := cmd.Context()
	manifestPath, _ := cmd.Flags().GetString("manifest")

	m, err := dataset.Load(manifestPath)
	if err != nil {
		return err
	}
	sources, err := m.Sources()
	if err != nil {
		return err
	}

	var s *store.Store
	if appendOnly {
		if s, err = a.openStore(ctx); err != nil {
			return err
		}
		if m.Name != s.Dataset() {
			_ = s.Close()
			return fmt.Errorf("manifest dataset %q does not match store dataset %q", m.Name, s.Dataset())
		}
	} else {
		sch, err := m.Schema()
		if err != nil {
			return err
		}
		model, _ := cmd.Flags().GetString("model")
		if model == "" {
			model = a.cfg.Server.Model
		}
		if s, err = store.Create(ctx, a.cfg.Database, m.Name, model, sch, store.WithLogger(a.log)); err != nil {
			return err
		}
	}
	defer s.Close()

	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL == "" {
		serverURL = a.cfg.Server.URL
	}
	client := extractor.NewClient(serverURL, s.Model())

	force, _ := cmd.Flags().GetBool("force")
	opts := store.BuildOptions{Force: force}
	if opts.Parallelism, _ = cmd.Flags().GetInt("parallelism"); opts.Parallelism == 0 {
		opts.Parallelism = a.cfg.Server.Parallelism
	}
	batch, _ := cmd.Flags().GetBool("batch")
	if batch || a.cfg.Server.Batch {
		opts.Batch = client.BatchFunc()
		if opts.BatchSize, _ = cmd.Flags().GetInt("batch-size"); opts.BatchSize == 0 {
			opts.BatchSize = a.cfg.Server.BatchSize
		}
	}

	var added int
	if appendOnly {
		added, err = s.Append(ctx, sources, client.Func(), opts)
	} else {
		added, err = s.Build(ctx, sources, client.Func(), opts)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %d of %d items to %s (dataset %s, model %s, dim %d)\n",
		added, len(sources), s.Path(), s.Dataset(), s.Model(), s.Dim())
	return nil
}
