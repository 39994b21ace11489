package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/imglens/imglens/config"
	"github.com/imglens/imglens/explorer"
	"github.com/imglens/imglens/extractor"
	"github.com/imglens/imglens/logging"
	"github.com/imglens/imglens/store"
)

// app carries the configuration and logger shared by every command.
type app struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log *logging.Logger
}

// NewRootCmd assembles the imglens command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "imglens",
		Short: "Explore labeled image datasets through their embeddings",
		Long: `imglens ingests image embeddings into a per-dataset SQLite store and
answers similarity and metadata queries over them: nearest neighbors of
stored items, of new images, or of raw vectors, filtered scans, and a
cached per-item near-duplicate analytic.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.DefaultPath, "configuration file")
	pf.StringVar(&a.dbPath, "db", "", "store database path (overrides the config file)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text, json")

	root.AddCommand(
		newBuildCmd(a),
		newAppendCmd(a),
		newSimilarCmd(a),
		newQueryCmd(a),
		newSimindexCmd(a),
		newReindexCmd(a),
		newInfoCmd(a),
		newLogCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	a.cfg = cfg

	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.Format == "json" {
		a.log = logging.NewJSONLogger(level)
	} else {
		a.log = logging.NewTextLogger(level)
	}
	return nil
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, a.cfg.Database, store.WithLogger(a.log))
}

// openExplorer opens the store and wires a query engine whose extractor
// talks to the configured embedding server, requesting the store's model.
func (a *app) openExplorer(ctx context.Context) (*explorer.Explorer, *store.Store, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	client := extractor.NewClient(a.cfg.Server.URL, s.Model())
	eng := explorer.New(s,
		explorer.WithExtractor(client.Func()),
		explorer.WithLogger(a.log),
	)
	return eng, s, nil
}
