// Package config loads and saves the imglens configuration file: where the
// store lives, how to reach the embedding server, and the defaults the CLI
// applies when flags are absent.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/imglens/imglens/extractor"
)

// DefaultPath is where the CLI looks for a configuration file unless told
// otherwise.
const DefaultPath = "imglens.yaml"

// Config is the full configuration file.
type Config struct {
	// Database is the path of the SQLite store file.
	Database string `yaml:"database"`

	Server   ServerConfig   `yaml:"server"`
	Search   SearchConfig   `yaml:"search"`
	SimIndex SimIndexConfig `yaml:"simindex"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig describes the embedding server builds extract through.
type ServerConfig struct {
	// URL of the embedding server.
	URL string `yaml:"url"`
	// Model requested from the server; also the model identity recorded
	// when a store is created.
	Model string `yaml:"model"`
	// Batch switches builds to the batch endpoint.
	Batch bool `yaml:"batch,omitempty"`
	// BatchSize is the number of images per batch request.
	BatchSize int `yaml:"batch_size,omitempty"`
	// Parallelism bounds concurrent extraction requests; 0 uses one per
	// CPU.
	Parallelism int `yaml:"parallelism,omitempty"`
}

// SearchConfig holds the defaults for similarity commands.
type SearchConfig struct {
	// Limit is the default result count.
	Limit int `yaml:"limit"`
	// Metric is the default distance metric (cosine, l2).
	Metric string `yaml:"metric"`
}

// SimIndexConfig holds the defaults for the similarity-index analytic.
type SimIndexConfig struct {
	// MaxDist is the distance bound under which a neighbor counts as
	// similar.
	MaxDist float64 `yaml:"max_dist"`
	// TopK is the number of neighbor candidates examined per item.
	TopK int `yaml:"top_k"`
}

// LoggingConfig controls the CLI logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Database: "imglens.sqlite",
		Server: ServerConfig{
			URL:   extractor.DefaultServerURL,
			Model: "clip-vit-b32",
		},
		Search: SearchConfig{
			Limit:  25,
			Metric: "cosine",
		},
		SimIndex: SimIndexConfig{
			MaxDist: 0.05,
			TopK:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration at path. A missing file yields the defaults;
// keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
