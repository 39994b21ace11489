// Package dataset loads the YAML manifests that describe a labeled image
// collection: the dataset name, its declared metadata fields, and the
// ordered items to ingest.
package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/imglens/imglens/query"
	"github.com/imglens/imglens/store"
)

// Manifest is one dataset description. Item order is ingestion order: the
// store assigns indices in the order items appear here.
type Manifest struct {
	// Name is the dataset identity recorded in the store.
	Name string `yaml:"name"`
	// Fields declares the extra metadata fields items may carry, by kind
	// (int, float, string, bool, array).
	Fields map[string]string `yaml:"fields,omitempty"`
	// Items are the entries to ingest.
	Items []Item `yaml:"items"`
}

// Item is one manifest entry.
type Item struct {
	FilePath string         `yaml:"file_path"`
	Labels   []string       `yaml:"labels,omitempty"`
	Split    string         `yaml:"split,omitempty"`
	Meta     map[string]any `yaml:"meta,omitempty"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("dataset: parse %s: %w", path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("dataset: %s: name is required", path)
	}
	for i, it := range m.Items {
		if it.FilePath == "" {
			return nil, fmt.Errorf("dataset: %s: item %d: file_path is required", path, i)
		}
	}
	return &m, nil
}

// Schema converts the declared fields to a query schema.
func (m *Manifest) Schema() (query.Schema, error) {
	if len(m.Fields) == 0 {
		return nil, nil
	}
	sch := make(query.Schema, len(m.Fields))
	for name, kindName := range m.Fields {
		kind, err := query.ParseKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("dataset: field %q: %w", name, err)
		}
		sch[name] = kind
	}
	return sch, nil
}

// Sources converts the manifest items to store sources, in manifest order.
func (m *Manifest) Sources() ([]store.Source, error) {
	out := make([]store.Source, len(m.Items))
	for i, it := range m.Items {
		var meta query.Document
		if len(it.Meta) > 0 {
			var err error
			if meta, err = query.DocumentFromAny(it.Meta); err != nil {
				return nil, fmt.Errorf("dataset: item %s: %w", it.FilePath, err)
			}
		}
		out[i] = store.Source{
			FilePath: it.FilePath,
			Labels:   it.Labels,
			Split:    it.Split,
			Meta:     meta,
		}
	}
	return out, nil
}
