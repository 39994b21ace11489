package store

import (
	"encoding/json"
	"fmt"

	"github.com/imglens/imglens/query"
)

// Item is one dataset entry as stored: a stable integer identity assigned in
// ingestion order, the source image identity, its annotations, and the
// embedding vector.
type Item struct {
	// Index is the row identity: unique, contiguous from 0, never reused.
	Index int
	// FilePath identifies the source image (local path or URL at ingestion).
	FilePath string
	// Labels are the class annotations associated with the item.
	Labels []string
	// Split names the dataset split the item belongs to (train, val, ...).
	Split string
	// Meta holds the declared extra metadata fields.
	Meta query.Document
	// Vector is the embedding. Scan leaves it nil; GetByIndex and the
	// ranking paths populate it.
	Vector []float32
}

// Fields returns the item as a queryable document: the built-in columns plus
// the declared metadata fields. Post-filters evaluate against this view.
func (it Item) Fields() query.Document {
	d := query.Document{
		"index":     query.Int(int64(it.Index)),
		"file_path": query.String(it.FilePath),
		"split":     query.String(it.Split),
		"labels":    query.Strings(it.Labels...),
	}
	for k, v := range it.Meta {
		d[k] = v
	}
	return d
}

// Source is one dataset entry to ingest: the image identity plus the
// metadata recorded alongside its vector. The dataset collaborator supplies
// sources in ingestion order; Build assigns indices in that order.
type Source struct {
	FilePath string
	Labels   []string
	Split    string
	Meta     query.Document
}

func encodeLabels(labels []string) (string, error) {
	if len(labels) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("store: encode labels: %w", err)
	}
	return string(b), nil
}

func decodeLabels(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var labels []string
	if err := json.Unmarshal([]byte(s), &labels); err != nil {
		return nil, fmt.Errorf("store: decode labels: %w", err)
	}
	return labels, nil
}

func encodeMeta(meta query.Document) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta.AnyMap())
	if err != nil {
		return "", fmt.Errorf("store: encode meta: %w", err)
	}
	return string(b), nil
}

func decodeMeta(s string, schema query.Schema) (query.Document, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("store: decode meta: %w", err)
	}
	doc, err := query.DocumentFromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("store: decode meta: %w", err)
	}
	return doc.Normalize(schema), nil
}
