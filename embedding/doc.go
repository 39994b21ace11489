// Package embedding defines the numeric vector representation shared by the
// store, the indexes, and the query engine. It includes:
//   - BLOB encoding for SQLite storage (little-endian IEEE 754 float32)
//   - distance functions (cosine, Euclidean) computed in float64
//   - the Metric enum used to select a distance at query time
//   - mean aggregation for multi-item queries
package embedding
