// Package explorer is the query surface over an embedding store: similarity
// search seeded by stored items, by new images, or by a raw vector, plus
// predicate-only scans. Searches combine SQL pre-filtering, ANN candidate
// ranking, bitmap post-filtering, and deterministic (distance, index)
// ordering.
package explorer
