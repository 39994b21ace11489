// Package index defines the vector index abstraction used by the store: an
// index is built from (row index, embedding) pairs, answers kNN queries with
// ascending distances, and round-trips through a compact binary format for
// persistence. Implementations in this module include an exact brute-force
// scan and an approximate cover tree.
package index
