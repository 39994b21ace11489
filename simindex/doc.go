// Package simindex computes a near-duplicate analytic over an embedding
// store: for every item, how many of its top-k nearest neighbors lie within
// a distance bound, and which files those neighbors are. The computation is
// O(items x top_k-search), so results are cached in memory, persisted in the
// store as zstd-compressed JSON tagged with the content hash, and recomputed
// only when the rows change or a refresh forces it.
package simindex
