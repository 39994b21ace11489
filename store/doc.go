// Package store implements the embedding store: one SQLite file per
// (dataset, model) pair holding one row per dataset item with its identity,
// metadata, and embedding vector.
//
// A store is created by a bulk Build pass over the dataset and may be
// appended to afterwards; new items receive the next contiguous indices and
// existing rows are never rewritten except by a forced rebuild. Reads are
// safe for arbitrarily many concurrent callers; mutations are serialized
// through a single-writer gate.
//
// Beyond row storage the package owns the operation journal (store_log), the
// content hash that fingerprints the current row set, persisted approximate
// nearest-neighbor indexes keyed by that hash, and the cross-process named
// locks used to keep expensive computations single-flight across processes.
package store
