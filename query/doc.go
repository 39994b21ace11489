// Package query defines structured predicates over item fields.
//
// A predicate is a tree of field comparisons combined with And, Or and Not.
// The same tree compiles to a SQL WHERE clause for store-side filtering and
// evaluates in-process against a Document for post-filtering already ranked
// results. Predicates are validated against a Schema before use; malformed
// trees are rejected with ErrInvalidPredicate rather than silently matching
// nothing.
package query
