// Package cover adapts the internal cover tree to the store's index
// abstraction: options control the tree shape and build parallelism, and the
// binary format shares the row payload with the brute-force index so blobs
// stay loadable across kinds.
package cover
