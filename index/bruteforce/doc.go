// Package bruteforce provides the exact vector index: kNN queries scan every
// row and rank by the configured metric with float64 arithmetic. It is the
// reference the approximate indexes are judged against and the default for
// small stores.
package bruteforce
