package index

import (
	"fmt"
	"strings"
)

// Index is a vector index over store rows.
type Index interface {
	// Build constructs the index from parallel slices of row indices and
	// vectors, replacing any previous content. ids and vectors must have
	// the same length and every vector the same dimensionality.
	Build(ids []int, vectors [][]float32) error

	// Query runs a kNN search and returns up to k matches as parallel
	// slices of row indices and distances, ordered by ascending distance.
	// k <= 0 returns every rankable row.
	Query(query []float32, k int) (ids []int, distances []float64, err error)

	// MarshalBinary serializes the index for persistence.
	MarshalBinary() ([]byte, error)

	// UnmarshalBinary reconstructs the index from its serialized form.
	UnmarshalBinary(data []byte) error
}

// Kind names a concrete index implementation.
type Kind string

const (
	// KindAuto lets the store pick an implementation from the data shape.
	KindAuto Kind = "auto"
	// KindBrute is the exact brute-force scan.
	KindBrute Kind = "brute"
	// KindCover is the approximate cover tree.
	KindCover Kind = "cover"
)

// ParseKind parses an index kind name. The empty string maps to KindAuto.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return KindAuto, nil
	case "brute", "bruteforce":
		return KindBrute, nil
	case "cover", "covertree":
		return KindCover, nil
	}
	return "", fmt.Errorf("index: unknown kind %q", s)
}
