package embedding

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when an operation receives vectors of
	// differing dimensionality.
	ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

	// ErrZeroMagnitude is returned when a cosine computation receives a
	// vector whose magnitude is zero, for which the similarity is undefined.
	ErrZeroMagnitude = errors.New("embedding: zero-magnitude vector")
)

// Dot returns the dot product of two equal-length vectors, accumulated in
// float64. The caller is responsible for length validation.
func Dot(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Magnitude returns the Euclidean norm of v in float64.
func Magnitude(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// CosineSimilarity computes the cosine similarity between two vectors.
// All arithmetic is performed in float64 regardless of the float32 storage
// representation.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, errors.New("embedding: cosine similarity of empty vectors")
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroMagnitude
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// CosineDistance computes 1 minus the cosine similarity, so that identical
// directions yield 0 and opposite directions yield 2.
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// L2Distance computes the Euclidean distance between two vectors.
func L2Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Mean returns the element-wise average of the given vectors, accumulated in
// float64 and rounded back to float32. All vectors must share the same
// dimensionality.
func Mean(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, errors.New("embedding: mean of no vectors")
	}
	dim := len(vectors[0])
	acc := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(v), dim)
		}
		for i, x := range v {
			acc[i] += float64(x)
		}
	}
	n := float64(len(vectors))
	out := make([]float32, dim)
	for i, sum := range acc {
		out[i] = float32(sum / n)
	}
	return out, nil
}
