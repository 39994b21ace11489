package tree

import "github.com/viant/vec/search"

// DistanceFunction names a distance metric supported by the tree.
type DistanceFunction string

const (
	// Cosine is the cosine distance (1 - cosine similarity).
	Cosine DistanceFunction = "cosine"
	// Euclidean is the L2 distance.
	Euclidean DistanceFunction = "euclidean"
)

// DistanceFunc computes the distance between two points.
type DistanceFunc func(p1, p2 *Point) float32

// Function resolves the callable distance implementation, or nil for an
// unknown name.
func (d DistanceFunction) Function() DistanceFunc {
	switch d {
	case Cosine:
		return cosineDistance
	case Euclidean:
		return euclideanDistance
	default:
		return nil
	}
}

func cosineDistance(p1, p2 *Point) float32 {
	v1 := search.Float32s(p1.Vector)
	return v1.CosineDistanceWithMagnitude(p2.Vector, p1.EnsureMagnitude(), p2.EnsureMagnitude())
}

func euclideanDistance(p1, p2 *Point) float32 {
	return search.Float32s(p1.Vector).EuclideanDistance(p2.Vector)
}
