package tree

import "github.com/viant/vec/search"

// Point is one indexed vector in the tree. ID is the caller's row index;
// Magnitude caches the Euclidean norm used by the cosine distance.
type Point struct {
	ID        int
	Vector    []float32
	Magnitude float32
}

// NewPoint constructs a point for the given row index and vector. The
// magnitude is computed lazily on first use.
func NewPoint(id int, vector []float32) *Point {
	return &Point{ID: id, Vector: vector}
}

// EnsureMagnitude computes and caches the Euclidean norm. Callers building
// large trees invoke it up front so inserts do no redundant work.
func (p *Point) EnsureMagnitude() float32 {
	if p.Magnitude == 0 && len(p.Vector) > 0 {
		p.Magnitude = search.Float32s(p.Vector).Magnitude()
	}
	return p.Magnitude
}
