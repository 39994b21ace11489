package tree

import "math"

type node struct {
	level          int
	baseLevel      float32
	point          *Point
	children       []node
	radius         float32
	radiusComputed uint64
}

func newNode(point *Point, level int, base float32) node {
	return node{
		level:     level,
		baseLevel: float32(math.Pow(float64(base), float64(level))),
		point:     point,
	}
}
