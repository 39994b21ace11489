package tree

// Neighbor is one candidate returned by a kNN search.
type Neighbor struct {
	ID       int
	Distance float32
}

// neighborHeap is a max-heap by distance, so the current worst candidate sits
// at the top and is cheap to evict.
type neighborHeap []Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return h[i].Distance > h[j].Distance }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *neighborHeap) Push(x any) {
	*h = append(*h, x.(Neighbor))
}

func (h *neighborHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
