// Package tree implements a cover tree over float32 vectors for approximate
// k-nearest-neighbor search. Distances run on the SIMD-accelerated float32
// primitives from github.com/viant/vec.
package tree

import (
	"container/heap"
	"math"
	"sort"
	"sync"
)

// BoundStrategy selects which lower-bound radius to use when pruning.
type BoundStrategy int

const (
	// BoundPerNode uses a cached per-node subtree radius (tighter pruning).
	BoundPerNode BoundStrategy = iota
	// BoundLevel uses a geometric bound derived from the node level.
	BoundLevel
)

// Tree is a cover tree for cosine or Euclidean kNN queries. Inserts and
// queries are safe for concurrent use.
type Tree struct {
	root          *node
	base          float32
	distName      DistanceFunction
	dist          DistanceFunc
	size          int
	version       uint64
	boundStrategy BoundStrategy
	mu            sync.RWMutex
}

// New constructs a cover tree with the provided expansion base and distance
// metric. Bases at or below 1 fall back to 1.3; unknown metrics fall back to
// cosine.
func New(base float32, distanceFn DistanceFunction) *Tree {
	if base <= 1 {
		base = 1.3
	}
	fn := distanceFn.Function()
	if fn == nil {
		distanceFn = Cosine
		fn = distanceFn.Function()
	}
	return &Tree{
		base:          base,
		distName:      distanceFn,
		dist:          fn,
		boundStrategy: BoundPerNode,
	}
}

// SetBoundStrategy switches the pruning strategy.
func (t *Tree) SetBoundStrategy(s BoundStrategy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.boundStrategy = s
}

// Len returns the number of points in the tree.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Insert adds a point to the tree. The point's magnitude is cached up front
// so concurrent queries never mutate shared points.
func (t *Tree) Insert(point *Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	point.EnsureMagnitude()
	if t.root == nil {
		root := newNode(point, 0, t.base)
		t.root = &root
	} else {
		t.insert(t.root, point, 0)
	}
	t.size++
	t.version++
}

func (t *Tree) insert(n *node, point *Point, level int) {
	for {
		baseLevel := float32(math.Pow(float64(t.base), float64(level)))
		distance := t.dist(point, n.point)
		if distance < baseLevel {
			descended := false
			for i := range n.children {
				child := &n.children[i]
				if t.dist(point, child.point) < baseLevel {
					n = child
					level--
					descended = true
					break
				}
			}
			if !descended {
				n.children = append(n.children, newNode(point, level-1, t.base))
				return
			}
		} else {
			level++
			if level > n.level {
				newRoot := newNode(point, level, t.base)
				newRoot.children = append(newRoot.children, *t.root)
				t.root = &newRoot
				return
			}
		}
	}
}

// KNearestNeighbors runs a depth-first kNN search and returns up to k
// neighbors ordered by ascending distance.
func (t *Tree) KNearestNeighbors(point *Point, k int) []Neighbor {
	t.lockForQuery()
	defer t.unlockForQuery()
	if t.root == nil || k <= 0 {
		return nil
	}
	h := &neighborHeap{}
	heap.Init(h)
	t.kNearestNeighbors(t.root, point, k, h)
	return drain(h)
}

func (t *Tree) kNearestNeighbors(n *node, point *Point, k int, h *neighborHeap) {
	dc := t.dist(point, n.point)
	if h.Len() < k {
		heap.Push(h, Neighbor{ID: n.point.ID, Distance: dc})
	} else if dc < (*h)[0].Distance {
		heap.Pop(h)
		heap.Push(h, Neighbor{ID: n.point.ID, Distance: dc})
	}
	if len(n.children) == 0 {
		return
	}
	type childDist struct {
		child *node
		dist  float32
	}
	cds := make([]childDist, 0, len(n.children))
	for i := range n.children {
		child := &n.children[i]
		cds = append(cds, childDist{child: child, dist: t.dist(point, child.point)})
	}
	sort.Slice(cds, func(i, j int) bool { return cds[i].dist < cds[j].dist })
	for _, cd := range cds {
		worst := float32(math.MaxFloat32)
		if h.Len() == k {
			worst = (*h)[0].Distance
		}
		if h.Len() == k && (cd.dist-t.boundRadius(cd.child)) >= worst {
			continue
		}
		t.kNearestNeighbors(cd.child, point, k, h)
	}
}

// KNearestNeighborsBestFirst runs a best-first kNN search driven by a node
// priority queue. It visits fewer nodes than the depth-first variant on
// clustered data and is the default for production queries.
func (t *Tree) KNearestNeighborsBestFirst(point *Point, k int) []Neighbor {
	t.lockForQuery()
	defer t.unlockForQuery()
	if t.root == nil || k <= 0 {
		return nil
	}
	nh := &neighborHeap{}
	heap.Init(nh)
	pq := &nodeQueue{}
	heap.Init(pq)
	rootDist := t.dist(point, t.root.point)
	heap.Push(pq, nodeItem{node: t.root, lb: rootDist - t.boundRadius(t.root), centerDist: rootDist})

	for pq.Len() > 0 {
		worst := float32(math.MaxFloat32)
		if nh.Len() == k {
			worst = (*nh)[0].Distance
		}
		top := heap.Pop(pq).(nodeItem)
		if nh.Len() == k && top.lb >= worst {
			break
		}
		dc := top.centerDist
		if nh.Len() < k {
			heap.Push(nh, Neighbor{ID: top.node.point.ID, Distance: dc})
		} else if dc < (*nh)[0].Distance {
			heap.Pop(nh)
			heap.Push(nh, Neighbor{ID: top.node.point.ID, Distance: dc})
		}
		for i := range top.node.children {
			child := &top.node.children[i]
			cd := t.dist(point, child.point)
			lb := cd - t.boundRadius(child)
			if nh.Len() == k && lb >= (*nh)[0].Distance {
				continue
			}
			heap.Push(pq, nodeItem{node: child, lb: lb, centerDist: cd})
		}
	}
	return drain(nh)
}

// lockForQuery takes the write lock when the per-node radius cache may be
// refreshed during the search.
func (t *Tree) lockForQuery() {
	if t.boundStrategy == BoundPerNode {
		t.mu.Lock()
	} else {
		t.mu.RLock()
	}
}

func (t *Tree) unlockForQuery() {
	if t.boundStrategy == BoundPerNode {
		t.mu.Unlock()
	} else {
		t.mu.RUnlock()
	}
}

func drain(h *neighborHeap) []Neighbor {
	result := make([]Neighbor, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(Neighbor)
	}
	return result
}

func (t *Tree) ensureRadius(n *node) float32 {
	if n == nil {
		return 0
	}
	if n.radiusComputed == t.version {
		return n.radius
	}
	if len(n.children) == 0 {
		n.radius = 0
		n.radiusComputed = t.version
		return 0
	}
	maxR := float32(0)
	for i := range n.children {
		child := &n.children[i]
		d := t.dist(n.point, child.point) + t.ensureRadius(child)
		if d > maxR {
			maxR = d
		}
	}
	n.radius = maxR
	n.radiusComputed = t.version
	return maxR
}

func (t *Tree) levelCoverRadius(n *node) float32 {
	if t.base <= 1 || n == nil {
		return float32(math.MaxFloat32)
	}
	return n.baseLevel * t.base / (t.base - 1)
}

func (t *Tree) boundRadius(n *node) float32 {
	if t.boundStrategy == BoundLevel {
		return t.levelCoverRadius(n)
	}
	return t.ensureRadius(n)
}

type nodeItem struct {
	node       *node
	lb         float32
	centerDist float32
}

type nodeQueue []nodeItem

func (q nodeQueue) Len() int           { return len(q) }
func (q nodeQueue) Less(i, j int) bool { return q[i].lb < q[j].lb }
func (q nodeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x any) { *q = append(*q, x.(nodeItem)) }

func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
