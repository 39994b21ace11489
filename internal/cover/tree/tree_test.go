package tree

import (
	"math/rand"
	"sort"
	"testing"
)

func buildTestTree(t *testing.T, fn DistanceFunction, vectors [][]float32) *Tree {
	t.Helper()
	tr := New(1.3, fn)
	for i, v := range vectors {
		tr.Insert(NewPoint(i, v))
	}
	if tr.Len() != len(vectors) {
		t.Fatalf("Len = %d, want %d", tr.Len(), len(vectors))
	}
	return tr
}

func TestKNearestNeighbors_Cosine(t *testing.T) {
	vectors := [][]float32{
		{1, 0},
		{0, 1},
		{0.9, 0.1},
	}
	tr := buildTestTree(t, Cosine, vectors)

	got := tr.KNearestNeighbors(NewPoint(-1, []float32{1, 0}), 2)
	if len(got) != 2 {
		t.Fatalf("got %d neighbors, want 2", len(got))
	}
	if got[0].ID != 0 {
		t.Fatalf("nearest = %d, want 0", got[0].ID)
	}
	if got[1].ID != 2 {
		t.Fatalf("second = %d, want 2", got[1].ID)
	}
	if got[0].Distance > got[1].Distance {
		t.Fatalf("distances not ascending: %v", got)
	}
}

func TestKNearestNeighbors_Euclidean(t *testing.T) {
	vectors := [][]float32{
		{0, 0},
		{3, 4},
		{1, 1},
	}
	tr := buildTestTree(t, Euclidean, vectors)

	got := tr.KNearestNeighbors(NewPoint(-1, []float32{0.2, 0.2}), 3)
	if len(got) != 3 {
		t.Fatalf("got %d neighbors, want 3", len(got))
	}
	if got[0].ID != 0 || got[1].ID != 2 || got[2].ID != 1 {
		t.Fatalf("order = %d,%d,%d; want 0,2,1", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestBestFirstMatchesDepthFirst(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n, dim, k = 200, 16, 10

	vectors := make([][]float32, n)
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		vectors[i] = v
	}

	for _, strategy := range []BoundStrategy{BoundPerNode, BoundLevel} {
		tr := buildTestTree(t, Euclidean, vectors)
		tr.SetBoundStrategy(strategy)

		for q := 0; q < 20; q++ {
			qv := make([]float32, dim)
			for j := range qv {
				qv[j] = rng.Float32()*2 - 1
			}

			dfs := tr.KNearestNeighbors(NewPoint(-1, qv), k)
			bf := tr.KNearestNeighborsBestFirst(NewPoint(-1, qv), k)
			if len(dfs) != k || len(bf) != k {
				t.Fatalf("strategy %d: result sizes %d/%d, want %d", strategy, len(dfs), len(bf), k)
			}

			// Both searches are exact for a correctly built tree, so the
			// returned ID sets must agree.
			dfsIDs := neighborIDs(dfs)
			bfIDs := neighborIDs(bf)
			for i := range dfsIDs {
				if dfsIDs[i] != bfIDs[i] {
					t.Fatalf("strategy %d query %d: id sets differ: %v vs %v", strategy, q, dfsIDs, bfIDs)
				}
			}
		}
	}
}

func TestKNearestNeighbors_KLargerThanTree(t *testing.T) {
	tr := buildTestTree(t, Cosine, [][]float32{{1, 0}, {0, 1}})
	got := tr.KNearestNeighbors(NewPoint(-1, []float32{1, 1}), 10)
	if len(got) != 2 {
		t.Fatalf("got %d neighbors, want 2", len(got))
	}
}

func TestKNearestNeighbors_EmptyTree(t *testing.T) {
	tr := New(1.3, Cosine)
	if got := tr.KNearestNeighbors(NewPoint(-1, []float32{1, 0}), 3); got != nil {
		t.Fatalf("expected nil for empty tree, got %v", got)
	}
}

func neighborIDs(ns []Neighbor) []int {
	ids := make([]int, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
	}
	sort.Ints(ids)
	return ids
}
