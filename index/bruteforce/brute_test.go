package bruteforce

import (
	"errors"
	"math"
	"testing"

	"github.com/imglens/imglens/embedding"
)

func TestQuery_CosineOrdering(t *testing.T) {
	idx := New(embedding.MetricCosine)
	err := idx.Build(
		[]int{0, 1, 2},
		[][]float32{{1, 0}, {0, 1}, {0.9, 0.1}},
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ids, dists, err := idx.Query([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d results, want 2", len(ids))
	}
	if ids[0] != 0 || ids[1] != 2 {
		t.Fatalf("ids = %v, want [0 2]", ids)
	}
	if dists[0] > 1e-9 {
		t.Fatalf("self distance = %v, want ~0", dists[0])
	}
	if dists[0] > dists[1] {
		t.Fatalf("distances not ascending: %v", dists)
	}
}

func TestQuery_TieBreaksByRowIndex(t *testing.T) {
	idx := New(embedding.MetricCosine)
	// Rows 5 and 2 are identical vectors, equidistant from any query.
	err := idx.Build(
		[]int{5, 2, 9},
		[][]float32{{1, 1}, {1, 1}, {0, 1}},
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ids, _, err := idx.Query([]float32{1, 1}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if ids[0] != 2 || ids[1] != 5 {
		t.Fatalf("ids = %v, want [2 5] (ascending row index on ties)", ids)
	}
}

func TestQuery_KZeroReturnsAll(t *testing.T) {
	idx := New(embedding.MetricL2)
	err := idx.Build([]int{0, 1, 2}, [][]float32{{0, 0}, {1, 0}, {2, 0}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ids, dists, err := idx.Query([]float32{0, 0}, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("got %d results, want all 3", len(ids))
	}
	if dists[0] != 0 || dists[1] != 1 || dists[2] != 2 {
		t.Fatalf("dists = %v, want [0 1 2]", dists)
	}
}

func TestQuery_SkipsZeroMagnitudeRows(t *testing.T) {
	idx := New(embedding.MetricCosine)
	err := idx.Build([]int{0, 1}, [][]float32{{0, 0}, {1, 0}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ids, _, err := idx.Query([]float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("ids = %v, want [1] (zero row skipped)", ids)
	}

	// A zero-magnitude query has no defined cosine ranking at all.
	ids, _, err = idx.Query([]float32{0, 0}, 0)
	if err != nil || len(ids) != 0 {
		t.Fatalf("zero query: ids = %v, err = %v; want empty, nil", ids, err)
	}
}

func TestQuery_DimensionMismatch(t *testing.T) {
	idx := New(embedding.MetricCosine)
	if err := idx.Build([]int{0}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	_, _, err := idx.Query([]float32{1, 0, 0}, 1)
	if !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	idx := New(embedding.MetricL2)
	err := idx.Build([]int{3, 7}, [][]float32{{1.5, -2}, {0, 4}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	blob, err := idx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if string(blob[:4]) != "BRU1" {
		t.Fatalf("magic = %q, want BRU1", blob[:4])
	}

	restored := &Index{}
	if err := restored.UnmarshalBinary(blob); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if restored.Metric() != embedding.MetricL2 {
		t.Fatalf("metric = %v, want l2", restored.Metric())
	}

	ids, dists, err := restored.Query([]float32{0, 4}, 1)
	if err != nil || len(ids) != 1 || ids[0] != 7 || math.Abs(dists[0]) > 1e-9 {
		t.Fatalf("restored query = %v, %v, %v; want [7], [0], nil", ids, dists, err)
	}
}

func TestUnmarshal_BadMagic(t *testing.T) {
	idx := &Index{}
	if err := idx.UnmarshalBinary([]byte("NOPE")); err == nil {
		t.Fatal("expected error for bad magic")
	}
}
