package embedding

import (
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	c := []float32{1, 0}

	// Orthogonal vectors -> similarity 0
	if sim, err := CosineSimilarity(a, b); err != nil || sim != 0 {
		t.Fatalf("CosineSimilarity(a,b) = %v, %v; want 0, nil", sim, err)
	}

	// Identical vectors -> similarity 1
	if sim, err := CosineSimilarity(a, c); err != nil || sim != 1 {
		t.Fatalf("CosineSimilarity(a,c) = %v, %v; want 1, nil", sim, err)
	}
}

func TestCosineSimilarity_ZeroMagnitude(t *testing.T) {
	_, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	if !errors.Is(err, ErrZeroMagnitude) {
		t.Fatalf("expected ErrZeroMagnitude, got %v", err)
	}
}

func TestCosineDistance_DimensionMismatch(t *testing.T) {
	_, err := CosineDistance([]float32{1, 0}, []float32{1, 0, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestL2Distance(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}

	d, err := L2Distance(a, b)
	if err != nil {
		t.Fatalf("L2Distance failed: %v", err)
	}
	if d != 5 {
		t.Fatalf("L2Distance(0,0)-(3,4) = %v, want 5", d)
	}
}

func TestMean(t *testing.T) {
	got, err := Mean([][]float32{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatalf("Mean failed: %v", err)
	}
	want := []float32{0.5, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Mean[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMean_DimensionMismatch(t *testing.T) {
	_, err := Mean([][]float32{{1, 0}, {0, 1, 2}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestMetric(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Metric
	}{
		{"", MetricCosine},
		{"cosine", MetricCosine},
		{"L2", MetricL2},
		{"euclidean", MetricL2},
	} {
		m, err := ParseMetric(tc.in)
		if err != nil {
			t.Fatalf("ParseMetric(%q) failed: %v", tc.in, err)
		}
		if m != tc.want {
			t.Fatalf("ParseMetric(%q) = %v, want %v", tc.in, m, tc.want)
		}
	}
	if _, err := ParseMetric("hamming"); err == nil {
		t.Fatal("expected error for unknown metric")
	}

	d, err := MetricL2.Distance([]float32{0, 0}, []float32{3, 4})
	if err != nil || math.Abs(d-5) > 1e-12 {
		t.Fatalf("MetricL2.Distance = %v, %v; want 5, nil", d, err)
	}
	d, err = MetricCosine.Distance([]float32{1, 0}, []float32{1, 0})
	if err != nil || d != 0 {
		t.Fatalf("MetricCosine.Distance = %v, %v; want 0, nil", d, err)
	}
}
