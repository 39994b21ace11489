package embedding

import (
	"fmt"
	"strings"
)

// Metric selects the distance function used to rank vectors.
type Metric int

const (
	// MetricCosine ranks by cosine distance (1 - cosine similarity).
	MetricCosine Metric = iota
	// MetricL2 ranks by Euclidean distance.
	MetricL2
)

// String returns the canonical lowercase name of the metric.
func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	default:
		return "cosine"
	}
}

// ParseMetric parses a metric name. The empty string maps to MetricCosine,
// the default used across the query surface.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine", "cos":
		return MetricCosine, nil
	case "l2", "euclidean":
		return MetricL2, nil
	}
	return 0, fmt.Errorf("embedding: unknown metric %q", s)
}

// Distance computes the metric's distance between two vectors.
func (m Metric) Distance(a, b []float32) (float64, error) {
	if m == MetricL2 {
		return L2Distance(a, b)
	}
	return CosineDistance(a, b)
}
