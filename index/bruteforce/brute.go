package bruteforce

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/imglens/imglens/embedding"
	"github.com/imglens/imglens/index"
)

const magic = "BRU1"

// Index is an exact kNN index over store rows.
type Index struct {
	metric embedding.Metric
	ids    []int
	vecs   [][]float32
	dim    int
	mags   []float64 // row magnitudes, cosine only
}

// New returns an empty index ranking by the given metric.
func New(metric embedding.Metric) *Index {
	return &Index{metric: metric}
}

// Metric reports the metric the index ranks by.
func (i *Index) Metric() embedding.Metric { return i.metric }

// Build loads ids and vectors, replacing previous content, and precomputes
// the magnitudes the cosine metric needs.
func (i *Index) Build(ids []int, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("bruteforce: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		i.ids, i.vecs, i.mags, i.dim = nil, nil, nil, 0
		return nil
	}
	dim := len(vectors[0])
	for j := range vectors {
		if len(vectors[j]) != dim {
			return fmt.Errorf("bruteforce: inconsistent vector dims %d vs %d", len(vectors[j]), dim)
		}
	}
	i.ids = append([]int(nil), ids...)
	i.vecs = append([][]float32(nil), vectors...)
	i.dim = dim
	i.mags = nil
	if i.metric == embedding.MetricCosine {
		mags := make([]float64, len(vectors))
		for j := range vectors {
			mags[j] = embedding.Magnitude(vectors[j])
		}
		i.mags = mags
	}
	return nil
}

// Query returns up to k row indices by ascending distance, ties broken by
// ascending row index. Zero-magnitude rows are unrankable under cosine and
// are skipped; a zero-magnitude query yields no matches.
func (i *Index) Query(query []float32, k int) ([]int, []float64, error) {
	if i.dim == 0 || len(i.vecs) == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("bruteforce: %w: query dim %d, index dim %d",
			embedding.ErrDimensionMismatch, len(query), i.dim)
	}
	var qm float64
	if i.metric == embedding.MetricCosine {
		qm = embedding.Magnitude(query)
		if qm == 0 {
			return nil, nil, nil
		}
	}

	type scored struct {
		idx  int
		dist float64
	}
	scoreds := make([]scored, 0, len(i.vecs))
	for j := range i.vecs {
		var d float64
		if i.metric == embedding.MetricCosine {
			if i.mags[j] == 0 {
				continue
			}
			d = 1 - embedding.Dot(query, i.vecs[j])/(qm*i.mags[j])
		} else {
			d, _ = embedding.L2Distance(query, i.vecs[j])
		}
		if math.IsNaN(d) {
			continue
		}
		scoreds = append(scoreds, scored{idx: j, dist: d})
	}
	sort.Slice(scoreds, func(a, b int) bool {
		if scoreds[a].dist != scoreds[b].dist {
			return scoreds[a].dist < scoreds[b].dist
		}
		return i.ids[scoreds[a].idx] < i.ids[scoreds[b].idx]
	})
	if k <= 0 || k > len(scoreds) {
		k = len(scoreds)
	}
	outIDs := make([]int, k)
	outDists := make([]float64, k)
	for n := 0; n < k; n++ {
		outIDs[n] = i.ids[scoreds[n].idx]
		outDists[n] = scoreds[n].dist
	}
	return outIDs, outDists, nil
}

// MarshalBinary serializes the index as magic "BRU1" plus the shared row
// payload.
func (i *Index) MarshalBinary() ([]byte, error) {
	tail, err := index.EncodeRows(i.metric, i.ids, i.vecs)
	if err != nil {
		return nil, err
	}
	return append([]byte(magic), tail...), nil
}

// UnmarshalBinary restores the index from its serialized form.
func (i *Index) UnmarshalBinary(data []byte) error {
	if len(data) < 4 || string(data[:4]) != magic {
		return errors.New("bruteforce: bad magic")
	}
	metric, ids, vecs, err := index.DecodeRows(data[4:])
	if err != nil {
		return err
	}
	i.metric = metric
	return i.Build(ids, vecs)
}
