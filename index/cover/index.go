package cover

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/imglens/imglens/embedding"
	"github.com/imglens/imglens/index"
	"github.com/imglens/imglens/internal/cover/tree"
)

const magic = "COV1"

type options struct {
	base        float32
	bound       tree.BoundStrategy
	distance    tree.DistanceFunction
	parallelism int
}

// Option customizes tree construction.
type Option func(*options)

// WithBase sets the cover tree expansion base.
func WithBase(base float32) Option {
	return func(o *options) { o.base = base }
}

// WithBoundStrategy selects the pruning bound used during search.
func WithBoundStrategy(s tree.BoundStrategy) Option {
	return func(o *options) { o.bound = s }
}

// WithDistance selects the tree distance function.
func WithDistance(d tree.DistanceFunction) Option {
	return func(o *options) { o.distance = d }
}

// WithBuildParallelism bounds the workers that precompute vector magnitudes
// during Build. Tree linking itself is sequential.
func WithBuildParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// Index is an approximate kNN index backed by a cover tree.
type Index struct {
	opts options
	ids  []int
	vecs [][]float32
	dim  int
	tree *tree.Tree
}

// New returns an empty cover tree index. The defaults rank by cosine
// distance with per-node bound pruning.
func New(opts ...Option) *Index {
	o := options{
		base:        1.3,
		bound:       tree.BoundPerNode,
		distance:    tree.Cosine,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Index{opts: o}
}

// Metric reports the embedding metric equivalent to the tree distance.
func (i *Index) Metric() embedding.Metric {
	if i.opts.distance == tree.Euclidean {
		return embedding.MetricL2
	}
	return embedding.MetricCosine
}

// Build constructs the tree from ids and vectors, replacing previous
// content. Zero-magnitude vectors are unrankable under cosine and stay out
// of the tree, matching the exact index's behavior of never returning them.
func (i *Index) Build(ids []int, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("cover: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	i.ids = append([]int(nil), ids...)
	i.vecs = append([][]float32(nil), vectors...)
	i.dim = 0
	i.tree = tree.New(i.opts.base, i.opts.distance)
	i.tree.SetBoundStrategy(i.opts.bound)
	if len(vectors) == 0 {
		return nil
	}
	i.dim = len(vectors[0])
	points := make([]*tree.Point, len(vectors))
	for j := range vectors {
		if len(vectors[j]) != i.dim {
			return fmt.Errorf("cover: inconsistent vector dims %d vs %d", len(vectors[j]), i.dim)
		}
		points[j] = tree.NewPoint(ids[j], vectors[j])
	}

	// Magnitudes dominate build cost for wide vectors; compute them in
	// parallel before the sequential linking pass.
	cosine := i.opts.distance == tree.Cosine
	if cosine {
		workers := max(1, i.opts.parallelism)
		chunk := (len(points) + workers - 1) / workers
		g := new(errgroup.Group)
		for start := 0; start < len(points); start += chunk {
			pts := points[start:min(start+chunk, len(points))]
			g.Go(func() error {
				for _, p := range pts {
					p.EnsureMagnitude()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	for _, p := range points {
		if cosine && p.EnsureMagnitude() == 0 {
			continue
		}
		i.tree.Insert(p)
	}
	return nil
}

// Query returns up to k row indices by ascending distance. Distances are
// float32 approximations of the exact metric.
func (i *Index) Query(query []float32, k int) ([]int, []float64, error) {
	if i.tree == nil || i.tree.Len() == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("cover: %w: query dim %d, index dim %d",
			embedding.ErrDimensionMismatch, len(query), i.dim)
	}
	q := tree.NewPoint(-1, query)
	if i.opts.distance == tree.Cosine && q.EnsureMagnitude() == 0 {
		return nil, nil, nil
	}
	if k <= 0 || k > i.tree.Len() {
		k = i.tree.Len()
	}
	neighbors := i.tree.KNearestNeighborsBestFirst(q, k)
	ids := make([]int, len(neighbors))
	dists := make([]float64, len(neighbors))
	for n, nb := range neighbors {
		ids[n] = nb.ID
		dists[n] = float64(nb.Distance)
	}
	return ids, dists, nil
}

// MarshalBinary serializes the index as magic "COV1", base(float32),
// bound(uint8), then the shared row payload. The payload keeps every row,
// including the zero-magnitude ones the tree skips, so round-trips preserve
// the full data set.
func (i *Index) MarshalBinary() ([]byte, error) {
	tail, err := index.EncodeRows(i.Metric(), i.ids, i.vecs)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 9+len(tail))
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint32(out, math.Float32bits(i.opts.base))
	out = append(out, byte(i.opts.bound))
	return append(out, tail...), nil
}

// UnmarshalBinary restores the index, rebuilding the tree from the persisted
// rows.
func (i *Index) UnmarshalBinary(data []byte) error {
	if len(data) < 9 || string(data[:4]) != magic {
		return errors.New("cover: bad magic")
	}
	base := math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
	bound := tree.BoundStrategy(data[8])
	if bound != tree.BoundPerNode && bound != tree.BoundLevel {
		return fmt.Errorf("cover: unknown bound strategy %d", data[8])
	}
	metric, ids, vecs, err := index.DecodeRows(data[9:])
	if err != nil {
		return err
	}
	i.opts.base = base
	i.opts.bound = bound
	i.opts.distance = tree.Cosine
	if metric == embedding.MetricL2 {
		i.opts.distance = tree.Euclidean
	}
	return i.Build(ids, vecs)
}
