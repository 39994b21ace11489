package explorer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/imglens/imglens/embedding"
	"github.com/imglens/imglens/extractor"
	"github.com/imglens/imglens/index"
	"github.com/imglens/imglens/logging"
	"github.com/imglens/imglens/query"
	"github.com/imglens/imglens/store"
)

// ErrInvalidIndex aliases the store sentinel so callers can match either
// name with errors.Is.
var ErrInvalidIndex = store.ErrIndexOutOfRange

// Explorer runs similarity and predicate queries against one store.
type Explorer struct {
	store   *store.Store
	extract extractor.Func
	log     *logging.Logger
}

// Option customizes an Explorer.
type Option func(*Explorer)

// WithExtractor provides the embedding extractor SimilarByImages needs to
// vectorize query images.
func WithExtractor(fn extractor.Func) Option {
	return func(e *Explorer) { e.extract = fn }
}

// WithLogger attaches a structured logger. The default discards all output.
func WithLogger(l *logging.Logger) Option {
	return func(e *Explorer) {
		if l != nil {
			e.log = l
		}
	}
}

// New returns an Explorer over s.
func New(s *store.Store, opts ...Option) *Explorer {
	e := &Explorer{store: s, log: logging.Noop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the underlying store.
func (e *Explorer) Store() *store.Store { return e.store }

// SearchOptions shape one similarity search.
type SearchOptions struct {
	// Limit caps the number of matches; <= 0 returns every rankable row.
	Limit int

	// Metric selects the distance function. The zero value is cosine.
	Metric embedding.Metric

	// PreFilter restricts the candidate set before ranking: only matching
	// rows are ranked at all, and ranking runs in SQL instead of the ANN
	// index.
	PreFilter query.Predicate

	// PostFilter drops non-matching rows from the full ranked result before
	// Limit is applied, so matches beyond the nearest Limit rows still
	// surface.
	PostFilter query.Predicate

	// Exclude lists row indices to drop from the result. SimilarByIndices
	// adds its query indices here so an item never matches itself.
	Exclude []int
}

// Match is one search hit: the stored item and its distance to the query
// vector under the search metric.
type Match struct {
	Item     store.Item
	Distance float64
}

// SimilarByIndices searches for items similar to the stored items at the
// given indices. Multi-item queries rank against the mean of the item
// vectors. The queried indices never appear in the result. Unknown indices
// fail with ErrInvalidIndex.
func (e *Explorer) SimilarByIndices(ctx context.Context, indices []int, opts SearchOptions) ([]Match, error) {
	if len(indices) == 0 {
		return nil, errors.New("explorer: at least one index is required")
	}
	items, err := e.store.GetByIndex(ctx, indices)
	if err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(items))
	for i, it := range items {
		vecs[i] = it.Vector
	}
	vec, err := embedding.Mean(vecs)
	if err != nil {
		return nil, err
	}
	opts.Exclude = append(append([]int(nil), opts.Exclude...), indices...)
	return e.search(ctx, vec, opts)
}

// SimilarByImages searches for items similar to external images, vectorized
// through the configured extractor. Multi-image queries rank against the
// mean of the extracted vectors.
func (e *Explorer) SimilarByImages(ctx context.Context, sources []string, opts SearchOptions) ([]Match, error) {
	if e.extract == nil {
		return nil, errors.New("explorer: no extractor configured")
	}
	if len(sources) == 0 {
		return nil, errors.New("explorer: at least one image is required")
	}
	vecs := make([][]float32, len(sources))
	for i, src := range sources {
		vec, err := e.extract(ctx, src)
		if err != nil {
			var xerr *extractor.Error
			if errors.As(err, &xerr) {
				return nil, err
			}
			return nil, &extractor.Error{Source: src, Err: err}
		}
		vecs[i] = vec
	}
	vec, err := embedding.Mean(vecs)
	if err != nil {
		return nil, err
	}
	return e.search(ctx, vec, opts)
}

// QueryVector searches for items similar to a raw query vector.
func (e *Explorer) QueryVector(ctx context.Context, vec []float32, opts SearchOptions) ([]Match, error) {
	if len(vec) == 0 {
		return nil, errors.New("explorer: query vector is empty")
	}
	return e.search(ctx, vec, opts)
}

// QueryPredicate returns the items matching pred in store order, up to
// limit; limit <= 0 returns all. A malformed predicate fails with
// query.ErrInvalidPredicate, never an empty result.
func (e *Explorer) QueryPredicate(ctx context.Context, pred query.Predicate, limit int) ([]store.Item, error) {
	items, err := e.store.Scan(ctx, pred)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type ranked struct {
	id   int
	dist float64
}

func (e *Explorer) search(ctx context.Context, vec []float32, opts SearchOptions) ([]Match, error) {
	if dim := e.store.Dim(); dim > 0 && len(vec) != dim {
		return nil, fmt.Errorf("explorer: %w: query dim %d, store dim %d", store.ErrDimensionMismatch, len(vec), dim)
	}
	started := time.Now()

	// Materialize the post-filter's matching set up front: an invalid
	// predicate must fail loudly, not surface as an empty result.
	var allowed *roaring.Bitmap
	if opts.PostFilter != nil {
		bm, err := e.store.ScanIndices(ctx, opts.PostFilter)
		if err != nil {
			return nil, err
		}
		allowed = bm
	}

	excluded := roaring.New()
	for _, idx := range opts.Exclude {
		if idx >= 0 {
			excluded.Add(uint32(idx))
		}
	}

	// With a post-filter the whole ranking is needed, since matches beyond
	// the nearest Limit rows may survive it. Without one, ranking Limit
	// plus the excluded rows is enough.
	rankLimit := 0
	if opts.PostFilter == nil && opts.Limit > 0 {
		rankLimit = opts.Limit + int(excluded.GetCardinality())
	}

	var ids []int
	var dists []float64
	var err error
	if opts.PreFilter != nil {
		ids, dists, err = e.store.RankByDistance(ctx, vec, opts.Metric, opts.PreFilter, rankLimit)
	} else {
		var idx index.Index
		idx, err = e.store.EnsureIndex(ctx, opts.Metric)
		if err != nil {
			return nil, err
		}
		ids, dists, err = idx.Query(vec, rankLimit)
	}
	if err != nil {
		return nil, err
	}

	keep := make([]ranked, 0, len(ids))
	for i, id := range ids {
		if excluded.Contains(uint32(id)) {
			continue
		}
		if allowed != nil && !allowed.Contains(uint32(id)) {
			continue
		}
		keep = append(keep, ranked{id: id, dist: dists[i]})
	}
	sort.SliceStable(keep, func(a, b int) bool {
		if keep[a].dist != keep[b].dist {
			return keep[a].dist < keep[b].dist
		}
		return keep[a].id < keep[b].id
	})
	if opts.Limit > 0 && len(keep) > opts.Limit {
		keep = keep[:opts.Limit]
	}
	if len(keep) == 0 {
		return nil, nil
	}

	ordered := make([]int, len(keep))
	for i, r := range keep {
		ordered[i] = r.id
	}
	items, err := e.store.GetByIndex(ctx, ordered)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]store.Item, len(items))
	for _, it := range items {
		byID[it.Index] = it
	}
	matches := make([]Match, len(keep))
	for i, r := range keep {
		matches[i] = Match{Item: byID[r.id], Distance: r.dist}
	}
	e.log.Debug("search complete", "metric", opts.Metric.String(), "candidates", len(ids), "matches", len(matches), "took", time.Since(started))
	return matches, nil
}
