package store

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imglens/imglens/embedding"
	"github.com/imglens/imglens/extractor"
)

// defaultBatchSize is the number of sources per batched extraction call.
const defaultBatchSize = 16

// BuildOptions control a Build or Append pass.
type BuildOptions struct {
	// Force drops every existing row and rebuilds the store from scratch.
	Force bool

	// Parallelism bounds concurrent extraction calls; <= 0 uses GOMAXPROCS.
	Parallelism int

	// Batch, when set, replaces per-image extraction with batched calls.
	Batch extractor.BatchFunc

	// BatchSize is the number of sources per Batch call; <= 0 uses the
	// default of 16.
	BatchSize int
}

// Build ingests sources, extracting an embedding for every source the store
// does not hold yet and appending the new rows in one transaction. Sources
// already present are skipped, so re-running a build is a no-op; Force
// rebuilds from scratch. Nothing is published if any extraction fails or ctx
// is canceled. Returns the number of rows added.
func (s *Store) Build(ctx context.Context, sources []Source, fn extractor.Func, opts BuildOptions) (int, error) {
	op := "build"
	if opts.Force {
		op = "rebuild"
	}
	return s.ingest(ctx, sources, fn, opts, op)
}

// Append ingests sources not yet present, assigning the next contiguous
// indices. Existing rows are never touched.
func (s *Store) Append(ctx context.Context, sources []Source, fn extractor.Func, opts BuildOptions) (int, error) {
	opts.Force = false
	return s.ingest(ctx, sources, fn, opts, "append")
}

func (s *Store) ingest(ctx context.Context, sources []Source, fn extractor.Func, opts BuildOptions, op string) (int, error) {
	if fn == nil && opts.Batch == nil {
		return 0, fmt.Errorf("store: extractor is required")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	started := time.Now()

	existing := map[string]bool{}
	if !opts.Force {
		rows, err := s.db.QueryContext(ctx, `SELECT file_path FROM items`)
		if err != nil {
			return 0, fmt.Errorf("store: read paths: %w", err)
		}
		for rows.Next() {
			var path string
			if err := rows.Scan(&path); err != nil {
				rows.Close()
				return 0, fmt.Errorf("store: read paths: %w", err)
			}
			existing[path] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return 0, fmt.Errorf("store: read paths: %w", err)
		}
		rows.Close()
	}

	seen := map[string]bool{}
	pending := make([]Source, 0, len(sources))
	for i, src := range sources {
		if src.FilePath == "" {
			return 0, fmt.Errorf("store: source %d: file_path is required", i)
		}
		if err := s.fields.Validate(src.Meta); err != nil {
			return 0, fmt.Errorf("store: source %s: %w", src.FilePath, err)
		}
		if seen[src.FilePath] || existing[src.FilePath] {
			continue
		}
		seen[src.FilePath] = true
		pending = append(pending, src)
	}
	if len(pending) == 0 && !opts.Force {
		s.log.Debug("nothing to ingest", "sources", len(sources))
		return 0, nil
	}

	vecs, err := s.extractAll(ctx, pending, fn, opts)
	if err != nil {
		return 0, err
	}

	dim := s.Dim()
	if opts.Force {
		dim = 0
	}
	for i, vec := range vecs {
		if len(vec) == 0 {
			return 0, &extractor.Error{Source: pending[i].FilePath, Err: errors.New("empty embedding")}
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return 0, fmt.Errorf("store: %s: %w: got %d, want %d", pending[i].FilePath, ErrDimensionMismatch, len(vec), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: %s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if opts.Force {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
			return 0, fmt.Errorf("store: %s: %w", op, err)
		}
	}
	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(idx)+1, 0) FROM items`).Scan(&next); err != nil {
		return 0, fmt.Errorf("store: %s: %w", op, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items(idx, file_path, labels, split, meta, embedding) VALUES(?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("store: %s: %w", op, err)
	}
	defer stmt.Close()
	for i, src := range pending {
		labels, err := encodeLabels(src.Labels)
		if err != nil {
			return 0, err
		}
		meta, err := encodeMeta(src.Meta)
		if err != nil {
			return 0, err
		}
		blob, err := embedding.Encode(vecs[i])
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, next+i, src.FilePath, labels, src.Split, meta, blob); err != nil {
			return 0, fmt.Errorf("store: insert %s: %w", src.FilePath, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO store_info(key, value) VALUES('dim', ?)`, strconv.Itoa(dim)); err != nil {
		return 0, fmt.Errorf("store: %s: %w", op, err)
	}
	if err := appendLog(ctx, tx, op, fmt.Sprintf("%d items, dim %d", len(pending), dim)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: %s: %w", op, err)
	}

	s.mu.Lock()
	s.dim = dim
	s.mu.Unlock()
	s.log.Info("ingest complete", "op", op, "items", len(pending), "dim", dim, "took", time.Since(started))
	return len(pending), nil
}

// extractAll runs the extractor over every pending source with bounded
// parallelism and returns the vectors in source order. The first failure
// cancels the remaining work.
func (s *Store) extractAll(ctx context.Context, pending []Source, fn extractor.Func, opts BuildOptions) ([][]float32, error) {
	if len(pending) == 0 {
		return nil, nil
	}
	workers := opts.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	vecs := make([][]float32, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	if opts.Batch != nil {
		size := opts.BatchSize
		if size <= 0 {
			size = defaultBatchSize
		}
		for start := 0; start < len(pending); start += size {
			end := min(start+size, len(pending))
			g.Go(func() error {
				paths := make([]string, end-start)
				for i := range paths {
					paths[i] = pending[start+i].FilePath
				}
				out, err := opts.Batch(gctx, paths)
				if err != nil {
					return asExtractionError(paths[0], err)
				}
				if len(out) != len(paths) {
					return &extractor.Error{
						Source: paths[0],
						Err:    fmt.Errorf("batch returned %d embeddings for %d sources", len(out), len(paths)),
					}
				}
				copy(vecs[start:end], out)
				return nil
			})
		}
	} else {
		for i := range pending {
			g.Go(func() error {
				vec, err := fn(gctx, pending[i].FilePath)
				if err != nil {
					return asExtractionError(pending[i].FilePath, err)
				}
				vecs[i] = vec
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

// asExtractionError wraps err so callers can always recover the failing
// source, unless the extractor already reported one.
func asExtractionError(source string, err error) error {
	var xerr *extractor.Error
	if errors.As(err, &xerr) {
		return err
	}
	return &extractor.Error{Source: source, Err: err}
}
