package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/imglens/imglens/embedding"
	"github.com/imglens/imglens/index"
	"github.com/imglens/imglens/index/bruteforce"
	"github.com/imglens/imglens/index/cover"
	"github.com/imglens/imglens/internal/cover/tree"
)

const (
	autoCoverMinItems           = 4000
	autoCoverMinDim             = 64
	autoCoverMinDensity float64 = 16
)

// resolveIndexKind maps KindAuto to a concrete implementation: small or
// sparse stores stay on the exact scan, large dense ones get the cover tree.
func resolveIndexKind(kind index.Kind, items, dim int) index.Kind {
	if kind == index.KindBrute || kind == index.KindCover {
		return kind
	}
	if items >= autoCoverMinItems && dim >= autoCoverMinDim {
		if dim > 0 && float64(items)/float64(dim) >= autoCoverMinDensity {
			return index.KindCover
		}
	}
	return index.KindBrute
}

// Shared in-process cache of built indexes keyed by store path and metric,
// so every Store opened on the same file reuses one index. Entries remember
// the content hash they were built from; a hash mismatch behaves like a miss.
var sharedIndexes = struct {
	mu    sync.RWMutex
	byKey map[string]*indexEntry
}{byKey: make(map[string]*indexEntry)}

type indexEntry struct {
	mu       sync.RWMutex
	idx      index.Index
	hash     string
	building bool
	cond     *sync.Cond
}

func newIndexEntry() *indexEntry {
	e := &indexEntry{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func indexEntryFor(key string) *indexEntry {
	sharedIndexes.mu.RLock()
	entry := sharedIndexes.byKey[key]
	sharedIndexes.mu.RUnlock()
	if entry != nil {
		return entry
	}
	sharedIndexes.mu.Lock()
	defer sharedIndexes.mu.Unlock()
	if entry = sharedIndexes.byKey[key]; entry == nil {
		entry = newIndexEntry()
		sharedIndexes.byKey[key] = entry
	}
	return entry
}

func (e *indexEntry) get() (index.Index, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx, e.hash
}

func (e *indexEntry) set(idx index.Index, hash string) {
	e.mu.Lock()
	e.idx, e.hash = idx, hash
	e.mu.Unlock()
}

func (e *indexEntry) waitForBuild() (index.Index, string) {
	e.mu.Lock()
	for e.building {
		e.cond.Wait()
	}
	idx, hash := e.idx, e.hash
	e.mu.Unlock()
	return idx, hash
}

func (e *indexEntry) startBuild(hash string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.building {
		return false
	}
	if e.idx != nil && e.hash == hash {
		return false
	}
	e.building = true
	return true
}

func (e *indexEntry) finishBuild() {
	e.mu.Lock()
	e.building = false
	e.cond.Broadcast()
	e.mu.Unlock()
}

func (s *Store) indexCacheKey(metric embedding.Metric) string {
	return s.path + "|" + metric.String()
}

func (s *Store) newIndex(kind index.Kind, metric embedding.Metric) index.Index {
	if kind == index.KindCover {
		dist := tree.Cosine
		if metric == embedding.MetricL2 {
			dist = tree.Euclidean
		}
		return cover.New(cover.WithDistance(dist))
	}
	return bruteforce.New(metric)
}

// EnsureIndex returns a vector index over the current rows for the given
// metric. A cached or persisted index whose content hash still matches is
// reused; otherwise one is built, persisted, and shared. Concurrent callers
// for the same store and metric share a single build; waiters block until it
// completes. Cross-process races are serialized through a store_locks row.
func (s *Store) EnsureIndex(ctx context.Context, metric embedding.Metric) (index.Index, error) {
	hash, err := s.ContentHash(ctx)
	if err != nil {
		return nil, err
	}
	entry := indexEntryFor(s.indexCacheKey(metric))
	if idx, h := entry.get(); idx != nil && h == hash {
		return idx, nil
	}

	if idx, ok, err := s.loadPersistedIndex(ctx, metric, hash); err != nil {
		return nil, err
	} else if ok {
		entry.set(idx, hash)
		return idx, nil
	}

	for {
		if idx, h := entry.get(); idx != nil && h == hash {
			return idx, nil
		}
		if entry.startBuild(hash) {
			break
		}
		if idx, h := entry.waitForBuild(); idx != nil && h == hash {
			return idx, nil
		}
	}
	defer entry.finishBuild()

	unlock, err := s.AcquireLock(ctx, "vector_index:"+metric.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another process may have persisted a fresh index while we waited.
	if idx, ok, err := s.loadPersistedIndex(ctx, metric, hash); err != nil {
		return nil, err
	} else if ok {
		entry.set(idx, hash)
		return idx, nil
	}

	started := time.Now()
	idx, n, resolved, err := s.buildIndex(ctx, s.idxKind, metric)
	if err != nil {
		return nil, err
	}
	if err := s.persistIndex(ctx, metric, resolved, hash, idx); err != nil {
		return nil, err
	}
	entry.set(idx, hash)
	s.log.Debug("vector index built", "metric", metric.String(), "kind", string(resolved), "items", n, "took", time.Since(started))
	return idx, nil
}

// RebuildIndex builds and persists a fresh index of the requested kind,
// replacing any persisted blob regardless of staleness, and returns the
// number of indexed rows. KindAuto resolves from the data shape.
func (s *Store) RebuildIndex(ctx context.Context, metric embedding.Metric, kind index.Kind) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	idx, n, resolved, err := s.buildIndex(ctx, kind, metric)
	if err != nil {
		return 0, err
	}
	hash, err := s.ContentHash(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.persistIndex(ctx, metric, resolved, hash, idx); err != nil {
		return 0, err
	}
	if err := appendLog(ctx, s.db, "reindex", fmt.Sprintf("%s %s: %d items", metric, resolved, n)); err != nil {
		return 0, err
	}
	indexEntryFor(s.indexCacheKey(metric)).set(idx, hash)
	s.log.Info("reindex complete", "metric", metric.String(), "kind", string(resolved), "items", n)
	return n, nil
}

func (s *Store) buildIndex(ctx context.Context, kind index.Kind, metric embedding.Metric) (index.Index, int, index.Kind, error) {
	ids, vecs, err := s.vectorRows(ctx)
	if err != nil {
		return nil, 0, "", err
	}
	dim := 0
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	resolved := resolveIndexKind(kind, len(ids), dim)
	idx := s.newIndex(resolved, metric)
	if err := idx.Build(ids, vecs); err != nil {
		return nil, 0, "", fmt.Errorf("store: build %s index: %w", resolved, err)
	}
	return idx, len(ids), resolved, nil
}

func (s *Store) persistIndex(ctx context.Context, metric embedding.Metric, kind index.Kind, hash string, idx index.Index) error {
	blob, err := idx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("store: marshal index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vector_index(name, kind, content_hash, "index", updated_at) VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		metric.String(), string(kind), hash, blob); err != nil {
		return fmt.Errorf("store: persist index: %w", err)
	}
	return nil
}

// loadPersistedIndex restores the persisted index for the metric when its
// recorded content hash matches hash. The blob's magic decides the concrete
// type; a corrupt blob is treated as absent so callers rebuild instead of
// failing.
func (s *Store) loadPersistedIndex(ctx context.Context, metric embedding.Metric, hash string) (index.Index, bool, error) {
	var storedHash string
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash, "index" FROM vector_index WHERE name = ?`, metric.String()).Scan(&storedHash, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: load index: %w", err)
	}
	if storedHash != hash || len(blob) == 0 {
		return nil, false, nil
	}
	kind := index.KindBrute
	if isCoverBlob(blob) {
		kind = index.KindCover
	}
	idx := s.newIndex(kind, metric)
	if err := idx.UnmarshalBinary(blob); err != nil {
		return nil, false, nil
	}
	return idx, true, nil
}

func isCoverBlob(blob []byte) bool {
	return len(blob) >= 4 && string(blob[:4]) == "COV1"
}
