package simindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/imglens/imglens/explorer"
	"github.com/imglens/imglens/logging"
	"github.com/imglens/imglens/store"
)

// ErrComputeInProgress is returned by TryGet when another caller is already
// computing the requested key.
var ErrComputeInProgress = errors.New("simindex: compute in progress")

// Key identifies one similarity-index computation: the store identity plus
// the analytic parameters. Per item, the TopK nearest neighbors are the
// candidates and MaxDist bounds which of them count as similar. Distances
// are cosine.
type Key struct {
	Dataset string
	Model   string
	MaxDist float64
	TopK    int
}

// KeyFor builds the key for a store's identity with the given parameters.
func KeyFor(s *store.Store, maxDist float64, topK int) Key {
	return Key{Dataset: s.Dataset(), Model: s.Model(), MaxDist: maxDist, TopK: topK}
}

// String renders the key the way the sim_index table stores it.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%g|%d", k.Dataset, k.Model, k.MaxDist, k.TopK)
}

// Entry is the analytic result for one stored item.
type Entry struct {
	// Index is the item's store index.
	Index int `json:"index"`
	// FilePath is the item's source image.
	FilePath string `json:"file_path"`
	// Count is how many of the item's TopK nearest neighbors lie within
	// MaxDist. The item itself is never counted.
	Count int `json:"count"`
	// SimilarFilePaths are those neighbors' file paths, nearest first.
	SimilarFilePaths []string `json:"similar_file_paths,omitempty"`
}

// Cache computes and caches similarity indexes for one store. Results are
// held in memory tagged with the content hash they were computed from and
// persisted in the store's sim_index table, so a fresh process reloads them
// instead of recomputing. Each key runs at most one computation at a time:
// Get blocks until a running computation finishes, TryGet rejects instead of
// blocking, Refresh recomputes unconditionally. Concurrent processes are
// serialized through a store lock. Safe for concurrent use.
type Cache struct {
	store *store.Store
	eng   *explorer.Explorer
	log   *logging.Logger

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu     sync.Mutex
	states map[Key]*keyState
}

// Option customizes a Cache.
type Option func(*Cache)

// WithLogger attaches a structured logger. The default discards all output.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a Cache over the explorer's store.
func New(eng *explorer.Explorer, opts ...Option) *Cache {
	c := &Cache{
		store:  eng.Store(),
		eng:    eng,
		log:    logging.Noop(),
		states: make(map[Key]*keyState),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	c.dec, _ = zstd.NewReader(nil)
	c.log = c.log.WithStore(c.store.Path())
	return c
}

// Get returns the similarity index for key, computing it if no current one
// exists. When another caller is computing the same key, Get blocks until
// that computation finishes.
func (c *Cache) Get(ctx context.Context, key Key) ([]Entry, error) {
	return c.get(ctx, key, true, false)
}

// TryGet is Get except that it fails with ErrComputeInProgress instead of
// blocking behind another caller's computation.
func (c *Cache) TryGet(ctx context.Context, key Key) ([]Entry, error) {
	return c.get(ctx, key, false, false)
}

// Refresh recomputes the similarity index for key even when a current one
// exists, replacing the cached and persisted results.
func (c *Cache) Refresh(ctx context.Context, key Key) ([]Entry, error) {
	return c.get(ctx, key, true, true)
}

func (c *Cache) get(ctx context.Context, key Key, wait, force bool) ([]Entry, error) {
	if err := c.validate(key); err != nil {
		return nil, err
	}
	hash, err := c.store.ContentHash(ctx)
	if err != nil {
		return nil, err
	}
	st := c.stateFor(key)
	if !force {
		if es, h := st.get(); es != nil && h == hash {
			return es, nil
		}
		if es, ok, err := c.loadPersisted(ctx, key, hash); err != nil {
			return nil, err
		} else if ok {
			st.set(es, hash)
			return es, nil
		}
	}

	for {
		if !force {
			if es, h := st.get(); es != nil && h == hash {
				return es, nil
			}
		}
		if st.startCompute(hash, force) {
			break
		}
		if !wait {
			return nil, fmt.Errorf("%w: %s", ErrComputeInProgress, key)
		}
		if es, h := st.waitForCompute(); !force && es != nil && h == hash {
			return es, nil
		}
	}
	defer st.finishCompute()

	unlock, err := c.store.AcquireLock(ctx, "simindex:"+key.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another process may have persisted this key while we waited.
	if !force {
		if es, ok, err := c.loadPersisted(ctx, key, hash); err != nil {
			return nil, err
		} else if ok {
			st.set(es, hash)
			return es, nil
		}
	}

	started := time.Now()
	es, err := c.compute(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := c.persist(ctx, key, hash, es); err != nil {
		return nil, err
	}
	st.set(es, hash)
	c.log.Info("similarity index computed", "key", key.String(), "items", len(es), "took", time.Since(started))
	return es, nil
}

func (c *Cache) validate(key Key) error {
	if key.Dataset != c.store.Dataset() || key.Model != c.store.Model() {
		return fmt.Errorf("simindex: key %s does not match store %s/%s", key, c.store.Dataset(), c.store.Model())
	}
	if key.TopK < 1 {
		return fmt.Errorf("simindex: top_k must be at least 1, got %d", key.TopK)
	}
	if key.MaxDist < 0 {
		return fmt.Errorf("simindex: max_dist must not be negative, got %g", key.MaxDist)
	}
	return nil
}

// compute runs the per-item neighbor searches in parallel and merges the
// results in index order. A failure or cancellation publishes nothing.
func (c *Cache) compute(ctx context.Context, key Key) ([]Entry, error) {
	items, err := c.store.Scan(ctx, nil)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, it := range items {
		g.Go(func() error {
			matches, err := c.eng.SimilarByIndices(gctx, []int{it.Index}, explorer.SearchOptions{Limit: key.TopK})
			if err != nil {
				return err
			}
			e := Entry{Index: it.Index, FilePath: it.FilePath}
			for _, m := range matches {
				if m.Distance <= key.MaxDist {
					e.Count++
					e.SimilarFilePaths = append(e.SimilarFilePaths, m.Item.FilePath)
				}
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Cache) persist(ctx context.Context, key Key, hash string, entries []Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("simindex: encode %s: %w", key, err)
	}
	payload := c.enc.EncodeAll(raw, nil)
	if _, err := c.store.DB().ExecContext(ctx,
		`INSERT OR REPLACE INTO sim_index(key, content_hash, payload, computed_at) VALUES(?, ?, ?, CURRENT_TIMESTAMP)`,
		key.String(), hash, payload); err != nil {
		return fmt.Errorf("simindex: persist %s: %w", key, err)
	}
	return c.store.LogOperation(ctx, "simindex", fmt.Sprintf("%s: %d items", key, len(entries)))
}

// loadPersisted restores the persisted results for key when their recorded
// content hash matches hash. A corrupt payload is treated as absent so
// callers recompute instead of failing.
func (c *Cache) loadPersisted(ctx context.Context, key Key, hash string) ([]Entry, bool, error) {
	var storedHash string
	var payload []byte
	err := c.store.DB().QueryRowContext(ctx,
		`SELECT content_hash, payload FROM sim_index WHERE key = ?`, key.String()).Scan(&storedHash, &payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("simindex: load %s: %w", key, err)
	}
	if storedHash != hash || len(payload) == 0 {
		return nil, false, nil
	}
	raw, err := c.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, false, nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, true, nil
}

func (c *Cache) stateFor(key Key) *keyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.states[key]
	if st == nil {
		st = newKeyState()
		c.states[key] = st
	}
	return st
}

// keyState tracks one key's cached results and the single computation slot.
// A nil entries slice means nothing has been computed for the key yet.
type keyState struct {
	mu        sync.RWMutex
	entries   []Entry
	hash      string
	computing bool
	cond      *sync.Cond
}

func newKeyState() *keyState {
	st := &keyState{}
	st.cond = sync.NewCond(&st.mu)
	return st
}

func (st *keyState) get() ([]Entry, string) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.entries, st.hash
}

func (st *keyState) set(entries []Entry, hash string) {
	st.mu.Lock()
	st.entries, st.hash = entries, hash
	st.mu.Unlock()
}

func (st *keyState) startCompute(hash string, force bool) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.computing {
		return false
	}
	if !force && st.entries != nil && st.hash == hash {
		return false
	}
	st.computing = true
	return true
}

func (st *keyState) finishCompute() {
	st.mu.Lock()
	st.computing = false
	st.cond.Broadcast()
	st.mu.Unlock()
}

func (st *keyState) waitForCompute() ([]Entry, string) {
	st.mu.Lock()
	for st.computing {
		st.cond.Wait()
	}
	entries, hash := st.entries, st.hash
	st.mu.Unlock()
	return entries, hash
}
