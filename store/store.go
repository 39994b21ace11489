package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/imglens/imglens/embedding"
	"github.com/imglens/imglens/engine"
	"github.com/imglens/imglens/index"
	"github.com/imglens/imglens/internal/checksum"
	"github.com/imglens/imglens/logging"
	"github.com/imglens/imglens/query"
)

var (
	// ErrIndexOutOfRange is returned when a requested row index does not
	// exist in the store.
	ErrIndexOutOfRange = errors.New("store: index out of range")

	// ErrNotInitialized is returned when opening a database that has not
	// been initialized as a store.
	ErrNotInitialized = errors.New("store: not initialized")

	// ErrDimensionMismatch aliases the embedding sentinel so callers can
	// match either name with errors.Is.
	ErrDimensionMismatch = embedding.ErrDimensionMismatch
)

// Store owns all rows for one (dataset, model) pair, persisted in a single
// SQLite file. It is safe for concurrent readers; mutations are serialized
// through an internal single-writer gate.
type Store struct {
	db   *sql.DB
	path string
	log  *logging.Logger

	dataset string
	model   string
	fields  query.Schema // declared metadata fields only
	created time.Time

	idxKind index.Kind

	writeMu sync.Mutex // single-writer gate for mutations

	mu        sync.RWMutex // guards dim and the content-hash cache
	dim       int
	hashSeq   int64
	hashCount int64
	hashVal   string
}

// Option customizes a Store at open time.
type Option func(*Store)

// WithLogger attaches a structured logger. The default discards all output.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithIndexKind fixes the ANN index implementation EnsureIndex builds. The
// default KindAuto picks one from the data shape.
func WithIndexKind(k index.Kind) Option {
	return func(s *Store) { s.idxKind = k }
}

var fieldNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// reservedFields are the built-in queryable columns plus the distance column
// results carry; declared metadata fields may not shadow them.
var reservedFields = map[string]bool{
	"index":     true,
	"file_path": true,
	"split":     true,
	"labels":    true,
	"distance":  true,
}

// Open opens an existing store file. It fails with ErrNotInitialized when
// the database has no store identity recorded yet; use Create for new files.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s, err := open(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.loadInfo(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

// Create initializes a store file for the given dataset and model, declaring
// the extra metadata fields items may carry. Creating over an existing store
// with the same identity opens it; a different identity is an error.
func Create(ctx context.Context, path, dataset, model string, fields query.Schema, opts ...Option) (*Store, error) {
	if dataset == "" {
		return nil, fmt.Errorf("store: dataset name is required")
	}
	if model == "" {
		return nil, fmt.Errorf("store: model name is required")
	}
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	s, err := open(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	err = s.loadInfo(ctx)
	switch {
	case err == nil:
		if s.dataset != dataset || s.model != model {
			_ = s.db.Close()
			return nil, fmt.Errorf("store: %s already holds dataset %q model %q", s.path, s.dataset, s.model)
		}
		return s, nil
	case errors.Is(err, ErrNotInitialized):
		if err := s.initialize(ctx, dataset, model, fields); err != nil {
			_ = s.db.Close()
			return nil, err
		}
		return s, nil
	default:
		_ = s.db.Close()
		return nil, err
	}
}

func open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	if path != ":memory:" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	db, err := engine.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// A second pooled connection would see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := engine.Configure(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{
		db:      db,
		path:    path,
		log:     logging.Noop(),
		idxKind: index.KindAuto,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithStore(path)
	return s, nil
}

func validateFields(fields query.Schema) error {
	for name, kind := range fields {
		if !fieldNameRe.MatchString(name) {
			return fmt.Errorf("store: invalid field name %q", name)
		}
		if reservedFields[name] {
			return fmt.Errorf("store: field name %q is reserved", name)
		}
		switch kind {
		case query.KindInt, query.KindFloat, query.KindString, query.KindBool, query.KindArray:
		default:
			return fmt.Errorf("store: field %q has unsupported kind %s", name, kind)
		}
	}
	return nil
}

func (s *Store) initialize(ctx context.Context, dataset, model string, fields query.Schema) error {
	fieldNames := make(map[string]string, len(fields))
	for name, kind := range fields {
		fieldNames[name] = kind.String()
	}
	fieldsJSON, err := json.Marshal(fieldNames)
	if err != nil {
		return fmt.Errorf("store: encode meta fields: %w", err)
	}
	created := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: initialize: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, value := range map[string]string{
		"dataset":     dataset,
		"model":       model,
		"dim":         "0",
		"meta_fields": string(fieldsJSON),
		"created_at":  created,
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO store_info(key, value) VALUES(?, ?)`, key, value); err != nil {
			return fmt.Errorf("store: initialize: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: initialize: %w", err)
	}
	return s.loadInfo(ctx)
}

func (s *Store) loadInfo(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM store_info`)
	if err != nil {
		return fmt.Errorf("store: read info: %w", err)
	}
	defer rows.Close()
	kv := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("store: read info: %w", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: read info: %w", err)
	}

	dataset, ok := kv["dataset"]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInitialized, s.path)
	}
	s.dataset = dataset
	s.model = kv["model"]
	if v := kv["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			s.created = t
		}
	}

	dim := 0
	if v := kv["dim"]; v != "" {
		dim, err = strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("store: invalid dim %q: %w", v, err)
		}
	}

	fields := query.Schema{}
	if v := kv["meta_fields"]; v != "" && v != "{}" {
		var raw map[string]string
		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			return fmt.Errorf("store: decode meta fields: %w", err)
		}
		for name, kindName := range raw {
			kind, err := query.ParseKind(kindName)
			if err != nil {
				return fmt.Errorf("store: meta field %q: %w", name, err)
			}
			fields[name] = kind
		}
	}
	s.fields = fields

	s.mu.Lock()
	s.dim = dim
	s.mu.Unlock()
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the resolved database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Dataset returns the dataset identity recorded at creation.
func (s *Store) Dataset() string { return s.dataset }

// Model returns the embedding model identity recorded at creation.
func (s *Store) Model() string { return s.model }

// Dim returns the vector dimensionality, or 0 before the first build.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// DB exposes the underlying database for read-side SQL tooling and for the
// similarity-index cache, which persists its payloads in this file.
func (s *Store) DB() *sql.DB { return s.db }

// Schema returns the queryable fields: the built-in columns plus the
// metadata fields declared at creation.
func (s *Store) Schema() query.Schema {
	sch := query.Schema{
		"index":     query.KindInt,
		"file_path": query.KindString,
		"split":     query.KindString,
		"labels":    query.KindArray,
	}
	for name, kind := range s.fields {
		sch[name] = kind
	}
	return sch
}

// columnFor maps a queryable field to its SQL expression. Declared metadata
// fields live in the meta JSON column and can be NULL for rows that omit
// them; field names are validated at creation, so splicing them into the
// JSON path is safe.
func (s *Store) columnFor(field string) (string, bool) {
	switch field {
	case "index":
		return "idx", false
	case "file_path", "split", "labels":
		return field, false
	}
	return "json_extract(meta, '$." + field + "')", true
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Info describes a store for display: its identity, shape, and current
// content hash.
type Info struct {
	Dataset     string
	Model       string
	Dim         int
	Count       int
	ContentHash string
	Fields      query.Schema
	CreatedAt   time.Time
}

// Info returns the store description.
func (s *Store) Info(ctx context.Context) (Info, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return Info{}, err
	}
	hash, err := s.ContentHash(ctx)
	if err != nil {
		return Info{}, err
	}
	fields := query.Schema{}
	for name, kind := range s.fields {
		fields[name] = kind
	}
	return Info{
		Dataset:     s.dataset,
		Model:       s.model,
		Dim:         s.Dim(),
		Count:       count,
		ContentHash: hash,
		Fields:      fields,
		CreatedAt:   s.created,
	}, nil
}

// maxBatchParams bounds the placeholders per statement, comfortably below
// SQLite's parameter limit.
const maxBatchParams = 500

// GetByIndex returns the rows for the requested indices, vectors included,
// ordered by ascending index. Duplicates are folded. If any requested index
// is not present the call fails with ErrIndexOutOfRange.
func (s *Store) GetByIndex(ctx context.Context, indices []int) ([]Item, error) {
	if len(indices) == 0 {
		return nil, nil
	}
	seen := make(map[int]bool, len(indices))
	uniq := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 {
			return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, idx)
		}
		if !seen[idx] {
			seen[idx] = true
			uniq = append(uniq, idx)
		}
	}
	sort.Ints(uniq)

	items := make([]Item, 0, len(uniq))
	for start := 0; start < len(uniq); start += maxBatchParams {
		chunk := uniq[start:min(start+maxBatchParams, len(uniq))]
		args := make([]any, len(chunk))
		for i, idx := range chunk {
			args[i] = idx
		}
		got, err := s.selectItems(ctx,
			"WHERE idx IN ("+placeholders(len(chunk))+") ORDER BY idx", args, true)
		if err != nil {
			return nil, err
		}
		items = append(items, got...)
	}

	if len(items) != len(uniq) {
		found := make(map[int]bool, len(items))
		for _, it := range items {
			found[it.Index] = true
		}
		for _, idx := range uniq {
			if !found[idx] {
				return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, idx)
			}
		}
	}
	return items, nil
}

// Vectors materializes every stored vector in index order.
func (s *Store) Vectors(ctx context.Context) ([][]float32, error) {
	_, vecs, err := s.vectorRows(ctx)
	return vecs, err
}

func (s *Store) vectorRows(ctx context.Context) ([]int, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT idx, embedding FROM items ORDER BY idx`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: read vectors: %w", err)
	}
	defer rows.Close()
	var ids []int
	var vecs [][]float32
	for rows.Next() {
		var idx int
		var blob []byte
		if err := rows.Scan(&idx, &blob); err != nil {
			return nil, nil, fmt.Errorf("store: read vectors: %w", err)
		}
		vec, err := embedding.Decode(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("store: row %d: %w", idx, err)
		}
		ids = append(ids, idx)
		vecs = append(vecs, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("store: read vectors: %w", err)
	}
	return ids, vecs, nil
}

// Scan returns every row matching the predicate in store order. Vectors are
// not loaded. A nil predicate matches every row; a malformed predicate fails
// with query.ErrInvalidPredicate, never an empty result.
func (s *Store) Scan(ctx context.Context, pred query.Predicate) ([]Item, error) {
	where, args, err := query.ToSQL(pred, s.Schema(), s.columnFor)
	if err != nil {
		return nil, err
	}
	clause := "ORDER BY idx"
	if where != "" {
		clause = "WHERE " + where + " ORDER BY idx"
	}
	return s.selectItems(ctx, clause, args, false)
}

// ScanIndices evaluates the predicate and returns the matching row indices
// as a bitmap. A nil predicate yields every index.
func (s *Store) ScanIndices(ctx context.Context, pred query.Predicate) (*roaring.Bitmap, error) {
	where, args, err := query.ToSQL(pred, s.Schema(), s.columnFor)
	if err != nil {
		return nil, err
	}
	q := "SELECT idx FROM items"
	if where != "" {
		q += " WHERE " + where
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: scan indices: %w", err)
	}
	defer rows.Close()
	bm := roaring.New()
	for rows.Next() {
		var idx uint32
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("store: scan indices: %w", err)
		}
		bm.Add(idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan indices: %w", err)
	}
	return bm, nil
}

// RankByDistance ranks rows by their SQL-computed distance to vec under the
// given metric, optionally restricted to rows matching pred before ranking.
// The result is parallel slices ordered by ascending distance, ties broken
// by ascending index. Rows the metric cannot rank (zero magnitude under
// cosine) are omitted, as is the whole result for an unrankable query
// vector. limit <= 0 returns every rankable row.
func (s *Store) RankByDistance(ctx context.Context, vec []float32, metric embedding.Metric, pred query.Predicate, limit int) ([]int, []float64, error) {
	if dim := s.Dim(); dim > 0 && len(vec) != dim {
		return nil, nil, fmt.Errorf("store: %w: query dim %d, store dim %d", ErrDimensionMismatch, len(vec), dim)
	}
	where, preArgs, err := query.ToSQL(pred, s.Schema(), s.columnFor)
	if err != nil {
		return nil, nil, err
	}
	fn := "vec_cosine_dist"
	if metric == embedding.MetricL2 {
		fn = "vec_l2"
	}
	blob, err := embedding.Encode(vec)
	if err != nil {
		return nil, nil, err
	}

	inner := "SELECT idx, " + fn + "(embedding, ?) AS dist FROM items"
	args := []any{blob}
	if where != "" {
		inner += " WHERE " + where
		args = append(args, preArgs...)
	}
	q := "SELECT idx, dist FROM (" + inner + ") WHERE dist IS NOT NULL ORDER BY dist, idx"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("store: rank: %w", err)
	}
	defer rows.Close()
	var ids []int
	var dists []float64
	for rows.Next() {
		var idx int
		var dist float64
		if err := rows.Scan(&idx, &dist); err != nil {
			return nil, nil, fmt.Errorf("store: rank: %w", err)
		}
		ids = append(ids, idx)
		dists = append(dists, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("store: rank: %w", err)
	}
	return ids, dists, nil
}

// ContentHash fingerprints the store identity and the current row set. The
// value is cached against the journal seq and row count, so repeated calls
// between mutations are cheap. Persisted artifacts (ANN indexes, similarity
// indexes) record this hash at compute time and are stale once it changes.
func (s *Store) ContentHash(ctx context.Context) (string, error) {
	seq, err := s.lastSeq(ctx)
	if err != nil {
		return "", err
	}
	count, err := s.Count(ctx)
	if err != nil {
		return "", err
	}
	s.mu.RLock()
	if s.hashVal != "" && s.hashSeq == seq && s.hashCount == int64(count) {
		h := s.hashVal
		s.mu.RUnlock()
		return h, nil
	}
	s.mu.RUnlock()

	d := checksum.New()
	d.WriteString(s.dataset)
	d.WriteString(s.model)
	d.WriteInt(int64(s.Dim()))
	rows, err := s.db.QueryContext(ctx, `SELECT idx, file_path, embedding FROM items ORDER BY idx`)
	if err != nil {
		return "", fmt.Errorf("store: content hash: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var idx int64
		var path string
		var blob []byte
		if err := rows.Scan(&idx, &path, &blob); err != nil {
			return "", fmt.Errorf("store: content hash: %w", err)
		}
		d.WriteInt(idx)
		d.WriteString(path)
		d.WriteInt(int64(len(blob)))
		d.WriteBytes(blob)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("store: content hash: %w", err)
	}
	hash := d.String()

	// Cache only if no mutation slipped in while hashing.
	seqAfter, err := s.lastSeq(ctx)
	if err == nil && seqAfter == seq {
		s.mu.Lock()
		s.hashSeq, s.hashCount, s.hashVal = seq, int64(count), hash
		s.mu.Unlock()
	}
	return hash, nil
}

func (s *Store) selectItems(ctx context.Context, clause string, args []any, withVectors bool) ([]Item, error) {
	cols := "idx, file_path, labels, split, meta"
	if withVectors {
		cols += ", embedding"
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+cols+" FROM items "+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("store: select items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var labels, meta string
		var blob []byte
		dest := []any{&it.Index, &it.FilePath, &labels, &it.Split, &meta}
		if withVectors {
			dest = append(dest, &blob)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("store: select items: %w", err)
		}
		if it.Labels, err = decodeLabels(labels); err != nil {
			return nil, fmt.Errorf("store: row %d: %w", it.Index, err)
		}
		if it.Meta, err = decodeMeta(meta, s.fields); err != nil {
			return nil, fmt.Errorf("store: row %d: %w", it.Index, err)
		}
		if withVectors {
			if it.Vector, err = embedding.Decode(blob); err != nil {
				return nil, fmt.Errorf("store: row %d: %w", it.Index, err)
			}
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: select items: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
