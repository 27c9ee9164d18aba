package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/normgraph/normgraph/internal/types"
)

// SqliteStore is a SQLite-backed Store. Embeddings are serialized as
// little-endian float64 BLOBs and search is a brute-force cosine scan,
// which is adequate for corpora in the tens of thousands of chunks.
type SqliteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dims   int
	closed bool
}

// SqliteConfig configures a SqliteStore.
type SqliteConfig struct {
	// Path to the SQLite database file.
	Path string

	// Dims is the required embedding dimensionality. Records with a
	// different dimensionality are rejected at store time.
	Dims int
}

// NewSqliteStore opens (or creates) a SQLite vector store at the
// configured path.
func NewSqliteStore(cfg SqliteConfig) (*SqliteStore, error) {
	if cfg.Path == "" {
		return nil, types.NewError(types.VECTOR_STORE_FAILED, "vector store path cannot be empty")
	}
	if cfg.Dims <= 0 {
		return nil, types.NewError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("dimensions must be positive, got %d", cfg.Dims))
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", cfg.Path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.VECTOR_STORE_FAILED, "failed to open vector database", err)
	}

	s := &SqliteStore{db: db, dims: cfg.Dims}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		id         TEXT PRIMARY KEY,
		content    TEXT NOT NULL,
		embedding  BLOB NOT NULL,
		source     TEXT NOT NULL DEFAULT '',
		metadata   TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_source ON embeddings(source);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to create embeddings schema", err)
	}
	return nil
}

// Store persists a single record.
func (s *SqliteStore) Store(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}
	if err := record.Validate(); err != nil {
		return err
	}
	if len(record.Embedding) != s.dims {
		return types.NewError(types.EMBEDDING_DIM_INVALID,
			fmt.Sprintf("embedding has %d dimensions, store requires %d", len(record.Embedding), s.dims))
	}

	return s.insertRecord(ctx, s.db, record)
}

// StoreBatch persists multiple records in one transaction.
func (s *SqliteStore) StoreBatch(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}
	if len(records) == 0 {
		return nil
	}

	// Validate everything before touching the database so a bad record
	// cannot leave a partial batch behind.
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return types.WrapError(types.VECTOR_STORE_FAILED,
				fmt.Sprintf("record %d invalid", i), err)
		}
		if len(records[i].Embedding) != s.dims {
			return types.NewError(types.EMBEDDING_DIM_INVALID,
				fmt.Sprintf("record %d has %d dimensions, store requires %d",
					i, len(records[i].Embedding), s.dims))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	for i := range records {
		if err := s.insertRecord(ctx, tx, records[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to commit batch", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SqliteStore) insertRecord(ctx context.Context, ex execer, record Record) error {
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to serialize metadata", err)
	}

	source := ""
	if v, ok := record.Metadata["source"].(string); ok {
		source = v
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = ex.ExecContext(ctx, `
		INSERT OR REPLACE INTO embeddings (id, content, embedding, source, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.Content, serializeEmbedding(record.Embedding),
		source, string(metadataJSON), createdAt)
	if err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("failed to store record %s", record.ID), err)
	}
	return nil
}

// Search scans all stored embeddings and returns the TopK most similar
// records above the query's MinScore.
func (s *SqliteStore) Search(ctx context.Context, query Query) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.NewError(types.VECTOR_SEARCH_FAILED, "vector store is closed")
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if len(query.Embedding) != s.dims {
		return nil, types.NewError(types.EMBEDDING_DIM_INVALID,
			fmt.Sprintf("query embedding has %d dimensions, store requires %d",
				len(query.Embedding), s.dims))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, embedding, metadata, created_at FROM embeddings`)
	if err != nil {
		return nil, types.WrapError(types.VECTOR_SEARCH_FAILED, "failed to scan embeddings", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var (
			record       Record
			blob         []byte
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.Content, &blob, &metadataJSON, &record.CreatedAt); err != nil {
			return nil, types.WrapError(types.VECTOR_SEARCH_FAILED, "failed to scan row", err)
		}

		record.Embedding, err = deserializeEmbedding(blob)
		if err != nil {
			return nil, types.WrapError(types.VECTOR_SEARCH_FAILED,
				fmt.Sprintf("corrupt embedding for record %s", record.ID), err)
		}

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
				return nil, types.WrapError(types.VECTOR_SEARCH_FAILED,
					fmt.Sprintf("corrupt metadata for record %s", record.ID), err)
			}
		}

		if !matchesFilters(record.Metadata, query.Filters) {
			continue
		}

		score := cosineSimilarity(query.Embedding, record.Embedding)
		if score < query.MinScore {
			continue
		}

		results = append(results, Result{Record: record, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.VECTOR_SEARCH_FAILED, "row iteration failed", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > query.TopK {
		results = results[:query.TopK]
	}
	return results, nil
}

// Get retrieves a record by ID.
func (s *SqliteStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}

	var (
		record       Record
		blob         []byte
		metadataJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, embedding, metadata, created_at FROM embeddings WHERE id = ?`, id).
		Scan(&record.ID, &record.Content, &blob, &metadataJSON, &record.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("record not found: %s", id))
	}
	if err != nil {
		return nil, types.WrapError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("failed to get record %s", id), err)
	}

	record.Embedding, err = deserializeEmbedding(blob)
	if err != nil {
		return nil, types.WrapError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("corrupt embedding for record %s", id), err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			return nil, types.WrapError(types.VECTOR_STORE_FAILED,
				fmt.Sprintf("corrupt metadata for record %s", id), err)
		}
	}
	return &record, nil
}

// Delete removes a record by ID.
func (s *SqliteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE id = ?`, id); err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("failed to delete record %s", id), err)
	}
	return nil
}

// DeleteBySource removes all records ingested from the given source.
// Used when a source is re-ingested with --force.
func (s *SqliteStore) DeleteBySource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE source = ?`, source); err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("failed to delete records for source %s", source), err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *SqliteStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, types.NewError(types.VECTOR_STORE_FAILED, "vector store is closed")
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count); err != nil {
		return 0, types.WrapError(types.VECTOR_STORE_FAILED, "failed to count records", err)
	}
	return count, nil
}

// Health reports whether the underlying database is reachable.
func (s *SqliteStore) Health(ctx context.Context) types.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.Unhealthy("vector store is closed")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return types.Unhealthy(fmt.Sprintf("vector database unreachable: %v", err))
	}
	return types.Healthy(fmt.Sprintf("sqlite vector store operational (%d dims)", s.dims))
}

// Close releases the database handle. Subsequent operations fail.
func (s *SqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED, "failed to close vector database", err)
	}
	return nil
}

// serializeEmbedding encodes a float64 slice as a little-endian BLOB.
func serializeEmbedding(embedding []float64) []byte {
	buf := make([]byte, len(embedding)*8)
	for i, v := range embedding {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeEmbedding decodes a little-endian BLOB back into floats.
func deserializeEmbedding(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 8", len(blob))
	}
	embedding := make([]float64, len(blob)/8)
	for i := range embedding {
		embedding[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return embedding, nil
}

// cosineSimilarity computes the cosine similarity of two equal-length
// vectors, clamped to [0, 1].
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Embeddings can produce slightly negative similarity; scores are
	// defined on [0, 1].
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// matchesFilters checks metadata against filter values. String-slice
// metadata (e.g. control_ids) matches when it contains the filter
// value; everything else requires equality.
func matchesFilters(metadata, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if list, ok := got.([]any); ok {
			found := false
			for _, item := range list {
				if fmt.Sprintf("%v", item) == fmt.Sprintf("%v", want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}
