package database

import (
	"context"
	"database/sql"

	"github.com/normgraph/normgraph/internal/types"
)

// KeywordHit is one full-text match from the chunk keyword index.
type KeywordHit struct {
	ChunkID types.ID `json:"chunk_id"`
	Source  string   `json:"source"`
	Section string   `json:"section"`
	Snippet string   `json:"snippet"`
	// Score is the negated bm25 rank: higher is better, unbounded.
	// Callers normalize against the top hit before mixing with other legs.
	Score float64 `json:"score"`
}

// KeywordIndex provides full-text search over ingested chunk text via the
// chunk_fts FTS5 table.
type KeywordIndex struct {
	db *DB
}

// NewKeywordIndex creates a KeywordIndex over the given catalog.
func NewKeywordIndex(db *DB) *KeywordIndex {
	return &KeywordIndex{db: db}
}

// IndexChunk adds one chunk's text to the keyword index.
func (k *KeywordIndex) IndexChunk(ctx context.Context, chunkID types.ID, source, section, content string) error {
	_, err := k.db.conn.ExecContext(ctx,
		"INSERT INTO chunk_fts (content, section, chunk_id, source) VALUES (?, ?, ?, ?)",
		content, section, chunkID.String(), source)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to index chunk", err)
	}
	return nil
}

// IndexChunksTx indexes a batch of chunks inside a single transaction.
func (k *KeywordIndex) IndexChunksTx(ctx context.Context, entries []KeywordEntry) error {
	return k.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO chunk_fts (content, section, chunk_id, source) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.Content, e.Section, e.ChunkID.String(), e.Source); err != nil {
				return err
			}
		}
		return nil
	})
}

// KeywordEntry is one chunk to index.
type KeywordEntry struct {
	ChunkID types.ID
	Source  string
	Section string
	Content string
}

// DeleteSource removes all indexed chunks for a source. Used on re-ingest.
func (k *KeywordIndex) DeleteSource(ctx context.Context, source string) error {
	_, err := k.db.conn.ExecContext(ctx, "DELETE FROM chunk_fts WHERE source = ?", source)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to remove source from keyword index", err)
	}
	return nil
}

// Search runs an FTS5 MATCH query and returns the best limit hits.
// The query string is passed through FTS5 query syntax; callers should
// sanitize user input with EscapeQuery.
func (k *KeywordIndex) Search(ctx context.Context, query string, limit int) ([]KeywordHit, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
	SELECT chunk_id, source, section,
	       snippet(chunk_fts, 0, '', '', '...', 16),
	       -bm25(chunk_fts)
	FROM chunk_fts
	WHERE chunk_fts MATCH ?
	ORDER BY rank
	LIMIT ?`

	rows, err := k.db.conn.QueryContext(ctx, sqlQuery, query, limit)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "keyword search failed", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var hit KeywordHit
		var chunkID string
		if err := rows.Scan(&chunkID, &hit.Source, &hit.Section, &hit.Snippet, &hit.Score); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan keyword hit", err)
		}
		hit.ChunkID = types.ID(chunkID)
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating keyword hits", err)
	}

	return hits, nil
}

// EscapeQuery turns arbitrary user text into a safe FTS5 query by quoting
// each token. Without this, characters like '-' or ':' are interpreted as
// FTS5 operators and break the query.
func EscapeQuery(text string) string {
	var tokens []string
	var current []rune
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 127 || r == '.' {
			current = append(current, r)
		} else if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = nil
		}
	}
	if len(current) > 0 {
		tokens = append(tokens, string(current))
	}

	escaped := ""
	for i, tok := range tokens {
		if i > 0 {
			escaped += " OR "
		}
		escaped += `"` + tok + `"`
	}
	return escaped
}
