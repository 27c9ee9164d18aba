package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/normgraph/normgraph/internal/types"
)

// SourceRecord tracks one ingested source in the catalog.
type SourceRecord struct {
	ID           types.ID          `json:"id"`
	Source       string            `json:"source"`
	SourceType   string            `json:"source_type"`
	SourceHash   string            `json:"source_hash"`
	DocumentType string            `json:"document_type"`
	ChunkCount   int               `json:"chunk_count"`
	ControlCount int               `json:"control_count"`
	IngestedAt   time.Time         `json:"ingested_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// SourceDAO provides access to the sources table.
type SourceDAO struct {
	db *DB
}

// NewSourceDAO creates a SourceDAO over the given catalog.
func NewSourceDAO(db *DB) *SourceDAO {
	return &SourceDAO{db: db}
}

// Upsert inserts or replaces the record for a source. The source column is
// unique, so re-ingesting a source overwrites its previous record.
func (d *SourceDAO) Upsert(ctx context.Context, rec *SourceRecord) error {
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal source metadata", err)
	}

	query := `
	INSERT INTO sources (id, source, source_type, source_hash, document_type, chunk_count, control_count, ingested_at, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, ?)
	ON CONFLICT(source) DO UPDATE SET
		source_type = excluded.source_type,
		source_hash = excluded.source_hash,
		document_type = excluded.document_type,
		chunk_count = excluded.chunk_count,
		control_count = excluded.control_count,
		ingested_at = CURRENT_TIMESTAMP,
		metadata = excluded.metadata`

	_, err = d.db.conn.ExecContext(ctx, query,
		rec.ID.String(), rec.Source, rec.SourceType, rec.SourceHash,
		rec.DocumentType, rec.ChunkCount, rec.ControlCount, string(metadataJSON))
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to upsert source", err)
	}

	return nil
}

// Get returns the record for a source, or nil if the source is unknown.
func (d *SourceDAO) Get(ctx context.Context, source string) (*SourceRecord, error) {
	query := `
	SELECT id, source, source_type, source_hash, document_type, chunk_count, control_count, ingested_at, metadata
	FROM sources WHERE source = ?`

	rec, err := scanSource(d.db.conn.QueryRowContext(ctx, query, source))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to get source", err)
	}
	return rec, nil
}

// List returns all tracked sources ordered by ingestion time, newest first.
func (d *SourceDAO) List(ctx context.Context) ([]*SourceRecord, error) {
	query := `
	SELECT id, source, source_type, source_hash, document_type, chunk_count, control_count, ingested_at, metadata
	FROM sources ORDER BY ingested_at DESC`

	rows, err := d.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list sources", err)
	}
	defer rows.Close()

	var records []*SourceRecord
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan source", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "error iterating sources", err)
	}

	return records, nil
}

// Delete removes a source record. Returns the number of rows removed.
func (d *SourceDAO) Delete(ctx context.Context, source string) (int64, error) {
	result, err := d.db.conn.ExecContext(ctx, "DELETE FROM sources WHERE source = ?", source)
	if err != nil {
		return 0, types.WrapError(types.DB_QUERY_FAILED, "failed to delete source", err)
	}
	return result.RowsAffected()
}

// Count returns the number of tracked sources.
func (d *SourceDAO) Count(ctx context.Context) (int, error) {
	var count int
	err := d.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources").Scan(&count)
	if err != nil {
		return 0, types.WrapError(types.DB_QUERY_FAILED, "failed to count sources", err)
	}
	return count, nil
}

// scanner abstracts sql.Row and sql.Rows for scanSource.
type scanner interface {
	Scan(dest ...any) error
}

func scanSource(s scanner) (*SourceRecord, error) {
	var rec SourceRecord
	var id, metadataJSON string

	err := s.Scan(&id, &rec.Source, &rec.SourceType, &rec.SourceHash,
		&rec.DocumentType, &rec.ChunkCount, &rec.ControlCount, &rec.IngestedAt, &metadataJSON)
	if err != nil {
		return nil, err
	}

	rec.ID = types.ID(id)
	if metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source metadata: %w", err)
		}
	}

	return &rec, nil
}
