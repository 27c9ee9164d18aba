package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/internal/types"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, NewMigrator(db).Migrate(context.Background()))
	return db
}

func TestOpenEnablesWAL(t *testing.T) {
	db := setupTestDB(t)

	var mode string
	require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestHealth(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Health(context.Background()))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO sources (id, source, source_type, source_hash) VALUES (?, ?, ?, ?)",
			types.NewID().String(), "doc.pdf", "file", "abc")
		require.NoError(t, err)
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	dao := NewSourceDAO(db)
	rec, err := dao.Get(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	m := NewMigrator(db)
	require.NoError(t, m.Migrate(ctx))

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestSourceDAO(t *testing.T) {
	db := setupTestDB(t)
	dao := NewSourceDAO(db)
	ctx := context.Background()

	rec := &SourceRecord{
		ID:           types.NewID(),
		Source:       "bsi_grundschutz.pdf",
		SourceType:   "file",
		SourceHash:   "deadbeef",
		DocumentType: "bsi_grundschutz",
		ChunkCount:   42,
		ControlCount: 7,
		Metadata:     map[string]string{"pages": "120"},
	}

	t.Run("upsert and get", func(t *testing.T) {
		require.NoError(t, dao.Upsert(ctx, rec))

		got, err := dao.Get(ctx, "bsi_grundschutz.pdf")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rec.SourceHash, got.SourceHash)
		assert.Equal(t, 42, got.ChunkCount)
		assert.Equal(t, "120", got.Metadata["pages"])
		assert.False(t, got.IngestedAt.IsZero())
	})

	t.Run("upsert replaces on same source", func(t *testing.T) {
		updated := *rec
		updated.SourceHash = "cafebabe"
		updated.ChunkCount = 50
		require.NoError(t, dao.Upsert(ctx, &updated))

		got, err := dao.Get(ctx, "bsi_grundschutz.pdf")
		require.NoError(t, err)
		assert.Equal(t, "cafebabe", got.SourceHash)
		assert.Equal(t, 50, got.ChunkCount)

		count, err := dao.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("get unknown source returns nil", func(t *testing.T) {
		got, err := dao.Get(ctx, "nope.pdf")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, dao.Upsert(ctx, &SourceRecord{
			ID:         types.NewID(),
			Source:     "iso27001.pdf",
			SourceType: "file",
			SourceHash: "1234",
		}))

		records, err := dao.List(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("delete", func(t *testing.T) {
		n, err := dao.Delete(ctx, "iso27001.pdf")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = dao.Delete(ctx, "iso27001.pdf")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestKeywordIndex(t *testing.T) {
	db := setupTestDB(t)
	idx := NewKeywordIndex(db)
	ctx := context.Background()

	entries := []KeywordEntry{
		{ChunkID: types.NewID(), Source: "bsi.pdf", Section: "APP.4.4.A19", Content: "Network segmentation of Kubernetes clusters limits lateral movement."},
		{ChunkID: types.NewID(), Source: "bsi.pdf", Section: "APP.4.4.A1", Content: "Planning the separation of applications."},
		{ChunkID: types.NewID(), Source: "iso.pdf", Section: "A.5.1", Content: "Policies for information security shall be defined."},
	}
	require.NoError(t, idx.IndexChunksTx(ctx, entries))

	t.Run("search ranks matches", func(t *testing.T) {
		hits, err := idx.Search(ctx, EscapeQuery("network segmentation kubernetes"), 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, entries[0].ChunkID, hits[0].ChunkID)
		assert.Greater(t, hits[0].Score, 0.0)
	})

	t.Run("empty query returns nothing", func(t *testing.T) {
		hits, err := idx.Search(ctx, "", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("delete source removes its chunks", func(t *testing.T) {
		require.NoError(t, idx.DeleteSource(ctx, "bsi.pdf"))
		hits, err := idx.Search(ctx, EscapeQuery("kubernetes"), 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `"APP.4.4.A19"`, EscapeQuery("APP.4.4.A19"))
	assert.Equal(t, `"what" OR "is" OR "mfa"`, EscapeQuery("what is mfa?"))
	assert.Equal(t, "", EscapeQuery("!!!"))
}
