package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/internal/types"
)

func newTestStore(t *testing.T, dims int) *SqliteStore {
	t.Helper()
	store, err := NewSqliteStore(SqliteConfig{
		Path: filepath.Join(t.TempDir(), "vectors.db"),
		Dims: dims,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSqliteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 3)

	record := *NewRecord("chunk-1", "Network segmentation for Kubernetes clusters.",
		[]float64{0.1, 0.2, 0.3},
		map[string]any{"source": "bsi-grundschutz.pdf", "section": "APP.4.4.A19"})

	require.NoError(t, store.Store(ctx, record))

	got, err := store.Get(ctx, "chunk-1")
	require.NoError(t, err)
	assert.Equal(t, record.Content, got.Content)
	assert.Equal(t, record.Embedding, got.Embedding)
	assert.Equal(t, "APP.4.4.A19", got.Metadata["section"])

	t.Run("replace on same id", func(t *testing.T) {
		record.Content = "updated"
		require.NoError(t, store.Store(ctx, record))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		got, err := store.Get(ctx, "chunk-1")
		require.NoError(t, err)
		assert.Equal(t, "updated", got.Content)
	})

	t.Run("get missing record", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.Error(t, err)
	})
}

func TestSqliteStoreDimensionCheck(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 3)

	t.Run("store rejects wrong dims", func(t *testing.T) {
		err := store.Store(ctx, *NewRecord("bad", "text", []float64{0.1, 0.2}, nil))
		require.Error(t, err)
		assert.Equal(t, types.EMBEDDING_DIM_INVALID, types.CodeOf(err))
	})

	t.Run("batch rejects wrong dims before writing", func(t *testing.T) {
		err := store.StoreBatch(ctx, []Record{
			*NewRecord("ok", "text", []float64{0.1, 0.2, 0.3}, nil),
			*NewRecord("bad", "text", []float64{0.1}, nil),
		})
		require.Error(t, err)
		assert.Equal(t, types.EMBEDDING_DIM_INVALID, types.CodeOf(err))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("search rejects wrong dims", func(t *testing.T) {
		_, err := store.Search(ctx, *NewQuery([]float64{0.1}, 5))
		require.Error(t, err)
		assert.Equal(t, types.EMBEDDING_DIM_INVALID, types.CodeOf(err))
	})
}

func TestSqliteStoreSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 3)

	require.NoError(t, store.StoreBatch(ctx, []Record{
		*NewRecord("a", "exact match", []float64{1, 0, 0},
			map[string]any{"source": "iso.pdf", "framework": "iso_27001"}),
		*NewRecord("b", "orthogonal", []float64{0, 1, 0},
			map[string]any{"source": "iso.pdf", "framework": "iso_27001"}),
		*NewRecord("c", "close match", []float64{0.9, 0.1, 0},
			map[string]any{"source": "nist.pdf", "framework": "nist_csf"}),
	}))

	t.Run("ordered by similarity", func(t *testing.T) {
		results, err := store.Search(ctx, *NewQuery([]float64{1, 0, 0}, 10))
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "a", results[0].Record.ID)
		assert.Equal(t, "c", results[1].Record.ID)
		assert.InDelta(t, 1.0, results[0].Score, 0.001)
	})

	t.Run("top_k truncates", func(t *testing.T) {
		results, err := store.Search(ctx, *NewQuery([]float64{1, 0, 0}, 1))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].Record.ID)
	})

	t.Run("min_score filters", func(t *testing.T) {
		q := NewQuery([]float64{1, 0, 0}, 10).WithMinScore(0.5)
		results, err := store.Search(ctx, *q)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("metadata filter", func(t *testing.T) {
		q := NewQuery([]float64{1, 0, 0}, 10).WithFilters(map[string]any{"framework": "nist_csf"})
		results, err := store.Search(ctx, *q)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "c", results[0].Record.ID)
	})

	t.Run("filter on missing key matches nothing", func(t *testing.T) {
		q := NewQuery([]float64{1, 0, 0}, 10).WithFilters(map[string]any{"owner": "x"})
		results, err := store.Search(ctx, *q)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSqliteStoreDeleteBySource(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 2)

	require.NoError(t, store.StoreBatch(ctx, []Record{
		*NewRecord("a", "one", []float64{1, 0}, map[string]any{"source": "old.pdf"}),
		*NewRecord("b", "two", []float64{0, 1}, map[string]any{"source": "old.pdf"}),
		*NewRecord("c", "three", []float64{1, 1}, map[string]any{"source": "new.pdf"}),
	}))

	require.NoError(t, store.DeleteBySource(ctx, "old.pdf"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = store.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestSqliteStoreClosed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 2)
	require.NoError(t, store.Close())

	assert.Error(t, store.Store(ctx, *NewRecord("a", "x", []float64{1, 0}, nil)))
	_, err := store.Search(ctx, *NewQuery([]float64{1, 0}, 1))
	assert.Error(t, err)
	assert.True(t, store.Health(ctx).IsUnhealthy())

	// Close is idempotent.
	assert.NoError(t, store.Close())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 0.001)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 0.001)
	// Opposed vectors clamp to zero rather than going negative.
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{-1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1}, []float64{1, 2}))
}

func TestEmbeddingSerialization(t *testing.T) {
	original := []float64{0.123, -4.56, 0, 1e-9, 42}

	got, err := deserializeEmbedding(serializeEmbedding(original))
	require.NoError(t, err)
	assert.Equal(t, original, got)

	_, err = deserializeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}
