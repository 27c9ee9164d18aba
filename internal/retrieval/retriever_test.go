package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/internal/database"
	"github.com/normgraph/normgraph/internal/embedder"
	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/types"
	"github.com/normgraph/normgraph/internal/vector"
)

func setupKeywordIndex(t *testing.T) (*database.DB, *database.KeywordIndex) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db).Migrate(ctx))
	return db, database.NewKeywordIndex(db)
}

func chunkHit(id, content, source string, score float64, controlIDs ...string) vector.Result {
	metadata := map[string]any{"source": source}
	if len(controlIDs) > 0 {
		ids := make([]any, len(controlIDs))
		for i, cid := range controlIDs {
			ids[i] = cid
		}
		metadata["control_ids"] = ids
	}
	return vector.Result{
		Record: *vector.NewRecord(id, content, []float64{0.1}, metadata),
		Score:  score,
	}
}

func TestHybridRetrieve(t *testing.T) {
	ctx := context.Background()

	vectors := vector.NewMockStore()
	vectors.SetSearchResults([]vector.Result{
		chunkHit("chunk-1", "APP.4.4.A19 requires segmentation", "bsi.md", 0.9, "APP.4.4.A19"),
		chunkHit("chunk-2", "general prose", "bsi.md", 0.5),
	})

	graphStore := graph.NewMockStore()
	require.NoError(t, graphStore.UpsertControls(ctx, []graph.Control{
		{ID: "APP.4.4.A19", Title: "Netzsegmentierung", Description: "Separate networks.", Framework: "bsi_grundschutz", Source: "bsi.md"},
		{ID: "A.13.1", Title: "Network security management", Description: "Manage networks.", Framework: "iso_27001", Source: "iso.md"},
	}))
	require.NoError(t, graphStore.CreateRelationship(ctx, graph.Relationship{
		FromID: "APP.4.4.A19", ToID: "A.13.1", Type: graph.RelationMapsTo, Confidence: 0.9,
	}))

	_, keywords := setupKeywordIndex(t)
	require.NoError(t, keywords.IndexChunk(ctx, "chunk-1", "bsi.md", "", "APP.4.4.A19 requires segmentation"))

	r := NewHybridRetriever(embedder.NewMockEmbedder(4), vectors, graphStore, keywords, nil)

	plan := Plan{
		TopK:       10,
		Weights:    Weights{Vector: 0.5, Graph: 0.3, Keyword: 0.2},
		GraphDepth: 2,
	}
	results, err := r.Retrieve(ctx, "segmentation", plan)
	require.NoError(t, err)

	byKey := map[string]Result{}
	for _, res := range results {
		byKey[string(res.Kind)+"/"+res.ID] = res
	}

	t.Run("all three legs contribute", func(t *testing.T) {
		top := byKey["chunk/chunk-1"]
		assert.InDelta(t, 0.9, top.VectorScore, 0.001)
		assert.InDelta(t, 1.0, top.KeywordScore, 0.001)

		seed := byKey["control/APP.4.4.A19"]
		assert.InDelta(t, 1.0, seed.GraphScore, 0.001)

		related := byKey["control/A.13.1"]
		assert.InDelta(t, 0.5, related.GraphScore, 0.001)
		assert.Equal(t, 1, related.Distance)
	})

	t.Run("weighted scores rank the seed chunk first", func(t *testing.T) {
		require.NotEmpty(t, results)
		assert.Equal(t, "chunk-1", results[0].ID)
		// 0.5*0.9 + 0.2*1.0 for the chunk vs 0.3*1.0 for the control.
		assert.InDelta(t, 0.65, results[0].Score, 0.001)
	})

	t.Run("min score filters", func(t *testing.T) {
		filtered := plan
		filtered.MinScore = 0.5
		results, err := r.Retrieve(ctx, "segmentation", filtered)
		require.NoError(t, err)
		for _, res := range results {
			assert.GreaterOrEqual(t, res.Score, 0.5)
		}
	})

	t.Run("top-k cut", func(t *testing.T) {
		cut := plan
		cut.TopK = 1
		results, err := r.Retrieve(ctx, "segmentation", cut)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestHybridRetrieveGraphDegrades(t *testing.T) {
	ctx := context.Background()

	vectors := vector.NewMockStore()
	vectors.SetSearchResults([]vector.Result{
		chunkHit("chunk-1", "text", "a.md", 0.8, "APP.4.4.A19"),
	})
	graphStore := graph.NewMockStore()
	graphStore.FailWith(errors.New("neo4j down"))
	_, keywords := setupKeywordIndex(t)

	r := NewHybridRetriever(embedder.NewMockEmbedder(4), vectors, graphStore, keywords, nil)

	results, err := r.Retrieve(ctx, "query", Plan{
		TopK:       5,
		Weights:    Weights{Vector: 1},
		GraphDepth: 2,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk-1", results[0].ID)
}

func TestHybridRetrieveVectorFailureFails(t *testing.T) {
	ctx := context.Background()

	vectors := vector.NewMockStore()
	vectors.SetSearchError(errors.New("disk error"))
	_, keywords := setupKeywordIndex(t)

	r := NewHybridRetriever(embedder.NewMockEmbedder(4), vectors, graph.NewMockStore(), keywords, nil)

	_, err := r.Retrieve(ctx, "query", Plan{TopK: 5})
	require.Error(t, err)
	assert.Equal(t, types.RETRIEVAL_FAILED, types.CodeOf(err))
}

func TestHybridRetrieveSeedControls(t *testing.T) {
	ctx := context.Background()

	vectors := vector.NewMockStore()
	graphStore := graph.NewMockStore()
	require.NoError(t, graphStore.UpsertControl(ctx, graph.Control{
		ID: "PR.AC-5", Title: "Network integrity", Framework: "nist_csf",
	}))
	_, keywords := setupKeywordIndex(t)

	r := NewHybridRetriever(embedder.NewMockEmbedder(4), vectors, graphStore, keywords, nil)

	// No vector hits; the explicit seed still reaches the graph.
	results, err := r.Retrieve(ctx, "PR.AC-5", Plan{
		TopK:           5,
		Weights:        Weights{Graph: 1},
		GraphDepth:     1,
		SeedControlIDs: []string{"PR.AC-5"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "PR.AC-5", results[0].ID)
	assert.Equal(t, KindControl, results[0].Kind)
}
