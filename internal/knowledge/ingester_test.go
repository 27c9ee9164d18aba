package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/internal/chunker"
	"github.com/normgraph/normgraph/internal/database"
	"github.com/normgraph/normgraph/internal/document"
	"github.com/normgraph/normgraph/internal/embedder"
	"github.com/normgraph/normgraph/internal/extract"
	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/llm/providers"
	"github.com/normgraph/normgraph/internal/vector"
)

const testDocText = `# Kubernetes Baseline

Introductory prose without any identifiers.

APP.4.4.A19 Einsatz von Netzsegmentierung
Clusters MUST separate control plane and workload networks. This
requirement maps to A.13.1 in the ISO catalog.`

const extractResponse = `[
	{"id": "APP.4.4.A19", "title": "Netzsegmentierung",
	 "description": "Separate cluster networks.", "level": "Standard", "domain": "network"},
	{"id": "A.13.1", "title": "Network security management", "domain": "network"}
]`

const discoverResponse = `[
	{"from_id": "APP.4.4.A19", "to_id": "A.13.1", "type": "MAPS_TO", "confidence": 0.9}
]`

type ingesterFixture struct {
	ingester *Ingester
	vectors  *vector.MockStore
	graph    *graph.MockStore
	provider *providers.MockProvider
	db       *database.DB
	path     string
}

func setupIngester(t *testing.T, responses []string) *ingesterFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db).Migrate(ctx))

	classifier, err := document.NewClassifier(nil, "", nil)
	require.NoError(t, err)

	provider := providers.NewMockProvider(responses)
	vectors := vector.NewMockStore()
	graphStore := graph.NewMockStore()

	path := filepath.Join(t.TempDir(), "baseline.md")
	require.NoError(t, os.WriteFile(path, []byte(testDocText), 0o644))

	return &ingesterFixture{
		ingester: NewIngester(
			classifier,
			chunker.NewProcessor(),
			extract.NewExtractor(provider, "mock-model", nil),
			embedder.NewMockEmbedder(384),
			vectors,
			graphStore,
			db,
			nil,
		),
		vectors:  vectors,
		graph:    graphStore,
		provider: provider,
		db:       db,
		path:     path,
	}
}

func TestIngestFullPipeline(t *testing.T) {
	ctx := context.Background()
	f := setupIngester(t, []string{extractResponse, discoverResponse})

	result, err := f.ingester.Ingest(ctx, f.path, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, "baseline.md", result.Source)
	assert.False(t, result.Skipped)
	assert.False(t, result.GraphDegraded)
	assert.Equal(t, 2, result.Chunks)
	assert.Equal(t, 2, result.Controls)
	assert.Equal(t, 1, result.Relationships)

	t.Run("vector records carry chunk metadata", func(t *testing.T) {
		records := f.vectors.Records()
		require.Len(t, records, 2)
		for _, rec := range records {
			assert.Equal(t, "baseline.md", rec.Metadata["source"])
			assert.Len(t, rec.Embedding, 384)
		}
	})

	t.Run("keyword index covers the chunks", func(t *testing.T) {
		hits, err := database.NewKeywordIndex(f.db).Search(ctx,
			database.EscapeQuery("Netzsegmentierung"), 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "baseline.md", hits[0].Source)
	})

	t.Run("controls land in the graph", func(t *testing.T) {
		control, err := f.graph.GetControl(ctx, "APP.4.4.A19")
		require.NoError(t, err)
		assert.Equal(t, "Netzsegmentierung", control.Title)

		require.Len(t, f.graph.Relationships(), 1)
		assert.Equal(t, graph.RelationMapsTo, f.graph.Relationships()[0].Type)
	})

	t.Run("catalog record written", func(t *testing.T) {
		rec, err := database.NewSourceDAO(f.db).Get(ctx, "baseline.md")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, 2, rec.ChunkCount)
		assert.Equal(t, 2, rec.ControlCount)
		assert.Equal(t, "Kubernetes Baseline", rec.Metadata["title"])
	})
}

func TestIngestSkipsUnchangedSource(t *testing.T) {
	ctx := context.Background()
	f := setupIngester(t, []string{extractResponse, discoverResponse})

	_, err := f.ingester.Ingest(ctx, f.path, IngestOptions{})
	require.NoError(t, err)
	callsAfterFirst := len(f.provider.Calls())

	result, err := f.ingester.Ingest(ctx, f.path, IngestOptions{})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, result.Chunks)
	// No LLM traffic for a skipped source.
	assert.Len(t, f.provider.Calls(), callsAfterFirst)
}

func TestIngestForceReplaces(t *testing.T) {
	ctx := context.Background()
	f := setupIngester(t, []string{
		extractResponse, discoverResponse,
		extractResponse, discoverResponse,
	})

	_, err := f.ingester.Ingest(ctx, f.path, IngestOptions{})
	require.NoError(t, err)

	result, err := f.ingester.Ingest(ctx, f.path, IngestOptions{Force: true})
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 2, result.Chunks)

	// Deterministic chunk IDs overwrite instead of duplicating.
	count, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	hits, err := database.NewKeywordIndex(f.db).Search(ctx,
		database.EscapeQuery("Netzsegmentierung"), 10)
	require.NoError(t, err)
	sources := map[string]int{}
	for _, h := range hits {
		sources[h.ChunkID.String()]++
	}
	for id, n := range sources {
		assert.Equal(t, 1, n, "chunk %s indexed more than once", id)
	}
}

func TestIngestGraphFailureDegrades(t *testing.T) {
	ctx := context.Background()
	f := setupIngester(t, []string{extractResponse, discoverResponse})
	f.graph.FailWith(errors.New("neo4j down"))

	result, err := f.ingester.Ingest(ctx, f.path, IngestOptions{})
	require.NoError(t, err)
	assert.True(t, result.GraphDegraded)

	// Vector search and the catalog still cover the source.
	count, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	rec, err := database.NewSourceDAO(f.db).Get(ctx, "baseline.md")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestIngestExtractionFailureDegrades(t *testing.T) {
	ctx := context.Background()
	f := setupIngester(t, nil)
	f.provider.FailWith(errors.New("provider unavailable"))

	result, err := f.ingester.Ingest(ctx, f.path, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Chunks)
	assert.Zero(t, result.Controls)
	assert.Zero(t, result.Relationships)
}

func TestIngestSkipExtraction(t *testing.T) {
	ctx := context.Background()
	f := setupIngester(t, nil)

	result, err := f.ingester.Ingest(ctx, f.path, IngestOptions{SkipExtraction: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Chunks)
	assert.Zero(t, result.Controls)
	assert.Empty(t, f.provider.Calls())
}

func TestIngestVectorFailureFails(t *testing.T) {
	ctx := context.Background()
	f := setupIngester(t, nil)
	f.vectors.SetStoreError(errors.New("disk full"))

	_, err := f.ingester.Ingest(ctx, f.path, IngestOptions{SkipExtraction: true})
	require.Error(t, err)

	// Catalog record is written last, so the failed source stays
	// absent and a retry redoes it from scratch.
	rec, err := database.NewSourceDAO(f.db).Get(ctx, "baseline.md")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestChunkIDDeterminism(t *testing.T) {
	a := ChunkID("doc.md", 3, "same text")
	b := ChunkID("doc.md", 3, "same text")
	c := ChunkID("doc.md", 4, "same text")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
