package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/internal/auth"
	"github.com/normgraph/normgraph/internal/chunker"
	"github.com/normgraph/normgraph/internal/config"
	"github.com/normgraph/normgraph/internal/database"
	"github.com/normgraph/normgraph/internal/document"
	"github.com/normgraph/normgraph/internal/embedder"
	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/knowledge"
	"github.com/normgraph/normgraph/internal/llm/providers"
	"github.com/normgraph/normgraph/internal/retrieval"
	"github.com/normgraph/normgraph/internal/vector"
)

type serverFixture struct {
	server  *Server
	vectors *vector.MockStore
	tokens  *auth.Handler
}

func setupServer(t *testing.T, authEnabled bool) *serverFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db).Migrate(ctx))

	vectors := vector.NewMockStore()
	graphStore := graph.NewMockStore()
	emb := embedder.NewMockEmbedder(4)

	classifier, err := document.NewClassifier(nil, "", nil)
	require.NoError(t, err)

	orchestrator := retrieval.NewOrchestrator(
		retrieval.NewAnalyzer(nil, "", nil),
		retrieval.NewHybridRetriever(emb, vectors, graphStore, database.NewKeywordIndex(db), nil),
		retrieval.NewSynthesizer(providers.NewMockProvider([]string{"Answer citing [1]."}), "mock-model", nil),
		config.RetrievalConfig{TopK: 5, VectorWeight: 1, GraphDepth: 1, CacheSize: 10, CacheTTL: time.Minute},
		nil,
	)

	ingester := knowledge.NewIngester(classifier, chunker.NewProcessor(), nil,
		emb, vectors, graphStore, db, nil)
	manager := knowledge.NewManager(vectors, graphStore, db, nil)

	tokens, err := auth.NewHandler([]byte("test-secret-test-secret-test-sec"), time.Hour)
	require.NoError(t, err)

	srv := New(
		config.ServerConfig{Address: ":0"},
		config.AuthConfig{Enabled: authEnabled},
		Deps{Orchestrator: orchestrator, Ingester: ingester, Manager: manager, Tokens: tokens},
		nil,
	)
	return &serverFixture{server: srv, vectors: vectors, tokens: tokens}
}

func (f *serverFixture) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) mint(t *testing.T, roles ...auth.Role) string {
	t.Helper()
	token, err := f.tokens.Issue("tester", roles)
	require.NoError(t, err)
	return token
}

func TestHealthEndpoint(t *testing.T) {
	f := setupServer(t, true)

	rec := f.request(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthEnforcement(t *testing.T) {
	f := setupServer(t, true)

	t.Run("missing token is unauthorized", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/query", "", queryRequest{Query: "q"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is unauthorized", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/query", "nope", queryRequest{Query: "q"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("viewer cannot ingest", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/ingest", f.mint(t, auth.RoleViewer),
			ingestRequest{Path: "/tmp/x.md"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("viewer can query", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/query", f.mint(t, auth.RoleViewer),
			queryRequest{Query: "anything"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestQueryEndpoint(t *testing.T) {
	f := setupServer(t, false)
	f.vectors.SetSearchResults([]vector.Result{{
		Record: *vector.NewRecord("chunk-1", "segmentation text", []float64{0.1},
			map[string]any{"source": "bsi.md"}),
		Score: 0.9,
	}})

	rec := f.request(t, http.MethodPost, "/api/v1/query", "", queryRequest{Query: "segmentation?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp retrieval.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Answer citing [1].", resp.Answer)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "bsi.md", resp.Citations[0].Source)

	t.Run("empty query is a bad request", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/query", "", queryRequest{Query: "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid body is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte("{")))
		w := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIngestAndSourcesEndpoints(t *testing.T) {
	f := setupServer(t, false)

	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path,
		[]byte("# Doc\n\nAPP.4.4.A19 requires network segmentation."), 0o644))

	rec := f.request(t, http.MethodPost, "/api/v1/ingest", "", ingestRequest{Path: path})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result knowledge.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "doc.md", result.Source)
	assert.Positive(t, result.Chunks)

	t.Run("sources lists the ingest", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/v1/sources", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "doc.md")
	})

	t.Run("stats reflects the ingest", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/v1/stats", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var stats knowledge.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, 1, stats.Sources)
	})

	t.Run("delete removes the source", func(t *testing.T) {
		rec := f.request(t, http.MethodDelete, "/api/v1/sources/doc.md", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = f.request(t, http.MethodDelete, "/api/v1/sources/doc.md", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing path is a bad request", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/ingest", "", ingestRequest{})
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})
}
