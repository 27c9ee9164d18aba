package retrieval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/internal/config"
	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/llm/providers"
	"github.com/normgraph/normgraph/internal/types"
)

type stubRetriever struct {
	results []Result
	err     error
	plans   []Plan
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, plan Plan) ([]Result, error) {
	s.plans = append(s.plans, plan)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type stubAnalyzer struct {
	analysis Analysis
}

func (s *stubAnalyzer) Analyze(ctx context.Context, query string) Analysis {
	return s.analysis
}

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		TopK:          5,
		VectorWeight:  0.5,
		GraphWeight:   0.3,
		KeywordWeight: 0.2,
		GraphDepth:    2,
		CacheTTL:      time.Minute,
		CacheSize:     100,
	}
}

func setupOrchestrator(t *testing.T, retriever Retriever, answers []string) *Orchestrator {
	t.Helper()
	return NewOrchestrator(
		&stubAnalyzer{analysis: Analysis{Intent: IntentGeneral, Method: "rule"}},
		retriever,
		NewSynthesizer(providers.NewMockProvider(answers), "mock-model", nil),
		testRetrievalConfig(),
		nil,
	)
}

func TestOrchestratorQuery(t *testing.T) {
	ctx := context.Background()
	retriever := &stubRetriever{results: sampleResults()}
	o := setupOrchestrator(t, retriever, []string{"Answer citing [1]."})

	resp, err := o.Query(ctx, "  What requires segmentation?  ", QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, "What requires segmentation?", resp.Query)
	assert.Equal(t, "Answer citing [1].", resp.Answer)
	assert.False(t, resp.Cached)
	assert.Len(t, resp.Citations, 1)
	require.Len(t, retriever.plans, 1)
	assert.Equal(t, 5, retriever.plans[0].TopK)

	t.Run("second call is served from cache", func(t *testing.T) {
		cached, err := o.Query(ctx, "what  requires SEGMENTATION?", QueryOptions{})
		require.NoError(t, err)
		assert.True(t, cached.Cached)
		assert.Equal(t, resp.Answer, cached.Answer)
		// Retriever was not called again: normalization maps both
		// spellings to the same key.
		assert.Len(t, retriever.plans, 1)
	})

	t.Run("skip cache forces a fresh run", func(t *testing.T) {
		_, err := o.Query(ctx, "what requires segmentation?", QueryOptions{SkipCache: true})
		require.NoError(t, err)
		assert.Len(t, retriever.plans, 2)
	})

	t.Run("different top-k misses the cache", func(t *testing.T) {
		_, err := o.Query(ctx, "what requires segmentation?", QueryOptions{TopK: 3})
		require.NoError(t, err)
		require.Len(t, retriever.plans, 3)
		assert.Equal(t, 3, retriever.plans[2].TopK)
	})
}

func TestOrchestratorEmptyQuery(t *testing.T) {
	o := setupOrchestrator(t, &stubRetriever{}, nil)

	_, err := o.Query(context.Background(), "   ", QueryOptions{})
	require.Error(t, err)
	assert.Equal(t, types.QUERY_INVALID, types.CodeOf(err))
}

func TestOrchestratorRetrievalErrorPropagates(t *testing.T) {
	o := setupOrchestrator(t, &stubRetriever{
		err: types.NewError(types.RETRIEVAL_FAILED, "boom"),
	}, nil)

	_, err := o.Query(context.Background(), "query", QueryOptions{})
	require.Error(t, err)
	assert.Equal(t, types.RETRIEVAL_FAILED, types.CodeOf(err))
}

func TestPlanFor(t *testing.T) {
	o := setupOrchestrator(t, &stubRetriever{}, nil)

	t.Run("control lookup leans on graph and keywords", func(t *testing.T) {
		plan := o.planFor(Analysis{Intent: IntentControlLookup, ControlIDs: []string{"A.5.1"}}, 5)
		assert.Equal(t, Weights{Vector: 0.3, Graph: 0.4, Keyword: 0.3}, plan.Weights)
		assert.Equal(t, []string{"A.5.1"}, plan.SeedControlIDs)
	})

	t.Run("mapping follows cross-framework edges deeper", func(t *testing.T) {
		plan := o.planFor(Analysis{Intent: IntentMapping}, 5)
		assert.Equal(t, 3, plan.GraphDepth)
		assert.Contains(t, plan.RelTypes, graph.RelationMapsTo)
		assert.Contains(t, plan.RelTypes, graph.RelationImplements)
	})

	t.Run("gap analysis widens depth", func(t *testing.T) {
		plan := o.planFor(Analysis{Intent: IntentGapAnalysis}, 5)
		assert.Equal(t, 3, plan.GraphDepth)
	})

	t.Run("general uses configured defaults", func(t *testing.T) {
		plan := o.planFor(Analysis{Intent: IntentGeneral}, 5)
		assert.Equal(t, Weights{Vector: 0.5, Graph: 0.3, Keyword: 0.2}, plan.Weights)
		assert.Equal(t, 2, plan.GraphDepth)
	})

	t.Run("depth is capped", func(t *testing.T) {
		cfg := testRetrievalConfig()
		cfg.GraphDepth = 5
		deep := NewOrchestrator(&stubAnalyzer{}, &stubRetriever{},
			NewSynthesizer(providers.NewMockProvider(nil), "m", nil), cfg, nil)
		plan := deep.planFor(Analysis{Intent: IntentMapping}, 5)
		assert.Equal(t, 5, plan.GraphDepth)
	})
}

func TestResponseCache(t *testing.T) {
	t.Run("expired entries are not served", func(t *testing.T) {
		c := newResponseCache(10, time.Millisecond)
		c.put("k", Response{Answer: "a"})
		time.Sleep(5 * time.Millisecond)
		assert.Nil(t, c.get("k"))
	})

	t.Run("eviction keeps the bound", func(t *testing.T) {
		c := newResponseCache(2, time.Minute)
		for i := 0; i < 5; i++ {
			c.put(fmt.Sprintf("k%d", i), Response{})
		}
		assert.Equal(t, 2, c.len())
	})

	t.Run("zero size defaults to 1000", func(t *testing.T) {
		c := newResponseCache(0, time.Minute)
		assert.Equal(t, 1000, c.maxSize)
	})

	t.Run("rewriting a key does not evict", func(t *testing.T) {
		c := newResponseCache(2, time.Minute)
		c.put("a", Response{})
		c.put("b", Response{})
		c.put("a", Response{Answer: "updated"})
		assert.Equal(t, 2, c.len())
		require.NotNil(t, c.get("b"))
	})
}
