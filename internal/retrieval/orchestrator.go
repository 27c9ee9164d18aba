package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/normgraph/normgraph/internal/config"
	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/observability"
	"github.com/normgraph/normgraph/internal/types"
)

// QueryOptions are the per-request knobs of the query pipeline.
type QueryOptions struct {
	// TopK overrides the configured result count when positive.
	TopK int
	// SkipCache bypasses the response cache for this request.
	SkipCache bool
}

// Orchestrator runs the full query pipeline:
// intent -> plan -> retrieve -> synthesize -> cache.
type Orchestrator struct {
	analyzer    Analyzer
	retriever   Retriever
	synthesizer *Synthesizer
	cache       *responseCache
	cfg         config.RetrievalConfig
	logger      *observability.TracedLogger
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(analyzer Analyzer, retriever Retriever, synthesizer *Synthesizer, cfg config.RetrievalConfig, logger *observability.TracedLogger) *Orchestrator {
	return &Orchestrator{
		analyzer:    analyzer,
		retriever:   retriever,
		synthesizer: synthesizer,
		cache:       newResponseCache(cfg.CacheSize, cfg.CacheTTL),
		cfg:         cfg,
		logger:      logger,
	}
}

// Query answers one natural-language question.
func (o *Orchestrator) Query(ctx context.Context, query string, opts QueryOptions) (*Response, error) {
	started := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.NewError(types.QUERY_INVALID, "query cannot be empty")
	}

	topK := o.cfg.TopK
	if opts.TopK > 0 {
		topK = opts.TopK
	}

	key := cacheKey(query, topK)
	if !opts.SkipCache {
		if cached := o.cache.get(key); cached != nil {
			cached.Cached = true
			cached.Duration = time.Since(started)
			return cached, nil
		}
	}

	analysis := o.analyzer.Analyze(ctx, query)
	if o.logger != nil {
		o.logger.Debug(ctx, "query analyzed",
			"intent", analysis.Intent,
			"method", analysis.Method,
			"control_ids", analysis.ControlIDs)
	}

	results, err := o.retriever.Retrieve(ctx, query, o.planFor(analysis, topK))
	if err != nil {
		return nil, err
	}

	response, err := o.synthesizer.Synthesize(ctx, query, analysis, results)
	if err != nil {
		return nil, err
	}
	response.Duration = time.Since(started)

	o.cache.put(key, *response)
	return response, nil
}

// planFor shapes the retrieval plan from the intent: lookups lean on
// the graph and keywords, mapping questions follow cross-framework
// edges, gap analysis casts a wider graph net.
func (o *Orchestrator) planFor(analysis Analysis, topK int) Plan {
	plan := Plan{
		TopK: topK,
		Weights: Weights{
			Vector:  o.cfg.VectorWeight,
			Graph:   o.cfg.GraphWeight,
			Keyword: o.cfg.KeywordWeight,
		},
		GraphDepth:     o.cfg.GraphDepth,
		MinScore:       o.cfg.MinScore,
		SeedControlIDs: analysis.ControlIDs,
	}

	switch analysis.Intent {
	case IntentControlLookup:
		plan.Weights = Weights{Vector: 0.3, Graph: 0.4, Keyword: 0.3}
	case IntentMapping:
		plan.Weights = Weights{Vector: 0.2, Graph: 0.6, Keyword: 0.2}
		plan.RelTypes = []graph.RelationType{graph.RelationMapsTo, graph.RelationImplements}
		plan.GraphDepth++
	case IntentGapAnalysis:
		plan.GraphDepth++
	}

	if plan.GraphDepth > 5 {
		plan.GraphDepth = 5
	}
	return plan
}

// cacheKey normalizes the query so casing and spacing differences hit
// the same entry.
func cacheKey(query string, topK int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("%s|%d", normalized, topK)
}
