package retrieval

import (
	"context"
	"sort"

	"github.com/normgraph/normgraph/internal/database"
	"github.com/normgraph/normgraph/internal/embedder"
	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/observability"
	"github.com/normgraph/normgraph/internal/types"
	"github.com/normgraph/normgraph/internal/vector"
)

// ResultKind distinguishes the two node types a hybrid result can be.
type ResultKind string

const (
	KindChunk   ResultKind = "chunk"
	KindControl ResultKind = "control"
)

// Result is one merged retrieval hit with its per-leg scores and the
// final weighted score.
type Result struct {
	ID      string     `json:"id"`
	Kind    ResultKind `json:"kind"`
	Content string     `json:"content"`
	Source  string     `json:"source,omitempty"`
	Section string     `json:"section,omitempty"`

	ControlIDs []string `json:"control_ids,omitempty"`

	// Per-leg scores, each in [0,1]; zero when the leg did not
	// produce this result.
	VectorScore  float64 `json:"vector_score"`
	GraphScore   float64 `json:"graph_score"`
	KeywordScore float64 `json:"keyword_score"`

	// Score is the weighted hybrid score used for ranking.
	Score float64 `json:"score"`

	// Distance is the hop count for graph-derived results.
	Distance int `json:"distance,omitempty"`
}

// Weights distributes the hybrid score across the three legs.
type Weights struct {
	Vector  float64 `json:"vector"`
	Graph   float64 `json:"graph"`
	Keyword float64 `json:"keyword"`
}

// Plan is the retrieval strategy for one query, produced from the
// intent analysis.
type Plan struct {
	TopK       int
	Weights    Weights
	GraphDepth int
	// RelTypes filters graph expansion; empty means all types.
	RelTypes []graph.RelationType
	MinScore float64
	// SeedControlIDs are expanded in the graph in addition to control
	// identifiers found in the top vector hits.
	SeedControlIDs []string
}

// Retriever produces ranked hybrid results for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, plan Plan) ([]Result, error)
}

// HybridRetriever combines vector similarity, graph expansion from the
// top hits, and keyword search over the FTS index.
//
// The vector leg is required; graph and keyword legs degrade to a
// logged warning so one unavailable store never fails the query.
type HybridRetriever struct {
	embedder embedder.Embedder
	vectors  vector.Store
	graph    graph.Store
	keywords *database.KeywordIndex
	logger   *observability.TracedLogger
}

// NewHybridRetriever wires a retriever over connected stores.
func NewHybridRetriever(emb embedder.Embedder, vectors vector.Store, graphStore graph.Store, keywords *database.KeywordIndex, logger *observability.TracedLogger) *HybridRetriever {
	return &HybridRetriever{
		embedder: emb,
		vectors:  vectors,
		graph:    graphStore,
		keywords: keywords,
		logger:   logger,
	}
}

// graphSeedLimit bounds how many controls from vector hits are
// expanded; expansion is one Cypher round trip per seed.
const graphSeedLimit = 5

// Retrieve runs all three legs and merges them into one ranked list.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, plan Plan) ([]Result, error) {
	if plan.TopK <= 0 {
		plan.TopK = 10
	}
	// Legs over-fetch so the merged cut still has enough candidates
	// after dedup.
	legLimit := plan.TopK * 2

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.RETRIEVAL_FAILED, "query embedding failed", err)
	}

	vectorHits, err := r.vectors.Search(ctx, *vector.NewQuery(queryEmbedding, legLimit))
	if err != nil {
		return nil, types.WrapError(types.RETRIEVAL_FAILED, "vector search failed", err)
	}

	merged := make(map[string]*Result)
	for _, hit := range vectorHits {
		res := resultFromRecord(hit.Record)
		res.VectorScore = hit.Score
		merged[res.key()] = res
	}

	r.mergeGraphLeg(ctx, merged, vectorHits, plan)
	r.mergeKeywordLeg(ctx, merged, query, legLimit)

	results := rerank(merged, plan)
	return results, nil
}

// mergeGraphLeg expands seed controls through the graph and merges the
// related controls into the result set. Failures degrade.
func (r *HybridRetriever) mergeGraphLeg(ctx context.Context, merged map[string]*Result, vectorHits []vector.Result, plan Plan) {
	if plan.GraphDepth <= 0 {
		return
	}

	seeds := collectSeeds(vectorHits, plan.SeedControlIDs)
	for _, seed := range seeds {
		related, err := r.graph.Neighborhood(ctx, seed, plan.GraphDepth, plan.RelTypes)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn(ctx, "graph expansion failed, continuing without graph leg",
					"seed", seed, "error", err)
			}
			return
		}
		for _, rc := range related {
			mergeControl(merged, rc.Control, rc.Distance)
		}

		// The seed itself scores as distance zero when it exists.
		if control, err := r.graph.GetControl(ctx, seed); err == nil {
			mergeControl(merged, *control, 0)
		}
	}
}

// mergeKeywordLeg runs FTS search and merges hits, normalizing bm25
// scores against the best hit. Failures degrade.
func (r *HybridRetriever) mergeKeywordLeg(ctx context.Context, merged map[string]*Result, query string, limit int) {
	if r.keywords == nil {
		return
	}
	hits, err := r.keywords.Search(ctx, database.EscapeQuery(query), limit)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn(ctx, "keyword search failed, continuing without keyword leg", "error", err)
		}
		return
	}
	if len(hits) == 0 {
		return
	}

	top := hits[0].Score
	if top <= 0 {
		top = 1
	}
	for _, hit := range hits {
		key := string(KindChunk) + "/" + hit.ChunkID.String()
		score := hit.Score / top
		if score < 0 {
			score = 0
		}
		if existing, ok := merged[key]; ok {
			existing.KeywordScore = score
			continue
		}
		merged[key] = &Result{
			ID:           hit.ChunkID.String(),
			Kind:         KindChunk,
			Content:      hit.Snippet,
			Source:       hit.Source,
			Section:      hit.Section,
			KeywordScore: score,
		}
	}
}

func (res *Result) key() string {
	return string(res.Kind) + "/" + res.ID
}

// resultFromRecord maps a vector record and its chunk metadata onto a
// Result.
func resultFromRecord(rec vector.Record) *Result {
	res := &Result{
		ID:      rec.ID,
		Kind:    KindChunk,
		Content: rec.Content,
	}
	if s, ok := rec.Metadata["source"].(string); ok {
		res.Source = s
	}
	if s, ok := rec.Metadata["section"].(string); ok {
		res.Section = s
	}
	if ids, ok := rec.Metadata["control_ids"].([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				res.ControlIDs = append(res.ControlIDs, s)
			}
		}
	}
	return res
}

// collectSeeds gathers control identifiers from explicit seeds and the
// top vector hits, deduplicated, capped at graphSeedLimit.
func collectSeeds(vectorHits []vector.Result, explicit []string) []string {
	seen := make(map[string]bool)
	var seeds []string
	add := func(id string) {
		if id != "" && !seen[id] && len(seeds) < graphSeedLimit {
			seen[id] = true
			seeds = append(seeds, id)
		}
	}
	for _, id := range explicit {
		add(id)
	}
	for _, hit := range vectorHits {
		ids, ok := hit.Record.Metadata["control_ids"].([]any)
		if !ok {
			continue
		}
		for _, id := range ids {
			if s, ok := id.(string); ok {
				add(s)
			}
		}
	}
	return seeds
}

// mergeControl merges one graph-derived control into the result set,
// keeping the best (closest) graph score on repeat visits.
func mergeControl(merged map[string]*Result, control graph.Control, distance int) {
	score := 1.0 / (1.0 + float64(distance))
	key := string(KindControl) + "/" + control.ID

	if existing, ok := merged[key]; ok {
		if score > existing.GraphScore {
			existing.GraphScore = score
			existing.Distance = distance
		}
		return
	}
	merged[key] = &Result{
		ID:         control.ID,
		Kind:       KindControl,
		Content:    control.Description,
		Source:     control.Source,
		Section:    control.Title,
		ControlIDs: []string{control.ID},
		GraphScore: score,
		Distance:   distance,
	}
}

// rerank applies the weighted hybrid score, sorts, filters, and cuts.
func rerank(merged map[string]*Result, plan Plan) []Result {
	results := make([]Result, 0, len(merged))
	for _, res := range merged {
		res.Score = plan.Weights.Vector*res.VectorScore +
			plan.Weights.Graph*res.GraphScore +
			plan.Weights.Keyword*res.KeywordScore
		if res.Score < plan.MinScore {
			continue
		}
		results = append(results, *res)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > plan.TopK {
		results = results[:plan.TopK]
	}
	return results
}
