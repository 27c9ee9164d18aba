package vector

import (
	"fmt"
	"time"

	"github.com/normgraph/normgraph/internal/types"
)

// Record is a stored chunk embedding with its source text and metadata.
// Metadata carries the fields hybrid retrieval filters on: source,
// section, framework, control_ids.
type Record struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float64      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewRecord creates a Record with the current timestamp.
func NewRecord(id, content string, embedding []float64, metadata map[string]any) *Record {
	return &Record{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}

// Validate ensures the Record has valid fields.
func (r *Record) Validate() error {
	if r.ID == "" {
		return types.NewError(types.VECTOR_STORE_FAILED, "record ID cannot be empty")
	}
	if r.Content == "" {
		return types.NewError(types.VECTOR_STORE_FAILED, "record content cannot be empty")
	}
	if len(r.Embedding) == 0 {
		return types.NewError(types.VECTOR_STORE_FAILED, "record embedding cannot be empty")
	}
	return nil
}

// Dimensions returns the dimensionality of the embedding vector.
func (r *Record) Dimensions() int {
	return len(r.Embedding)
}

// Query is a vector similarity query over stored records.
type Query struct {
	Embedding []float64      `json:"embedding"`
	TopK      int            `json:"top_k"`
	Filters   map[string]any `json:"filters,omitempty"`
	MinScore  float64        `json:"min_score,omitempty"`
}

// NewQuery creates a Query from a pre-computed embedding.
func NewQuery(embedding []float64, topK int) *Query {
	return &Query{
		Embedding: embedding,
		TopK:      topK,
	}
}

// WithFilters adds metadata filters to the query.
func (q *Query) WithFilters(filters map[string]any) *Query {
	q.Filters = filters
	return q
}

// WithMinScore sets the minimum similarity score threshold.
func (q *Query) WithMinScore(minScore float64) *Query {
	q.MinScore = minScore
	return q
}

// Validate ensures the Query has valid fields.
func (q *Query) Validate() error {
	if len(q.Embedding) == 0 {
		return types.NewError(types.VECTOR_SEARCH_FAILED, "query embedding cannot be empty")
	}
	if q.TopK <= 0 {
		return types.NewError(types.VECTOR_SEARCH_FAILED,
			fmt.Sprintf("query top_k must be greater than 0, got %d", q.TopK))
	}
	if q.MinScore < 0 || q.MinScore > 1 {
		return types.NewError(types.VECTOR_SEARCH_FAILED,
			fmt.Sprintf("query min_score must be between 0 and 1, got %f", q.MinScore))
	}
	return nil
}

// Result is a search hit with its cosine similarity score (0-1, higher
// is more similar).
type Result struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}
