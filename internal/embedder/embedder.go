package embedder

import (
	"context"

	"github.com/normgraph/normgraph/internal/types"
)

// Embedder generates embedding vectors from text. Implementations must
// be safe for concurrent use.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch generates embeddings for multiple texts. Either all
	// embeddings are returned or an error; no partial results.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Model returns the name of the embedding model.
	Model() string

	// Health reports the embedder's operational status.
	Health(ctx context.Context) types.HealthStatus
}
