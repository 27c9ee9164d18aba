package embedder

import (
	"fmt"

	"github.com/normgraph/normgraph/internal/config"
	"github.com/normgraph/normgraph/internal/types"
)

// NewEmbedder creates the embedder described by the configuration.
//
// Supported types:
//   - "local": all-MiniLM-L6-v2 via ONNX, 384 dims, offline after the
//     first model download
//   - "openai": OpenAI embeddings API, requires an API key
//   - "mock": deterministic hash embeddings for testing
func NewEmbedder(cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalEmbedder()

	case "openai":
		return NewOpenAIEmbedder(cfg.Model, cfg.APIKey)

	case "mock":
		return NewMockEmbedder(384), nil

	default:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown embedder type %q, must be local, openai, or mock", cfg.Type))
	}
}
