package embedder

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/normgraph/normgraph/internal/types"
)

// Dimensions for the supported OpenAI embedding models.
var openAIModelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.LLM
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an embedder for the given model. The API
// key falls back to OPENAI_API_KEY when not provided.
func NewOpenAIEmbedder(model, apiKey string) (*OpenAIEmbedder, error) {
	if model == "" {
		model = defaultOpenAIModel
	}
	dims, ok := openAIModelDims[model]
	if !ok {
		return nil, types.NewError(types.EMBEDDING_FAILED,
			fmt.Sprintf("unsupported OpenAI embedding model: %s", model))
	}

	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, types.NewError(types.EMBEDDING_FAILED,
			"OpenAI embedder requires api_key or OPENAI_API_KEY")
	}

	client, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, types.WrapError(types.EMBEDDING_FAILED,
			"failed to create OpenAI client", err)
	}

	return &OpenAIEmbedder{client: client, model: model, dims: dims}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	results, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// EmbedBatch sends all texts in a single API request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	vectors, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, types.WrapRetryableError(types.EMBEDDING_FAILED,
			"OpenAI embedding request failed", err)
	}
	if len(vectors) != len(texts) {
		return nil, types.NewError(types.EMBEDDING_FAILED,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}

	results := make([][]float64, len(vectors))
	for i, vec := range vectors {
		if len(vec) != e.dims {
			return nil, types.NewError(types.EMBEDDING_FAILED,
				fmt.Sprintf("embedding %d has %d dimensions, want %d", i, len(vec), e.dims))
		}
		out := make([]float64, len(vec))
		for j, v := range vec {
			out[j] = float64(v)
		}
		results[i] = out
	}
	return results, nil
}

// Dimensions returns the model's output dimensionality.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Health embeds a probe text against the live API.
func (e *OpenAIEmbedder) Health(ctx context.Context) types.HealthStatus {
	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := e.Embed(healthCtx, "health check"); err != nil {
		return types.Unhealthy(fmt.Sprintf("OpenAI embedder unreachable: %v", err))
	}
	return types.Healthy(fmt.Sprintf("OpenAI embedder operational (%s)", e.model))
}
