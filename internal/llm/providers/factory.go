package providers

import (
	"fmt"

	"github.com/normgraph/normgraph/internal/llm"
)

// NewProvider creates a new LLM provider based on the configuration.
// The provider is wrapped with a client-side rate limiter when
// RequestsPerMinute is set.
func NewProvider(cfg llm.ProviderConfig) (llm.Provider, error) {
	var (
		provider llm.Provider
		err      error
	)

	switch cfg.Type {
	case llm.ProviderOpenAI:
		provider, err = NewOpenAIProvider(cfg)

	case llm.ProviderAnthropic:
		provider, err = NewAnthropicProvider(cfg)

	case llm.ProviderGoogle:
		provider, err = NewGoogleProvider(cfg)

	case llm.ProviderOllama:
		provider, err = NewOllamaProvider(cfg)

	case llm.ProviderMock:
		provider = NewMockProvider([]string{"mock response"})

	default:
		return nil, llm.NewInvalidRequestError(fmt.Sprintf("unknown provider type: %s", cfg.Type))
	}

	if err != nil {
		return nil, err
	}

	return llm.NewRateLimitedProvider(provider, cfg.RequestsPerMinute), nil
}
