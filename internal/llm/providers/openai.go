package providers

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/normgraph/normgraph/internal/llm"
)

// OpenAIProvider serves completions from the OpenAI chat API. BaseURL
// also lets it front any OpenAI-compatible gateway.
type OpenAIProvider struct {
	chatCore
}

// NewOpenAIProvider creates an OpenAI provider. The API key falls back
// to OPENAI_API_KEY.
func NewOpenAIProvider(cfg llm.ProviderConfig) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, llm.NewAuthError("openai", nil)
	}

	opts := []openai.Option{openai.WithToken(apiKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, llm.TranslateError("openai", err)
	}
	return &OpenAIProvider{chatCore{name: "openai", client: client, model: cfg.Model}}, nil
}

// Models lists the chat models the extraction and synthesis prompts
// are sized for.
func (p *OpenAIProvider) Models(ctx context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{
		{Name: "gpt-4o", ContextWindow: 128000, MaxOutput: 16384, Features: []string{"chat", "streaming", "json"}},
		{Name: "gpt-4o-mini", ContextWindow: 128000, MaxOutput: 16384, Features: []string{"chat", "streaming", "json"}},
	}, nil
}
