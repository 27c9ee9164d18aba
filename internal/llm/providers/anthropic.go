package providers

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/normgraph/normgraph/internal/llm"
)

// AnthropicProvider serves completions from the Anthropic messages API.
type AnthropicProvider struct {
	chatCore
}

// NewAnthropicProvider creates an Anthropic provider. The API key
// falls back to ANTHROPIC_API_KEY.
func NewAnthropicProvider(cfg llm.ProviderConfig) (*AnthropicProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, llm.NewAuthError("anthropic", nil)
	}

	opts := []anthropic.Option{anthropic.WithToken(apiKey)}
	if cfg.Model != "" {
		opts = append(opts, anthropic.WithModel(cfg.Model))
	}

	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, llm.TranslateError("anthropic", err)
	}
	return &AnthropicProvider{chatCore{name: "anthropic", client: client, model: cfg.Model}}, nil
}

// Models lists the chat models the extraction and synthesis prompts
// are sized for.
func (p *AnthropicProvider) Models(ctx context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{
		{Name: "claude-3-5-sonnet-latest", ContextWindow: 200000, MaxOutput: 8192, Features: []string{"chat", "streaming"}},
		{Name: "claude-3-5-haiku-latest", ContextWindow: 200000, MaxOutput: 8192, Features: []string{"chat", "streaming"}},
	}, nil
}
