package providers

import (
	"context"

	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/normgraph/normgraph/internal/llm"
)

// OllamaProvider serves completions from a local Ollama server, the
// no-API-key path for air-gapped deployments.
type OllamaProvider struct {
	chatCore
}

// NewOllamaProvider creates an Ollama provider against BaseURL, or the
// default local server when unset.
func NewOllamaProvider(cfg llm.ProviderConfig) (*OllamaProvider, error) {
	serverURL := cfg.BaseURL
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}

	opts := []ollama.Option{ollama.WithServerURL(serverURL)}
	if cfg.Model != "" {
		opts = append(opts, ollama.WithModel(cfg.Model))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, llm.TranslateError("ollama", err)
	}
	return &OllamaProvider{chatCore{name: "ollama", client: client, model: cfg.Model}}, nil
}

// Models lists common local models; what is actually available depends
// on what the server has pulled.
func (p *OllamaProvider) Models(ctx context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{
		{Name: "llama3.1", ContextWindow: 131072, MaxOutput: 4096, Features: []string{"chat", "streaming"}},
		{Name: "mistral", ContextWindow: 32768, MaxOutput: 4096, Features: []string{"chat", "streaming"}},
	}, nil
}
