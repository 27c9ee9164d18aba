package providers

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/normgraph/normgraph/internal/llm"
)

// GoogleProvider serves completions from the Gemini API.
type GoogleProvider struct {
	chatCore
}

// NewGoogleProvider creates a Gemini provider. The API key falls back
// to GOOGLE_API_KEY.
func NewGoogleProvider(cfg llm.ProviderConfig) (*GoogleProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, llm.NewAuthError("google", nil)
	}

	opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
	if cfg.Model != "" {
		opts = append(opts, googleai.WithDefaultModel(cfg.Model))
	}

	// The Gemini client dials at construction time, not per call.
	client, err := googleai.New(context.Background(), opts...)
	if err != nil {
		return nil, llm.TranslateError("google", err)
	}
	return &GoogleProvider{chatCore{name: "google", client: client, model: cfg.Model}}, nil
}

// Models lists the chat models the extraction and synthesis prompts
// are sized for.
func (p *GoogleProvider) Models(ctx context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{
		{Name: "gemini-1.5-pro", ContextWindow: 1048576, MaxOutput: 8192, Features: []string{"chat", "streaming", "json"}},
		{Name: "gemini-1.5-flash", ContextWindow: 1048576, MaxOutput: 8192, Features: []string{"chat", "streaming", "json"}},
	}, nil
}
