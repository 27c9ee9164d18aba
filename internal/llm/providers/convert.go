package providers

import (
	"context"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/normgraph/normgraph/internal/llm"
	"github.com/normgraph/normgraph/internal/types"
)

// chatCore carries the Complete/Stream/Health triad shared by every
// langchaingo-backed provider. Providers embed it and keep only their
// construction and model catalog.
type chatCore struct {
	name   string
	client llms.Model
	model  string
}

func (c *chatCore) Name() string { return c.name }

// Complete sends a single completion round trip.
func (c *chatCore) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := c.client.GenerateContent(ctx, toLangchainMessages(req.Messages), callOptions(req)...)
	if err != nil {
		return nil, llm.TranslateError(c.name, err)
	}
	return fromLangchainResponse(resp, req.Model), nil
}

// Stream runs the completion with a streaming callback, emitting one
// chunk per delta. The channel closes when generation finishes; a
// failure arrives as a final chunk with Error set.
func (c *chatCore) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	out := make(chan llm.StreamChunk, 10)

	opts := append(callOptions(req), llms.WithStreamingFunc(
		func(ctx context.Context, chunk []byte) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- llm.StreamChunk{Delta: llm.StreamDelta{Content: string(chunk)}}:
				return nil
			}
		}))

	go func() {
		defer close(out)
		if _, err := c.client.GenerateContent(ctx, toLangchainMessages(req.Messages), opts...); err != nil {
			out <- llm.StreamChunk{Error: llm.TranslateError(c.name, err)}
		}
	}()

	return out, nil
}

// Health probes the backend with a one-token completion.
func (c *chatCore) Health(ctx context.Context) types.HealthStatus {
	_, err := c.Complete(ctx, llm.CompletionRequest{
		Model:     c.model,
		Messages:  []llm.Message{llm.NewUserMessage("ping")},
		MaxTokens: 1,
	})
	if err != nil {
		return types.Unhealthy(err.Error())
	}
	return types.Healthy("")
}

func toLangchainMessages(messages []llm.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role := llms.ChatMessageTypeHuman
		switch msg.Role {
		case llm.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case llm.RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, msg.Content))
	}
	return out
}

func fromLangchainResponse(resp *llms.ContentResponse, model string) *llm.CompletionResponse {
	out := &llm.CompletionResponse{
		ID:           uuid.New().String(),
		Model:        model,
		Message:      llm.Message{Role: llm.RoleAssistant},
		FinishReason: llm.FinishReasonStop,
	}
	if resp == nil || len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Message.Content = choice.Content
	switch choice.StopReason {
	case "length", "max_tokens":
		out.FinishReason = llm.FinishReasonLength
	case "content_filter":
		out.FinishReason = llm.FinishReasonContentFilter
	}
	out.Usage = usageFromInfo(choice.GenerationInfo)
	return out
}

// usageFromInfo pulls token counts out of langchaingo's per-choice
// GenerationInfo map. Backends that report none leave the usage zero.
func usageFromInfo(info map[string]any) llm.TokenUsage {
	usage := llm.TokenUsage{
		PromptTokens:     infoInt(info, "PromptTokens"),
		CompletionTokens: infoInt(info, "CompletionTokens"),
		TotalTokens:      infoInt(info, "TotalTokens"),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func infoInt(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func callOptions(req llm.CompletionRequest) []llms.CallOption {
	opts := make([]llms.CallOption, 0, 5)
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.TopP > 0 {
		opts = append(opts, llms.WithTopP(req.TopP))
	}
	if len(req.StopSequences) > 0 {
		opts = append(opts, llms.WithStopWords(req.StopSequences))
	}
	return opts
}
