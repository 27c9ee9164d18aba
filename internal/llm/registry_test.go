package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/internal/types"
)

// stubProvider is a minimal Provider for registry tests.
type stubProvider struct {
	name    string
	health  types.HealthStatus
	calls   int
	content string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Models(ctx context.Context) ([]ModelInfo, error) {
	return nil, nil
}

func (s *stubProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.calls++
	return &CompletionResponse{
		Message: NewAssistantMessage(s.content),
	}, nil
}

func (s *stubProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk)
	close(ch)
	return ch, nil
}

func (s *stubProvider) Health(ctx context.Context) types.HealthStatus {
	return s.health
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry("openai")

	p := &stubProvider{name: "openai", health: types.Healthy("")}
	require.NoError(t, r.RegisterProvider(p))

	t.Run("get by name", func(t *testing.T) {
		got, err := r.GetProvider("openai")
		require.NoError(t, err)
		assert.Equal(t, "openai", got.Name())
	})

	t.Run("default provider", func(t *testing.T) {
		got, err := r.DefaultProvider()
		require.NoError(t, err)
		assert.Equal(t, "openai", got.Name())
	})

	t.Run("duplicate registration rejected", func(t *testing.T) {
		err := r.RegisterProvider(&stubProvider{name: "openai"})
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := r.GetProvider("nope")
		require.Error(t, err)
		assert.Equal(t, types.LLM_PROVIDER_UNKNOWN, types.CodeOf(err))
	})

	t.Run("nil provider rejected", func(t *testing.T) {
		assert.Error(t, r.RegisterProvider(nil))
	})
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry("")
	require.NoError(t, r.RegisterProvider(&stubProvider{name: "ollama"}))
	require.NoError(t, r.RegisterProvider(&stubProvider{name: "anthropic"}))

	assert.Equal(t, []string{"anthropic", "ollama"}, r.ListProviders())
}

func TestRegistryHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("empty registry is unhealthy", func(t *testing.T) {
		r := NewRegistry("")
		assert.True(t, r.Health(ctx).IsUnhealthy())
	})

	t.Run("all healthy", func(t *testing.T) {
		r := NewRegistry("")
		require.NoError(t, r.RegisterProvider(&stubProvider{name: "a", health: types.Healthy("")}))
		require.NoError(t, r.RegisterProvider(&stubProvider{name: "b", health: types.Healthy("")}))
		assert.True(t, r.Health(ctx).IsHealthy())
	})

	t.Run("one unhealthy degrades nothing further than unhealthy", func(t *testing.T) {
		r := NewRegistry("")
		require.NoError(t, r.RegisterProvider(&stubProvider{name: "a", health: types.Healthy("")}))
		require.NoError(t, r.RegisterProvider(&stubProvider{name: "b", health: types.Unhealthy("down")}))
		assert.True(t, r.Health(ctx).IsUnhealthy())
	})
}

func TestRateLimitedProvider(t *testing.T) {
	t.Run("zero rpm returns provider unwrapped", func(t *testing.T) {
		p := &stubProvider{name: "x"}
		assert.Same(t, Provider(p), NewRateLimitedProvider(p, 0))
	})

	t.Run("requests pass through under the limit", func(t *testing.T) {
		p := &stubProvider{name: "x", content: "hi"}
		limited := NewRateLimitedProvider(p, 600)

		resp, err := limited.Complete(context.Background(), CompletionRequest{
			Model:    "m",
			Messages: []Message{NewUserMessage("q")},
		})
		require.NoError(t, err)
		assert.Equal(t, "hi", resp.Message.Content)
		assert.Equal(t, 1, p.calls)
	})

	t.Run("canceled context aborts the wait", func(t *testing.T) {
		p := &stubProvider{name: "x"}
		// 1 rpm with a drained burst forces the limiter to block.
		limited := NewRateLimitedProvider(p, 1)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, _ = limited.Complete(ctx, CompletionRequest{Model: "m", Messages: []Message{NewUserMessage("a")}})
		_, err := limited.Complete(ctx, CompletionRequest{Model: "m", Messages: []Message{NewUserMessage("b")}})
		assert.Error(t, err)
	})
}
