package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/normgraph/normgraph/internal/types"
)

// Registry manages LLM provider registration, lookup, and health monitoring.
type Registry interface {
	// RegisterProvider registers an LLM provider with the registry
	RegisterProvider(provider Provider) error

	// GetProvider retrieves a provider by name
	GetProvider(name string) (Provider, error)

	// DefaultProvider returns the configured default provider
	DefaultProvider() (Provider, error)

	// ListProviders returns the names of all registered providers
	ListProviders() []string

	// Health returns the overall health status of the registry.
	// Healthy: all providers healthy. Degraded: some unhealthy.
	// Unhealthy: all unhealthy or none registered.
	Health(ctx context.Context) types.HealthStatus
}

// DefaultRegistry implements Registry with thread-safe operations.
type DefaultRegistry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
}

// NewRegistry creates a new DefaultRegistry. defaultName selects the
// provider returned by DefaultProvider; it may be registered later.
func NewRegistry(defaultName string) *DefaultRegistry {
	return &DefaultRegistry{
		providers:   make(map[string]Provider),
		defaultName: defaultName,
	}
}

// RegisterProvider registers an LLM provider with the registry.
func (r *DefaultRegistry) RegisterProvider(provider Provider) error {
	if provider == nil {
		return types.NewError(types.LLM_REQUEST_INVALID, "provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return types.NewError(types.LLM_REQUEST_INVALID, "provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return types.NewError(types.LLM_PROVIDER_UNKNOWN, fmt.Sprintf("provider %q already registered", name))
	}

	r.providers[name] = provider
	return nil
}

// GetProvider retrieves a provider by name.
func (r *DefaultRegistry) GetProvider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, types.NewError(types.LLM_PROVIDER_UNKNOWN, fmt.Sprintf("provider %q not found", name))
	}

	return provider, nil
}

// DefaultProvider returns the configured default provider.
func (r *DefaultRegistry) DefaultProvider() (Provider, error) {
	r.mu.RLock()
	name := r.defaultName
	r.mu.RUnlock()

	if name == "" {
		return nil, types.NewError(types.LLM_PROVIDER_UNKNOWN, "no default provider configured")
	}
	return r.GetProvider(name)
}

// ListProviders returns the names of all registered providers, sorted.
func (r *DefaultRegistry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Health returns the aggregate health status across all providers.
func (r *DefaultRegistry) Health(ctx context.Context) types.HealthStatus {
	r.mu.RLock()
	providers := make(map[string]Provider, len(r.providers))
	for name, p := range r.providers {
		providers[name] = p
	}
	r.mu.RUnlock()

	if len(providers) == 0 {
		return types.Unhealthy("no providers registered")
	}

	statuses := make(map[string]types.HealthStatus, len(providers))
	for name, p := range providers {
		statuses[name] = p.Health(ctx)
	}

	return types.AggregateHealth(statuses)
}

// RateLimitedProvider wraps a Provider with a client-side request rate
// limit. Complete and Stream block until the limiter grants a slot or the
// context is canceled.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps provider with a requests-per-minute budget.
// A non-positive rpm returns the provider unwrapped.
func NewRateLimitedProvider(provider Provider, rpm int) Provider {
	if rpm <= 0 {
		return provider
	}
	return &RateLimitedProvider{
		inner:   provider,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
	}
}

// Name returns the wrapped provider's name.
func (p *RateLimitedProvider) Name() string {
	return p.inner.Name()
}

// Models returns the wrapped provider's models.
func (p *RateLimitedProvider) Models(ctx context.Context) ([]ModelInfo, error) {
	return p.inner.Models(ctx)
}

// Complete waits for a rate-limit slot, then delegates.
func (p *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, types.WrapError(types.LLM_COMPLETION_FAILED, "rate limiter wait canceled", err)
	}
	return p.inner.Complete(ctx, req)
}

// Stream waits for a rate-limit slot, then delegates.
func (p *RateLimitedProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, types.WrapError(types.LLM_STREAMING_FAILED, "rate limiter wait canceled", err)
	}
	return p.inner.Stream(ctx, req)
}

// Health delegates without consuming a rate-limit slot.
func (p *RateLimitedProvider) Health(ctx context.Context) types.HealthStatus {
	return p.inner.Health(ctx)
}
