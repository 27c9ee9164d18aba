package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/normgraph/normgraph/internal/types"
)

// MockEmbedder produces deterministic pseudo-embeddings derived from a
// hash of the input text. Identical texts always get identical vectors,
// which makes retrieval tests reproducible without a model.
type MockEmbedder struct {
	mu    sync.Mutex
	dims  int
	err   error
	calls []string
}

// NewMockEmbedder creates a mock embedder with the given output
// dimensionality.
func NewMockEmbedder(dims int) *MockEmbedder {
	return &MockEmbedder{dims: dims}
}

// FailWith makes all subsequent Embed calls return err.
func (m *MockEmbedder) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the texts embedded so far.
func (m *MockEmbedder) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]string, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// Embed returns a unit-length vector seeded by the text's SHA-256.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	err := m.err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return hashEmbedding(text, m.dims), nil
}

// EmbedBatch embeds each text independently.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))
	for i, text := range texts {
		embedding, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = embedding
	}
	return results, nil
}

// Dimensions returns the configured dimensionality.
func (m *MockEmbedder) Dimensions() int { return m.dims }

// Model returns the mock model name.
func (m *MockEmbedder) Model() string { return "mock-embedder" }

// Health reports healthy unless FailWith is set.
func (m *MockEmbedder) Health(ctx context.Context) types.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.Unhealthy(m.err.Error())
	}
	return types.Healthy("mock embedder")
}

// hashEmbedding expands the text's digest into dims floats in [-1, 1]
// and normalizes the result to unit length.
func hashEmbedding(text string, dims int) []float64 {
	digest := sha256.Sum256([]byte(text))

	out := make([]float64, dims)
	var norm float64
	for i := 0; i < dims; i++ {
		// Re-hash the digest with the index to stretch 32 bytes over
		// arbitrarily many dimensions.
		var seed [40]byte
		copy(seed[:32], digest[:])
		binary.LittleEndian.PutUint64(seed[32:], uint64(i))
		h := sha256.Sum256(seed[:])

		v := float64(int64(binary.LittleEndian.Uint64(h[:8]))) / float64(math.MaxInt64)
		out[i] = v
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}
