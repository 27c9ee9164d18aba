package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/normgraph/normgraph/internal/types"
)

// MockStore is an in-memory Store for testing. Search returns the
// configured results rather than computing similarity.
type MockStore struct {
	mu            sync.RWMutex
	records       map[string]Record
	searchResults []Result
	healthStatus  types.HealthStatus
	storeErr      error
	searchErr     error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		records:      make(map[string]Record),
		healthStatus: types.Healthy("mock vector store"),
	}
}

// SetSearchResults configures what Search returns.
func (m *MockStore) SetSearchResults(results []Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchResults = results
}

// SetStoreError makes Store and StoreBatch fail with err.
func (m *MockStore) SetStoreError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeErr = err
}

// SetSearchError makes Search fail with err.
func (m *MockStore) SetSearchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchErr = err
}

// SetHealthStatus configures what Health returns.
func (m *MockStore) SetHealthStatus(status types.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthStatus = status
}

// Records returns a copy of all stored records.
func (m *MockStore) Records() map[string]Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Record, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out
}

func (m *MockStore) Store(ctx context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.records[record.ID] = record
	return nil
}

func (m *MockStore) StoreBatch(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	for _, record := range records {
		m.records[record.ID] = record
	}
	return nil
}

func (m *MockStore) Search(ctx context.Context, query Query) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	results := make([]Result, len(m.searchResults))
	copy(results, m.searchResults)
	return results, nil
}

func (m *MockStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, types.NewError(types.VECTOR_STORE_FAILED,
			fmt.Sprintf("record not found: %s", id))
	}
	return &record, nil
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MockStore) DeleteBySource(ctx context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, record := range m.records {
		if v, ok := record.Metadata["source"].(string); ok && v == source {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *MockStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *MockStore) Health(ctx context.Context) types.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthStatus
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]Record)
	return nil
}
