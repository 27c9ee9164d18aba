package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/normgraph/normgraph/internal/types"
)

// MockStore is an in-memory Store for testing. Neighborhood performs a
// real breadth-first traversal over the stored relationships so
// retrieval tests exercise genuine graph expansion.
type MockStore struct {
	mu            sync.RWMutex
	controls      map[string]Control
	documents     map[string]Document
	relationships []Relationship
	partOf        map[string]map[string]bool // control ID -> sources
	healthStatus  types.HealthStatus
	failWith      error
	connected     bool
}

// NewMockStore creates an empty mock graph store.
func NewMockStore() *MockStore {
	return &MockStore{
		controls:     make(map[string]Control),
		documents:    make(map[string]Document),
		partOf:       make(map[string]map[string]bool),
		healthStatus: types.Healthy("mock graph store"),
	}
}

// FailWith makes all subsequent operations return err.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// SetHealthStatus configures what Health returns.
func (m *MockStore) SetHealthStatus(status types.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthStatus = status
}

// Relationships returns a copy of all stored relationships.
func (m *MockStore) Relationships() []Relationship {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Relationship, len(m.relationships))
	copy(out, m.relationships)
	return out
}

func (m *MockStore) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.connected = true
	return nil
}

func (m *MockStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockStore) Health(ctx context.Context) types.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return types.Unhealthy(m.failWith.Error())
	}
	return m.healthStatus
}

func (m *MockStore) EnsureSchema(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failWith
}

func (m *MockStore) UpsertControl(ctx context.Context, control Control) error {
	return m.UpsertControls(ctx, []Control{control})
}

func (m *MockStore) UpsertControls(ctx context.Context, controls []Control) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for i := range controls {
		if err := controls[i].Validate(); err != nil {
			return err
		}
		m.controls[controls[i].ID] = controls[i]
	}
	return nil
}

func (m *MockStore) UpsertDocument(ctx context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.documents[doc.Source] = doc
	return nil
}

func (m *MockStore) LinkControlToDocument(ctx context.Context, controlID, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if m.partOf[controlID] == nil {
		m.partOf[controlID] = make(map[string]bool)
	}
	m.partOf[controlID][source] = true
	return nil
}

func (m *MockStore) CreateRelationship(ctx context.Context, rel Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if err := rel.Validate(); err != nil {
		return err
	}
	// MERGE semantics: replace an existing edge with the same shape.
	for i := range m.relationships {
		if m.relationships[i].FromID == rel.FromID &&
			m.relationships[i].ToID == rel.ToID &&
			m.relationships[i].Type == rel.Type {
			m.relationships[i] = rel
			return nil
		}
	}
	m.relationships = append(m.relationships, rel)
	return nil
}

func (m *MockStore) GetControl(ctx context.Context, id string) (*Control, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	control, ok := m.controls[id]
	if !ok {
		return nil, types.NewError(types.GRAPH_NODE_NOT_FOUND,
			fmt.Sprintf("control not found: %s", id))
	}
	return &control, nil
}

func (m *MockStore) FindControls(ctx context.Context, filter ControlFilter) ([]Control, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	out := make([]Control, 0)
	for _, c := range m.controls {
		if filter.Framework != "" && c.Framework != filter.Framework {
			continue
		}
		if filter.Domain != "" && c.Domain != filter.Domain {
			continue
		}
		if filter.Text != "" {
			text := strings.ToLower(filter.Text)
			if !strings.Contains(strings.ToLower(c.Title), text) &&
				!strings.Contains(strings.ToLower(c.Description), text) {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) Neighborhood(ctx context.Context, id string, depth int, relTypes []RelationType) ([]RelatedControl, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if depth <= 0 {
		depth = 1
	}

	allowed := make(map[RelationType]bool)
	for _, rt := range relTypes {
		allowed[rt] = true
	}

	// Breadth-first over undirected edges.
	distances := map[string]int{id: 0}
	frontier := []string{id}
	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		next := make([]string, 0)
		for _, current := range frontier {
			for _, rel := range m.relationships {
				if len(relTypes) > 0 && !allowed[rel.Type] {
					continue
				}
				var neighbor string
				switch current {
				case rel.FromID:
					neighbor = rel.ToID
				case rel.ToID:
					neighbor = rel.FromID
				default:
					continue
				}
				if _, seen := distances[neighbor]; seen {
					continue
				}
				distances[neighbor] = hop
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	out := make([]RelatedControl, 0, len(distances))
	for nodeID, distance := range distances {
		if nodeID == id {
			continue
		}
		control, ok := m.controls[nodeID]
		if !ok {
			continue
		}
		out = append(out, RelatedControl{Control: control, Distance: distance})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Control.ID < out[j].Control.ID
	})
	return out, nil
}

func (m *MockStore) DeleteSource(ctx context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	for controlID, sources := range m.partOf {
		if !sources[source] {
			continue
		}
		delete(sources, source)
		if len(sources) == 0 {
			delete(m.controls, controlID)
			delete(m.partOf, controlID)
			kept := m.relationships[:0]
			for _, rel := range m.relationships {
				if rel.FromID != controlID && rel.ToID != controlID {
					kept = append(kept, rel)
				}
			}
			m.relationships = kept
		}
	}
	delete(m.documents, source)
	return nil
}

func (m *MockStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return Stats{}, m.failWith
	}
	return Stats{
		Controls:      int64(len(m.controls)),
		Documents:     int64(len(m.documents)),
		Relationships: int64(len(m.relationships)),
	}, nil
}
