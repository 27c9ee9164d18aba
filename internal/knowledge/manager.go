package knowledge

import (
	"context"

	"github.com/normgraph/normgraph/internal/database"
	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/observability"
	"github.com/normgraph/normgraph/internal/types"
	"github.com/normgraph/normgraph/internal/vector"
)

// Manager is the administrative surface over the three stores: source
// listing, deletion, statistics, and health.
type Manager interface {
	// ListSources returns the catalog record of every ingested source.
	ListSources(ctx context.Context) ([]*database.SourceRecord, error)

	// GetSource returns one source's catalog record, or nil if the
	// source is unknown.
	GetSource(ctx context.Context, source string) (*database.SourceRecord, error)

	// DeleteSource removes a source from all three stores and the
	// catalog. Controls still attached to other documents survive in
	// the graph.
	DeleteSource(ctx context.Context, source string) error

	// Stats aggregates counts across the stores.
	Stats(ctx context.Context) (Stats, error)

	// Health reports the aggregate health of the backing stores.
	Health(ctx context.Context) types.HealthStatus

	// Close releases the vector store and graph connections. The
	// catalog DB is owned by the caller.
	Close(ctx context.Context) error
}

// DefaultManager implements Manager over the SQLite catalog, the
// vector store, and the graph store.
type DefaultManager struct {
	vectors  vector.Store
	graph    graph.Store
	sources  *database.SourceDAO
	keywords *database.KeywordIndex
	logger   *observability.TracedLogger
}

// NewManager wires a manager over already-connected stores.
func NewManager(vectors vector.Store, graphStore graph.Store, db *database.DB, logger *observability.TracedLogger) *DefaultManager {
	return &DefaultManager{
		vectors:  vectors,
		graph:    graphStore,
		sources:  database.NewSourceDAO(db),
		keywords: database.NewKeywordIndex(db),
		logger:   logger,
	}
}

func (m *DefaultManager) ListSources(ctx context.Context) ([]*database.SourceRecord, error) {
	return m.sources.List(ctx)
}

func (m *DefaultManager) GetSource(ctx context.Context, source string) (*database.SourceRecord, error) {
	return m.sources.Get(ctx, source)
}

// DeleteSource fans out to all stores. The catalog record goes last so
// a partial failure leaves the source visible for a retried delete.
func (m *DefaultManager) DeleteSource(ctx context.Context, source string) error {
	rec, err := m.sources.Get(ctx, source)
	if err != nil {
		return err
	}
	if rec == nil {
		return types.NewError(types.SOURCE_NOT_FOUND, "unknown source: "+source)
	}

	if err := m.vectors.DeleteBySource(ctx, source); err != nil {
		return types.WrapError(types.VECTOR_STORE_FAILED,
			"failed to delete source embeddings", err)
	}
	if err := m.keywords.DeleteSource(ctx, source); err != nil {
		return err
	}
	if err := m.graph.DeleteSource(ctx, source); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED,
			"failed to delete source from graph", err)
	}

	if _, err := m.sources.Delete(ctx, source); err != nil {
		return err
	}

	if m.logger != nil {
		m.logger.Info(ctx, "source deleted", "source", source, "chunks", rec.ChunkCount)
	}
	return nil
}

func (m *DefaultManager) Stats(ctx context.Context) (Stats, error) {
	sourceCount, err := m.sources.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	chunks, err := m.vectors.Count(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Sources: sourceCount, Chunks: chunks}

	// Graph stats are best-effort; a down graph store should not hide
	// the catalog and vector counts.
	graphStats, err := m.graph.Stats(ctx)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn(ctx, "graph stats unavailable", "error", err)
		}
		return stats, nil
	}
	stats.Controls = graphStats.Controls
	stats.Relationships = graphStats.Relationships
	return stats, nil
}

func (m *DefaultManager) Health(ctx context.Context) types.HealthStatus {
	return types.AggregateHealth(map[string]types.HealthStatus{
		"vector_store": m.vectors.Health(ctx),
		"graph_store":  m.graph.Health(ctx),
	})
}

func (m *DefaultManager) Close(ctx context.Context) error {
	var firstErr error
	if err := m.vectors.Close(); err != nil {
		firstErr = err
	}
	if err := m.graph.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
