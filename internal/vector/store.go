package vector

import (
	"context"

	"github.com/normgraph/normgraph/internal/types"
)

// Store persists chunk embeddings and answers similarity queries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Store persists a single record, replacing any existing record
	// with the same ID.
	Store(ctx context.Context, record Record) error

	// StoreBatch persists multiple records in one transaction.
	StoreBatch(ctx context.Context, records []Record) error

	// Search returns the records most similar to the query embedding,
	// ordered by descending score.
	Search(ctx context.Context, query Query) ([]Result, error)

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes a record by ID. Deleting a missing ID is not an
	// error.
	Delete(ctx context.Context, id string) error

	// DeleteBySource removes all records whose metadata source matches.
	DeleteBySource(ctx context.Context, source string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Health reports the store's operational status.
	Health(ctx context.Context) types.HealthStatus

	// Close releases the store's resources.
	Close() error
}
