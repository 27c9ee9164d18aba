package graph

import (
	"context"

	"github.com/normgraph/normgraph/internal/types"
)

// Store provides access to the compliance control graph.
// Implementations must be safe for concurrent use.
type Store interface {
	// Connect establishes the database connection, retrying with
	// exponential backoff.
	Connect(ctx context.Context) error

	// Close releases the connection.
	Close(ctx context.Context) error

	// Health reports the connection's operational status.
	Health(ctx context.Context) types.HealthStatus

	// EnsureSchema creates uniqueness constraints for control and
	// document natural keys. Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	// UpsertControl merges a control node by its ID.
	UpsertControl(ctx context.Context, control Control) error

	// UpsertControls merges multiple controls in one transaction.
	UpsertControls(ctx context.Context, controls []Control) error

	// UpsertDocument merges a document node by its source.
	UpsertDocument(ctx context.Context, doc Document) error

	// LinkControlToDocument records that a control was extracted from
	// a document.
	LinkControlToDocument(ctx context.Context, controlID, source string) error

	// CreateRelationship merges a typed edge between two controls.
	CreateRelationship(ctx context.Context, rel Relationship) error

	// GetControl fetches a control by its natural ID.
	GetControl(ctx context.Context, id string) (*Control, error)

	// FindControls returns controls matching the filter.
	FindControls(ctx context.Context, filter ControlFilter) ([]Control, error)

	// Neighborhood returns controls reachable from id within depth
	// hops, optionally restricted to the given relation types.
	Neighborhood(ctx context.Context, id string, depth int, relTypes []RelationType) ([]RelatedControl, error)

	// DeleteSource removes a document node and every control extracted
	// only from it.
	DeleteSource(ctx context.Context, source string) error

	// Stats returns node and relationship counts.
	Stats(ctx context.Context) (Stats, error)
}
