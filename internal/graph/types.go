package graph

import (
	"fmt"
	"time"

	"github.com/normgraph/normgraph/internal/types"
)

// RelationType is the type of an edge between two controls.
type RelationType string

const (
	RelationImplements RelationType = "IMPLEMENTS"
	RelationReferences RelationType = "REFERENCES"
	RelationSupersedes RelationType = "SUPERSEDES"
	RelationRelatedTo  RelationType = "RELATED_TO"
	RelationPartOf     RelationType = "PART_OF"
	RelationMapsTo     RelationType = "MAPS_TO"
)

// AllRelationTypes lists every valid relation type.
var AllRelationTypes = []RelationType{
	RelationImplements,
	RelationReferences,
	RelationSupersedes,
	RelationRelatedTo,
	RelationPartOf,
	RelationMapsTo,
}

// IsValid reports whether the relation type is one of the known types.
// Relation types are interpolated into Cypher, so anything else must be
// rejected before it reaches a query.
func (r RelationType) IsValid() bool {
	for _, t := range AllRelationTypes {
		if r == t {
			return true
		}
	}
	return false
}

// Control is a single compliance requirement node, identified by its
// natural ID as printed in the standard (e.g. "APP.4.4.A19", "A.5.1",
// "PR.AC-1").
type Control struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Framework   string `json:"framework,omitempty"`
	Domain      string `json:"domain,omitempty"`
	Level       string `json:"level,omitempty"`
	Source      string `json:"source,omitempty"`
	Section     string `json:"section,omitempty"`
}

// Validate ensures the control has its natural key and a title.
func (c *Control) Validate() error {
	if c.ID == "" {
		return types.NewError(types.GRAPH_QUERY_FAILED, "control ID cannot be empty")
	}
	if c.Title == "" {
		return types.NewError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("control %s has no title", c.ID))
	}
	return nil
}

// Document is a node for an ingested source document.
type Document struct {
	Source     string    `json:"source"`
	Title      string    `json:"title,omitempty"`
	Type       string    `json:"type,omitempty"`
	Hash       string    `json:"hash,omitempty"`
	IngestedAt time.Time `json:"ingested_at,omitempty"`
}

// Relationship is a typed, weighted edge between two controls.
type Relationship struct {
	FromID     string       `json:"from_id"`
	ToID       string       `json:"to_id"`
	Type       RelationType `json:"type"`
	Confidence float64      `json:"confidence"`
	Source     string       `json:"source,omitempty"`
}

// Validate checks endpoint IDs, relation type, and confidence range.
func (r *Relationship) Validate() error {
	if r.FromID == "" || r.ToID == "" {
		return types.NewError(types.GRAPH_QUERY_FAILED, "relationship endpoints cannot be empty")
	}
	if !r.Type.IsValid() {
		return types.NewError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("invalid relation type %q", r.Type))
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return types.NewError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("relationship confidence must be in [0,1], got %f", r.Confidence))
	}
	return nil
}

// RelatedControl is a control reached by graph traversal, annotated
// with how it was reached.
type RelatedControl struct {
	Control  Control `json:"control"`
	Distance int     `json:"distance"`
}

// ControlFilter narrows FindControls results. Zero-value fields are
// ignored; Text matches title and description case-insensitively.
type ControlFilter struct {
	Framework string
	Domain    string
	Text      string
	Limit     int
}

// Stats summarizes graph contents for the status surface.
type Stats struct {
	Controls      int64 `json:"controls"`
	Documents     int64 `json:"documents"`
	Relationships int64 `json:"relationships"`
}
