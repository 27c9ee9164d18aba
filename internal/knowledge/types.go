package knowledge

import (
	"fmt"
	"time"

	"github.com/normgraph/normgraph/internal/document"
	"github.com/normgraph/normgraph/internal/types"
)

// ChunkID derives a stable chunk identity from source, position, and
// content, so re-ingesting identical content produces identical IDs.
func ChunkID(source string, index int, text string) types.ID {
	return types.DeterministicID(fmt.Sprintf("%s#%d#%s", source, index, text))
}

// IngestOptions tunes one ingestion run.
type IngestOptions struct {
	// Force re-ingests a source even when its content hash is
	// unchanged, replacing all previously stored chunks.
	Force bool

	// SkipExtraction disables the LLM extraction passes; the document
	// is ingested chunk-only with no graph writes.
	SkipExtraction bool

	// ChunkSize and ChunkOverlap override the classification-derived
	// chunking profile when positive. Both are token counts.
	ChunkSize    int
	ChunkOverlap int
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	Source         string                  `json:"source"`
	Classification document.Classification `json:"classification"`
	Chunks         int                     `json:"chunks"`
	Controls       int                     `json:"controls"`
	Relationships  int                     `json:"relationships"`
	// Skipped is set when the source hash matched an existing record
	// and Force was off; nothing was written.
	Skipped bool `json:"skipped,omitempty"`
	// GraphDegraded is set when chunk storage succeeded but the graph
	// write failed. Vector and keyword search still cover the source;
	// graph traversal does not.
	GraphDegraded bool          `json:"graph_degraded,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Stats aggregates store contents for the status surface.
type Stats struct {
	Sources       int   `json:"sources"`
	Chunks        int64 `json:"chunks"`
	Controls      int64 `json:"controls"`
	Relationships int64 `json:"relationships"`
}
