package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/llm/providers"
)

func TestExtractControls(t *testing.T) {
	ctx := context.Background()

	t.Run("parses fenced array", func(t *testing.T) {
		mock := providers.NewMockProvider([]string{"```json\n" + `[
			{"id": "APP.4.4.A19", "title": "Netzsegmentierung",
			 "description": "Separate cluster networks.", "level": "Standard", "domain": "network"},
			{"id": "A.13.1", "title": "Network security management"}
		]` + "\n```"})
		e := NewExtractor(mock, "mock-model", nil)

		items, err := e.ExtractControls(ctx, "chunk text", "bsi_grundschutz")
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "APP.4.4.A19", items[0].ID)
		assert.Equal(t, "Standard", items[0].Level)
	})

	t.Run("empty array for prose", func(t *testing.T) {
		mock := providers.NewMockProvider([]string{"[]"})
		e := NewExtractor(mock, "mock-model", nil)

		items, err := e.ExtractControls(ctx, "introduction text", "whitepaper")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("items without id or title are dropped", func(t *testing.T) {
		mock := providers.NewMockProvider([]string{`[
			{"id": "", "title": "orphan"},
			{"id": "A.5.1", "title": ""},
			{"id": "A.5.2", "title": "kept"}
		]`})
		e := NewExtractor(mock, "mock-model", nil)

		items, err := e.ExtractControls(ctx, "text", "iso_27001")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "A.5.2", items[0].ID)
	})

	t.Run("weakly typed fields decode", func(t *testing.T) {
		// Models sometimes return numbers where strings belong.
		mock := providers.NewMockProvider([]string{`[{"id": "A.5.1", "title": "x", "level": 2}]`})
		e := NewExtractor(mock, "mock-model", nil)

		items, err := e.ExtractControls(ctx, "text", "iso_27001")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "2", items[0].Level)
	})

	t.Run("non-json response is an error", func(t *testing.T) {
		mock := providers.NewMockProvider([]string{"no controls here"})
		e := NewExtractor(mock, "mock-model", nil)

		_, err := e.ExtractControls(ctx, "text", "unknown")
		assert.Error(t, err)
	})
}

func TestDiscoverRelationships(t *testing.T) {
	ctx := context.Background()
	controls := []ControlItem{
		{ID: "APP.4.4.A19", Title: "Netzsegmentierung", Domain: "network"},
		{ID: "A.13.1", Title: "Network security management", Domain: "network"},
		{ID: "PR.AC-5", Title: "Network integrity", Domain: "network"},
	}

	t.Run("valid proposals pass", func(t *testing.T) {
		mock := providers.NewMockProvider([]string{`[
			{"from_id": "APP.4.4.A19", "to_id": "A.13.1", "type": "MAPS_TO", "confidence": 0.9},
			{"from_id": "A.13.1", "to_id": "PR.AC-5", "type": "maps_to", "confidence": 0.8}
		]`})
		e := NewExtractor(mock, "mock-model", nil)

		rels, err := e.DiscoverRelationships(ctx, controls)
		require.NoError(t, err)
		require.Len(t, rels, 2)
		assert.Equal(t, graph.RelationMapsTo, rels[0].Type)
		// Lowercased types normalize.
		assert.Equal(t, graph.RelationMapsTo, rels[1].Type)
	})

	t.Run("filters bad proposals", func(t *testing.T) {
		mock := providers.NewMockProvider([]string{`[
			{"from_id": "APP.4.4.A19", "to_id": "GHOST-1", "type": "MAPS_TO", "confidence": 0.9},
			{"from_id": "A.13.1", "to_id": "A.13.1", "type": "RELATED_TO", "confidence": 0.9},
			{"from_id": "A.13.1", "to_id": "PR.AC-5", "type": "CONTRADICTS", "confidence": 0.9},
			{"from_id": "A.13.1", "to_id": "PR.AC-5", "type": "MAPS_TO", "confidence": 0.3},
			{"from_id": "APP.4.4.A19", "to_id": "A.13.1", "type": "MAPS_TO", "confidence": 0.7}
		]`})
		e := NewExtractor(mock, "mock-model", nil)

		rels, err := e.DiscoverRelationships(ctx, controls)
		require.NoError(t, err)
		require.Len(t, rels, 1)
		assert.Equal(t, "APP.4.4.A19", rels[0].FromID)
	})

	t.Run("fewer than two controls skips the llm", func(t *testing.T) {
		mock := providers.NewMockProvider(nil)
		e := NewExtractor(mock, "mock-model", nil)

		rels, err := e.DiscoverRelationships(ctx, controls[:1])
		require.NoError(t, err)
		assert.Nil(t, rels)
		assert.Empty(t, mock.Calls())
	})

	t.Run("custom threshold", func(t *testing.T) {
		mock := providers.NewMockProvider([]string{`[
			{"from_id": "APP.4.4.A19", "to_id": "A.13.1", "type": "MAPS_TO", "confidence": 0.4}
		]`})
		e := NewExtractor(mock, "mock-model", nil).WithMinConfidence(0.3)

		rels, err := e.DiscoverRelationships(ctx, controls)
		require.NoError(t, err)
		assert.Len(t, rels, 1)
	})
}
