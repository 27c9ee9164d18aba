package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/llm"
	"github.com/normgraph/normgraph/internal/observability"
	"github.com/normgraph/normgraph/internal/types"
)

// ControlItem is one control requirement extracted from a chunk.
type ControlItem struct {
	ID          string `json:"id" mapstructure:"id"`
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
	Level       string `json:"level" mapstructure:"level"`
	Domain      string `json:"domain" mapstructure:"domain"`
}

// Proposal is a relationship between two controls suggested by the
// discovery pass.
type Proposal struct {
	FromID     string  `json:"from_id" mapstructure:"from_id"`
	ToID       string  `json:"to_id" mapstructure:"to_id"`
	Type       string  `json:"type" mapstructure:"type"`
	Confidence float64 `json:"confidence" mapstructure:"confidence"`
}

// DefaultMinConfidence drops relationship proposals the model itself
// is unsure about.
const DefaultMinConfidence = 0.5

// Extractor runs the two LLM passes of ingestion: structured control
// extraction over chunks, and relationship discovery over the
// extracted controls.
type Extractor struct {
	provider      llm.Provider
	model         string
	minConfidence float64
	logger        *observability.TracedLogger
}

// NewExtractor creates an extractor bound to a provider and model.
func NewExtractor(provider llm.Provider, model string, logger *observability.TracedLogger) *Extractor {
	return &Extractor{
		provider:      provider,
		model:         model,
		minConfidence: DefaultMinConfidence,
		logger:        logger,
	}
}

// WithMinConfidence overrides the relationship confidence threshold.
func (e *Extractor) WithMinConfidence(min float64) *Extractor {
	e.minConfidence = min
	return e
}

const extractPrompt = `Extract every compliance control requirement from the text below.
The text comes from a %s document.

For each control return:
- id: the control identifier exactly as printed (e.g. "APP.4.4.A19", "A.5.1", "PR.AC-1"); empty if none is printed
- title: short control title
- description: what the control requires, one or two sentences
- level: requirement level if stated (e.g. "Basis", "Standard", "high") or empty
- domain: the topic area (e.g. "network", "access control") or empty

Text:
%s

Respond with a JSON array only. Return [] if the text contains no control requirements.`

// ExtractControls pulls control items out of one chunk of text.
// An empty result is normal for prose chunks.
func (e *Extractor) ExtractControls(ctx context.Context, text, docType string) ([]ControlItem, error) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Model: e.model,
		Messages: []llm.Message{
			llm.NewSystemMessage("You extract structured compliance controls from standards documents. Respond with JSON only."),
			llm.NewUserMessage(fmt.Sprintf(extractPrompt, docType, text)),
		},
	})
	if err != nil {
		return nil, types.WrapError(types.EXTRACTION_FAILED, "extraction completion failed", err)
	}

	raw, err := decodeJSONArray(resp.Message.Content)
	if err != nil {
		return nil, types.WrapError(types.EXTRACTION_FAILED,
			"extraction response was not a JSON array", err)
	}

	items := make([]ControlItem, 0, len(raw))
	for i, entry := range raw {
		var item ControlItem
		if err := weakDecode(entry, &item); err != nil {
			if e.logger != nil {
				e.logger.Warn(ctx, "skipping malformed control item", "index", i, "error", err)
			}
			continue
		}
		item.ID = strings.TrimSpace(item.ID)
		item.Title = strings.TrimSpace(item.Title)
		if item.ID == "" || item.Title == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

const discoverPrompt = `Below is a list of compliance controls extracted from one or more standards.
Propose relationships between them.

Allowed relationship types:
- IMPLEMENTS: one control satisfies the requirement of another
- REFERENCES: one control explicitly mentions another
- SUPERSEDES: one control replaces an older one
- RELATED_TO: controls cover overlapping topics
- PART_OF: one control is a sub-requirement of another
- MAPS_TO: controls from different frameworks express the same requirement

Controls:
%s

Respond with a JSON array only, each entry:
{"from_id": "...", "to_id": "...", "type": "...", "confidence": <0.0-1.0>}
Return [] when no relationship is defensible.`

// DiscoverRelationships proposes typed edges between the given
// controls. Proposals with unknown endpoints, invalid types, or
// below-threshold confidence are dropped.
func (e *Extractor) DiscoverRelationships(ctx context.Context, controls []ControlItem) ([]graph.Relationship, error) {
	if len(controls) < 2 {
		return nil, nil
	}

	var listing strings.Builder
	known := make(map[string]bool, len(controls))
	for _, c := range controls {
		known[c.ID] = true
		fmt.Fprintf(&listing, "- %s [%s]: %s\n", c.ID, c.Domain, c.Title)
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Model: e.model,
		Messages: []llm.Message{
			llm.NewSystemMessage("You map relationships between compliance controls. Respond with JSON only."),
			llm.NewUserMessage(fmt.Sprintf(discoverPrompt, listing.String())),
		},
	})
	if err != nil {
		return nil, types.WrapError(types.EXTRACTION_FAILED, "relationship discovery failed", err)
	}

	raw, err := decodeJSONArray(resp.Message.Content)
	if err != nil {
		return nil, types.WrapError(types.EXTRACTION_FAILED,
			"relationship response was not a JSON array", err)
	}

	rels := make([]graph.Relationship, 0, len(raw))
	for i, entry := range raw {
		var proposal Proposal
		if err := weakDecode(entry, &proposal); err != nil {
			if e.logger != nil {
				e.logger.Warn(ctx, "skipping malformed relationship proposal", "index", i, "error", err)
			}
			continue
		}

		relType := graph.RelationType(strings.ToUpper(strings.TrimSpace(proposal.Type)))
		switch {
		case !known[proposal.FromID] || !known[proposal.ToID]:
			continue
		case proposal.FromID == proposal.ToID:
			continue
		case !relType.IsValid():
			continue
		case proposal.Confidence < e.minConfidence:
			continue
		}

		rels = append(rels, graph.Relationship{
			FromID:     proposal.FromID,
			ToID:       proposal.ToID,
			Type:       relType,
			Confidence: proposal.Confidence,
		})
	}
	return rels, nil
}

// decodeJSONArray extracts the JSON payload from an LLM response and
// parses it as an array of objects.
func decodeJSONArray(response string) ([]map[string]any, error) {
	payload, err := llm.ExtractJSON(response)
	if err != nil {
		return nil, err
	}
	var raw []map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// weakDecode maps a loosely typed LLM object onto a struct, tolerating
// numbers-as-strings and similar sloppiness.
func weakDecode(input map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
