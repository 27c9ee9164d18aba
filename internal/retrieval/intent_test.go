package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/normgraph/normgraph/internal/llm/providers"
)

func TestRuleAnalyze(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  Intent
	}{
		{"control lookup", "What does APP.4.4.A19 require?", IntentControlLookup},
		{"mapping", "Which ISO controls map to BSI network segmentation?", IntentMapping},
		{"gap analysis", "What is missing from our NIST coverage?", IntentGapAnalysis},
		{"explanation", "Explain network segmentation requirements", IntentExplanation},
		{"general", "kubernetes hardening", IntentGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analysis := ruleAnalyze(tc.query)
			assert.Equal(t, tc.want, analysis.Intent)
			assert.Equal(t, "rule", analysis.Method)
		})
	}

	t.Run("extracts control ids and frameworks", func(t *testing.T) {
		analysis := ruleAnalyze("How does BSI APP.4.4.A19 relate to A.13.1?")
		assert.Contains(t, analysis.ControlIDs, "APP.4.4.A19")
		assert.Contains(t, analysis.ControlIDs, "A.13.1")
		assert.Contains(t, analysis.Frameworks, "bsi_grundschutz")
	})

	t.Run("iso keyword does not fire inside words", func(t *testing.T) {
		analysis := ruleAnalyze("a comparison of hardening guides")
		assert.NotContains(t, analysis.Frameworks, "iso_27001")
	})
}

func TestAnalyzeLLMPath(t *testing.T) {
	ctx := context.Background()

	t.Run("uses llm classification", func(t *testing.T) {
		mock := providers.NewMockProvider([]string{
			`{"intent": "mapping", "control_ids": ["A.13.1"], "frameworks": ["iso_27001"], "confidence": 0.9}`,
		})
		a := NewAnalyzer(mock, "mock-model", nil)

		analysis := a.Analyze(ctx, "Which BSI control matches A.13.1?")
		assert.Equal(t, IntentMapping, analysis.Intent)
		assert.Equal(t, "llm", analysis.Method)
		assert.InDelta(t, 0.9, analysis.Confidence, 0.001)
	})

	t.Run("regex supplements missed identifiers", func(t *testing.T) {
		mock := providers.NewMockProvider([]string{
			`{"intent": "control_lookup", "control_ids": [], "confidence": 0.8}`,
		})
		a := NewAnalyzer(mock, "mock-model", nil)

		analysis := a.Analyze(ctx, "What does APP.4.4.A19 require?")
		assert.Contains(t, analysis.ControlIDs, "APP.4.4.A19")
	})

	t.Run("provider failure falls back to rules", func(t *testing.T) {
		mock := providers.NewMockProvider(nil)
		mock.FailWith(errors.New("unavailable"))
		a := NewAnalyzer(mock, "mock-model", nil)

		analysis := a.Analyze(ctx, "What does APP.4.4.A19 require?")
		assert.Equal(t, IntentControlLookup, analysis.Intent)
		assert.Equal(t, "rule", analysis.Method)
	})

	t.Run("invalid intent falls back to rules", func(t *testing.T) {
		mock := providers.NewMockProvider([]string{`{"intent": "banana", "confidence": 1.0}`})
		a := NewAnalyzer(mock, "mock-model", nil)

		analysis := a.Analyze(ctx, "anything")
		assert.Equal(t, "rule", analysis.Method)
	})

	t.Run("nil provider is rule-only", func(t *testing.T) {
		a := NewAnalyzer(nil, "", nil)
		analysis := a.Analyze(ctx, "explain something")
		assert.Equal(t, "rule", analysis.Method)
	})
}
