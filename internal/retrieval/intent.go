package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/normgraph/normgraph/internal/chunker"
	"github.com/normgraph/normgraph/internal/llm"
	"github.com/normgraph/normgraph/internal/observability"
)

// Intent classifies what a query is asking for. The intent picks the
// retrieval plan: weights, graph depth, and relation filters.
type Intent string

const (
	// IntentControlLookup asks about one or more specific controls.
	IntentControlLookup Intent = "control_lookup"
	// IntentMapping asks how controls across frameworks correspond.
	IntentMapping Intent = "mapping"
	// IntentExplanation asks what a requirement means or how to meet it.
	IntentExplanation Intent = "explanation"
	// IntentGapAnalysis asks what is missing or not covered.
	IntentGapAnalysis Intent = "gap_analysis"
	// IntentGeneral is everything else.
	IntentGeneral Intent = "general"
)

// IsValid reports whether the intent is a known value.
func (i Intent) IsValid() bool {
	switch i {
	case IntentControlLookup, IntentMapping, IntentExplanation, IntentGapAnalysis, IntentGeneral:
		return true
	}
	return false
}

// Analysis is the outcome of intent analysis over one query.
type Analysis struct {
	Intent     Intent   `json:"intent"`
	ControlIDs []string `json:"control_ids,omitempty"`
	Frameworks []string `json:"frameworks,omitempty"`
	Confidence float64  `json:"confidence"`
	// Method records how the analysis was produced: "llm" or "rule".
	Method string `json:"method"`
}

// Analyzer classifies queries ahead of retrieval.
type Analyzer interface {
	// Analyze never fails: when the LLM path is unavailable or returns
	// garbage it falls back to rule-based analysis.
	Analyze(ctx context.Context, query string) Analysis
}

// LLMAnalyzer implements Analyzer with an LLM classification call and
// a deterministic rule fallback.
type LLMAnalyzer struct {
	provider llm.Provider
	model    string
	logger   *observability.TracedLogger
}

// NewAnalyzer creates an analyzer. A nil provider disables the LLM
// path; every query is then analyzed by rules.
func NewAnalyzer(provider llm.Provider, model string, logger *observability.TracedLogger) *LLMAnalyzer {
	return &LLMAnalyzer{provider: provider, model: model, logger: logger}
}

const intentPrompt = `Classify the intent of a question about compliance standards.

Intents:
- control_lookup: asks about specific named controls
- mapping: asks how controls or frameworks correspond to each other
- explanation: asks what a requirement means or how to fulfil it
- gap_analysis: asks what is missing, uncovered, or non-compliant
- general: anything else

Question: %s

Respond with JSON only:
{"intent": "...", "control_ids": ["..."], "frameworks": ["bsi_grundschutz"|"iso_27001"|"nist_csf"], "confidence": <0.0-1.0>}`

type intentPayload struct {
	Intent     string   `json:"intent"`
	ControlIDs []string `json:"control_ids"`
	Frameworks []string `json:"frameworks"`
	Confidence float64  `json:"confidence"`
}

// Analyze classifies one query.
func (a *LLMAnalyzer) Analyze(ctx context.Context, query string) Analysis {
	if a.provider == nil {
		return ruleAnalyze(query)
	}

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Model: a.model,
		Messages: []llm.Message{
			llm.NewSystemMessage("You classify compliance questions. Respond with JSON only."),
			llm.NewUserMessage(fmt.Sprintf(intentPrompt, query)),
		},
	})
	if err != nil {
		if a.logger != nil {
			a.logger.Warn(ctx, "intent analysis fell back to rules", "error", err)
		}
		return ruleAnalyze(query)
	}

	payload, err := llm.ExtractJSONAs[intentPayload](resp.Message.Content)
	if err != nil || !Intent(payload.Intent).IsValid() {
		if a.logger != nil {
			a.logger.Warn(ctx, "unparseable intent response, fell back to rules",
				"error", err, "intent", payload.Intent)
		}
		return ruleAnalyze(query)
	}

	analysis := Analysis{
		Intent:     Intent(payload.Intent),
		ControlIDs: payload.ControlIDs,
		Frameworks: payload.Frameworks,
		Confidence: payload.Confidence,
		Method:     "llm",
	}
	// The regexes catch identifiers the model missed.
	for _, id := range chunker.ControlIDs(query) {
		if !containsString(analysis.ControlIDs, id) {
			analysis.ControlIDs = append(analysis.ControlIDs, id)
		}
	}
	return analysis
}

var frameworkKeywords = []struct {
	framework string
	keywords  []string
}{
	{"bsi_grundschutz", []string{"bsi", "grundschutz", "it-grundschutz"}},
	{"iso_27001", []string{"iso 27001", "iso27001", "annex a", "iso"}},
	{"nist_csf", []string{"nist", "csf", "cybersecurity framework"}},
}

// ruleAnalyze is the deterministic fallback: keyword heuristics plus
// the control identifier regexes.
func ruleAnalyze(query string) Analysis {
	lower := strings.ToLower(query)
	controlIDs := chunker.ControlIDs(query)

	var frameworks []string
	for _, fk := range frameworkKeywords {
		for _, kw := range fk.keywords {
			if hasKeyword(lower, kw) {
				frameworks = append(frameworks, fk.framework)
				break
			}
		}
	}

	analysis := Analysis{
		ControlIDs: controlIDs,
		Frameworks: frameworks,
		Method:     "rule",
	}

	switch {
	case containsAny(lower, "map", "maps to", "correspond", "equivalent", "counterpart"):
		analysis.Intent = IntentMapping
		analysis.Confidence = 0.6
	case containsAny(lower, "gap", "missing", "not covered", "uncovered", "coverage"):
		analysis.Intent = IntentGapAnalysis
		analysis.Confidence = 0.6
	case len(controlIDs) > 0:
		analysis.Intent = IntentControlLookup
		analysis.Confidence = 0.7
	case containsAny(lower, "explain", "what does", "what is", "how do", "how to", "why", "describe"):
		analysis.Intent = IntentExplanation
		analysis.Confidence = 0.5
	default:
		analysis.Intent = IntentGeneral
		analysis.Confidence = 0.4
	}
	return analysis
}

// hasKeyword matches single-word keywords against whole tokens, so
// "iso" does not fire inside "comparison". Multi-word keywords use
// plain substring matching.
func hasKeyword(lower, kw string) bool {
	if strings.ContainsRune(kw, ' ') {
		return strings.Contains(lower, kw)
	}
	for _, token := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '-'
	}) {
		if token == kw {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
