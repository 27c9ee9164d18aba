package document

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/normgraph/normgraph/internal/llm"
	"github.com/normgraph/normgraph/internal/observability"
	"github.com/normgraph/normgraph/internal/types"
)

// Type is the compliance framework a document belongs to.
type Type string

const (
	TypeBSIGrundschutz Type = "bsi_grundschutz"
	TypeISO27001       Type = "iso_27001"
	TypeNISTCSF        Type = "nist_csf"
	TypeWhitepaper     Type = "whitepaper"
	TypeUnknown        Type = "unknown"
)

// IsValid reports whether t is a known document type.
func (t Type) IsValid() bool {
	switch t {
	case TypeBSIGrundschutz, TypeISO27001, TypeNISTCSF, TypeWhitepaper, TypeUnknown:
		return true
	}
	return false
}

// Classification is the outcome of classifying a document.
type Classification struct {
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`
	// Method records which pass decided: "rule" or "llm".
	Method string `json:"method"`
}

//go:embed rules.yaml
var defaultRulesYAML []byte

// classifyExcerptLen bounds how much document text the rule patterns
// and the LLM prompt see.
const classifyExcerptLen = 4000

type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Type            string   `yaml:"type"`
	FilePatterns    []string `yaml:"file_patterns"`
	ContentPatterns []string `yaml:"content_patterns"`
	MinMatches      int      `yaml:"min_matches"`
}

type compiledRule struct {
	docType         Type
	filePatterns    []*regexp.Regexp
	contentPatterns []*regexp.Regexp
	minMatches      int
}

// Classifier assigns a document type using the rule table first and an
// LLM fallback for documents no rule recognizes. The LLM is optional;
// without it unmatched documents classify as unknown.
type Classifier struct {
	rules    []compiledRule
	provider llm.Provider
	model    string
	logger   *observability.TracedLogger
}

// NewClassifier builds a classifier with the embedded default rules.
// provider may be nil to disable the LLM fallback.
func NewClassifier(provider llm.Provider, model string, logger *observability.TracedLogger) (*Classifier, error) {
	rules, err := parseRules(defaultRulesYAML)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		rules:    rules,
		provider: provider,
		model:    model,
		logger:   logger,
	}, nil
}

// LoadRules replaces the rule table with one read from a YAML file.
func (c *Classifier) LoadRules(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.WrapError(types.DOC_CLASSIFY_FAILED,
			fmt.Sprintf("failed to read rules file %s", path), err)
	}
	rules, err := parseRules(data)
	if err != nil {
		return err
	}
	c.rules = rules
	return nil
}

func parseRules(data []byte) ([]compiledRule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, types.WrapError(types.DOC_CLASSIFY_FAILED, "malformed rules YAML", err)
	}

	rules := make([]compiledRule, 0, len(file.Rules))
	for _, spec := range file.Rules {
		docType := Type(spec.Type)
		if !docType.IsValid() || docType == TypeUnknown {
			return nil, types.NewError(types.DOC_CLASSIFY_FAILED,
				fmt.Sprintf("rule has invalid document type %q", spec.Type))
		}
		rule := compiledRule{docType: docType, minMatches: spec.MinMatches}
		if rule.minMatches <= 0 {
			rule.minMatches = 1
		}
		for _, p := range spec.FilePatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, types.WrapError(types.DOC_CLASSIFY_FAILED,
					fmt.Sprintf("invalid file pattern %q", p), err)
			}
			rule.filePatterns = append(rule.filePatterns, re)
		}
		for _, p := range spec.ContentPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, types.WrapError(types.DOC_CLASSIFY_FAILED,
					fmt.Sprintf("invalid content pattern %q", p), err)
			}
			rule.contentPatterns = append(rule.contentPatterns, re)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Classify runs the rule pass and, when nothing matches, the LLM
// fallback. The returned Classification is never an error for
// unrecognized documents; those come back as unknown.
func (c *Classifier) Classify(ctx context.Context, doc *Document) (Classification, error) {
	excerpt := doc.Text
	if len(excerpt) > classifyExcerptLen {
		cut := classifyExcerptLen
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut]
	}

	if result, ok := c.classifyByRules(doc.Source, excerpt); ok {
		return result, nil
	}

	if c.provider == nil {
		return Classification{Type: TypeUnknown, Method: "rule"}, nil
	}

	result, err := c.classifyByLLM(ctx, doc.Source, excerpt)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn(ctx, "llm classification failed, treating document as unknown",
				"source", doc.Source, "error", err)
		}
		return Classification{Type: TypeUnknown, Method: "llm"}, nil
	}
	return result, nil
}

func (c *Classifier) classifyByRules(source, excerpt string) (Classification, bool) {
	bestMatches := 0
	var best Classification

	for _, rule := range c.rules {
		matches := 0
		for _, re := range rule.filePatterns {
			if re.MatchString(source) {
				matches++
			}
		}
		for _, re := range rule.contentPatterns {
			if re.MatchString(excerpt) {
				matches++
			}
		}
		if matches < rule.minMatches || matches <= bestMatches {
			continue
		}
		total := len(rule.filePatterns) + len(rule.contentPatterns)
		confidence := float64(matches) / float64(total)
		if confidence > 0.95 {
			confidence = 0.95
		}
		bestMatches = matches
		best = Classification{Type: rule.docType, Confidence: confidence, Method: "rule"}
	}

	return best, bestMatches > 0
}

const classifyPrompt = `Classify the following compliance document excerpt.

Filename: %s

Excerpt:
%s

Respond with JSON only:
{"type": "<bsi_grundschutz|iso_27001|nist_csf|whitepaper|unknown>", "confidence": <0.0-1.0>}`

type llmClassification struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

func (c *Classifier) classifyByLLM(ctx context.Context, source, excerpt string) (Classification, error) {
	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Model: c.model,
		Messages: []llm.Message{
			llm.NewSystemMessage("You classify information-security compliance documents. Respond with JSON only."),
			llm.NewUserMessage(fmt.Sprintf(classifyPrompt, source, excerpt)),
		},
		MaxTokens: 100,
	})
	if err != nil {
		return Classification{}, types.WrapError(types.DOC_CLASSIFY_FAILED,
			"classification completion failed", err)
	}

	parsed, err := llm.ExtractJSONAs[llmClassification](resp.Message.Content)
	if err != nil {
		return Classification{}, types.WrapError(types.DOC_CLASSIFY_FAILED,
			"classification response was not valid JSON", err)
	}

	docType := Type(strings.TrimSpace(parsed.Type))
	if !docType.IsValid() {
		docType = TypeUnknown
	}
	confidence := parsed.Confidence
	if confidence < 0 || confidence > 1 {
		confidence = 0
	}
	return Classification{Type: docType, Confidence: confidence, Method: "llm"}, nil
}
