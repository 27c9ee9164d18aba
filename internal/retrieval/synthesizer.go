package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/normgraph/normgraph/internal/llm"
	"github.com/normgraph/normgraph/internal/observability"
	"github.com/normgraph/normgraph/internal/types"
)

// Citation points an answer at the material it came from.
type Citation struct {
	Source  string `json:"source"`
	Section string `json:"section,omitempty"`
}

// Response is the answer to one query.
type Response struct {
	Query      string        `json:"query"`
	Intent     Intent        `json:"intent"`
	Answer     string        `json:"answer"`
	Citations  []Citation    `json:"citations,omitempty"`
	Confidence float64       `json:"confidence"`
	Results    int           `json:"results"`
	Cached     bool          `json:"cached,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// NoResultsAnswer is returned verbatim when retrieval finds nothing;
// the LLM is not called in that case.
const NoResultsAnswer = "No relevant material was found in the ingested documents. " +
	"Ingest the relevant standard first, or rephrase the question."

// Synthesizer turns ranked retrieval results into an answer.
type Synthesizer struct {
	provider llm.Provider
	model    string
	logger   *observability.TracedLogger
}

// NewSynthesizer creates a synthesizer bound to a provider and model.
func NewSynthesizer(provider llm.Provider, model string, logger *observability.TracedLogger) *Synthesizer {
	return &Synthesizer{provider: provider, model: model, logger: logger}
}

const synthesisPrompt = `Answer the question using only the numbered excerpts below.
Cite the excerpts you rely on as [1], [2], and so on. If the excerpts do
not contain the answer, say so.

Excerpts:
%s

Question: %s`

// Synthesize builds the context block, prompts the model, and extracts
// citations from the answer's [n] markers.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, analysis Analysis, results []Result) (*Response, error) {
	if len(results) == 0 {
		return &Response{
			Query:  query,
			Intent: analysis.Intent,
			Answer: NoResultsAnswer,
		}, nil
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model: s.model,
		Messages: []llm.Message{
			llm.NewSystemMessage("You answer questions about compliance standards strictly from the provided excerpts."),
			llm.NewUserMessage(fmt.Sprintf(synthesisPrompt, contextBlock(results), query)),
		},
	})
	if err != nil {
		return nil, types.WrapError(types.SYNTHESIS_FAILED, "answer synthesis failed", err)
	}

	answer := strings.TrimSpace(resp.Message.Content)
	citations, cited := extractCitations(answer, results)

	return &Response{
		Query:      query,
		Intent:     analysis.Intent,
		Answer:     answer,
		Citations:  citations,
		Confidence: confidence(results, cited),
		Results:    len(results),
	}, nil
}

// contextBlock renders results as numbered, source-labelled excerpts.
func contextBlock(results []Result) string {
	var sb strings.Builder
	for i, res := range results {
		label := res.Source
		if res.Section != "" {
			label += ", " + res.Section
		}
		fmt.Fprintf(&sb, "[%d] (%s)\n%s\n\n", i+1, label, res.Content)
	}
	return strings.TrimSpace(sb.String())
}

var citationMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations resolves [n] markers in the answer against the
// excerpt numbering, deduplicated in order of first mention.
func extractCitations(answer string, results []Result) ([]Citation, []int) {
	seen := make(map[int]bool)
	var citations []Citation
	var indices []int
	for _, match := range citationMarkerRe.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(results) {
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		indices = append(indices, n-1)
		citations = append(citations, Citation{
			Source:  results[n-1].Source,
			Section: results[n-1].Section,
		})
	}
	return citations, indices
}

// confidence is the mean hybrid score of the cited results, or of the
// top three when the answer cites nothing.
func confidence(results []Result, cited []int) float64 {
	if len(cited) == 0 {
		n := len(results)
		if n > 3 {
			n = 3
		}
		cited = make([]int, n)
		for i := range cited {
			cited[i] = i
		}
	}
	var sum float64
	for _, idx := range cited {
		sum += results[idx].Score
	}
	return sum / float64(len(cited))
}
