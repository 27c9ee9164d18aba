package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/normgraph/normgraph/internal/document"
)

// Options controls chunk sizing. Sizes are in approximate tokens; the
// splitter uses a 4-characters-per-token approximation.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultOptions is the profile for documents with no better match.
var DefaultOptions = Options{ChunkSize: 512, ChunkOverlap: 64}

// ProfileFor returns the chunking profile for a document type.
// Standards with dense control structure get smaller chunks so a chunk
// rarely spans more than one control; prose whitepapers get larger
// ones.
func ProfileFor(docType document.Type) Options {
	switch docType {
	case document.TypeBSIGrundschutz, document.TypeISO27001:
		return Options{ChunkSize: 512, ChunkOverlap: 64}
	case document.TypeNISTCSF:
		return Options{ChunkSize: 384, ChunkOverlap: 48}
	case document.TypeWhitepaper:
		return Options{ChunkSize: 1024, ChunkOverlap: 128}
	default:
		return DefaultOptions
	}
}

// Chunk is one unit of text ready for embedding and extraction.
type Chunk struct {
	Index      int
	Text       string
	Section    string
	ControlIDs []string
	HasCode    bool
	Language   string
}

// Compliance control identifiers as printed in the standards:
// BSI IT-Grundschutz ("APP.4.4.A19"), ISO 27001 Annex A ("A.5.1"),
// NIST CSF ("PR.AC-1").
var (
	bsiControlRe  = regexp.MustCompile(`\b[A-Z]{3,4}(?:\.\d+)+\.A\d+\b`)
	isoControlRe  = regexp.MustCompile(`\bA\.\d{1,2}(?:\.\d{1,2})?\b`)
	nistControlRe = regexp.MustCompile(`\b(?:ID|PR|DE|RS|RC)\.[A-Z]{2}-\d+\b`)

	markdownHeadingRe = regexp.MustCompile(`^#{1,6}\s+\S`)
	numberedHeadingRe = regexp.MustCompile(`^\d+(?:\.\d+)+\s+\S`)

	codeBlockRe = regexp.MustCompile("(?s)```(\\w*)\\n(.*?)```")
)

// ControlIDs returns every compliance control identifier found in text,
// in order of first appearance, deduplicated.
func ControlIDs(text string) []string {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, re := range []*regexp.Regexp{bsiControlRe, nistControlRe, isoControlRe} {
		for _, id := range re.FindAllString(text, -1) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// isStructuralHeading reports whether a line starts a new section:
// a markdown heading, a numbered section, or a line that opens with a
// control identifier.
func isStructuralHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if markdownHeadingRe.MatchString(trimmed) || numberedHeadingRe.MatchString(trimmed) {
		return true
	}
	for _, re := range []*regexp.Regexp{bsiControlRe, nistControlRe, isoControlRe} {
		if loc := re.FindStringIndex(trimmed); loc != nil && loc[0] == 0 {
			return true
		}
	}
	return false
}

// headingText strips markdown markers from a heading line.
func headingText(line string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
}

// Processor splits document text into chunks.
type Processor interface {
	Chunk(text string, opts Options) ([]Chunk, error)
}

// DefaultProcessor implements Processor with structure-aware
// splitting: fenced code blocks become their own chunks, headings and
// control identifiers open new sections, and sections are size-split
// with overlap.
type DefaultProcessor struct{}

// NewProcessor creates a DefaultProcessor.
func NewProcessor() Processor {
	return &DefaultProcessor{}
}

type codeBlock struct {
	content  string
	language string
}

// Chunk splits text into chunks per the options.
func (p *DefaultProcessor) Chunk(text string, opts Options) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}, nil
	}
	if opts.ChunkSize <= 0 {
		opts = DefaultOptions
	}

	codeBlocks, remaining := extractCodeBlocks(text)

	chunks := make([]Chunk, 0)
	for _, block := range codeBlocks {
		chunks = append(chunks, Chunk{
			Text:       block.content,
			HasCode:    true,
			Language:   block.language,
			ControlIDs: ControlIDs(block.content),
		})
	}

	for _, section := range splitSections(remaining) {
		for _, piece := range splitBySize(section.body, opts) {
			chunks = append(chunks, Chunk{
				Text:       piece,
				Section:    section.heading,
				ControlIDs: ControlIDs(piece),
			})
		}
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks, nil
}

// extractCodeBlocks removes fenced code blocks, leaving a placeholder
// so the surrounding prose keeps its shape.
func extractCodeBlocks(text string) ([]codeBlock, string) {
	matches := codeBlockRe.FindAllStringSubmatch(text, -1)
	blocks := make([]codeBlock, 0, len(matches))
	for _, match := range matches {
		content := strings.TrimSpace(match[2])
		if content == "" {
			continue
		}
		blocks = append(blocks, codeBlock{content: content, language: match[1]})
	}
	return blocks, codeBlockRe.ReplaceAllString(text, "\n[code block]\n")
}

type section struct {
	heading string
	body    string
}

// splitSections breaks text at structural headings. Text before the
// first heading forms an unnamed section.
func splitSections(text string) []section {
	lines := strings.Split(text, "\n")

	sections := make([]section, 0)
	var current strings.Builder
	heading := ""

	flush := func() {
		body := strings.TrimSpace(current.String())
		if body != "" {
			sections = append(sections, section{heading: heading, body: body})
		}
		current.Reset()
	}

	for _, line := range lines {
		if isStructuralHeading(line) {
			flush()
			heading = headingText(line)
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	return sections
}

// prevRuneBoundary backs idx up to the start of the rune it lands
// inside, so byte-offset cuts never split a multi-byte character.
func prevRuneBoundary(s string, idx int) int {
	for idx > 0 && !utf8.RuneStart(s[idx]) {
		idx--
	}
	return idx
}

// splitBySize splits a section body into overlapping pieces at
// paragraph boundaries, approximating tokens as 4 characters.
func splitBySize(body string, opts Options) []string {
	maxChars := opts.ChunkSize * 4
	overlapChars := opts.ChunkOverlap * 4

	if len(body) <= maxChars {
		return []string{body}
	}

	paragraphs := strings.Split(body, "\n\n")

	pieces := make([]string, 0)
	var current strings.Builder
	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(para) > maxChars {
			piece := strings.TrimSpace(current.String())
			pieces = append(pieces, piece)
			current.Reset()
			if overlapChars > 0 && len(piece) > overlapChars {
				current.WriteString(piece[prevRuneBoundary(piece, len(piece)-overlapChars):])
				current.WriteString("\n\n")
			}
		}

		// A single paragraph longer than the chunk size is split
		// mid-paragraph.
		for len(para) > maxChars {
			cut := prevRuneBoundary(para, maxChars)
			if idx := strings.LastIndexByte(para[:maxChars], ' '); idx > maxChars/2 {
				cut = idx
			}
			pieces = append(pieces, strings.TrimSpace(current.String()+para[:cut]))
			current.Reset()
			para = strings.TrimSpace(para[cut:])
		}

		current.WriteString(para)
		current.WriteString("\n\n")
	}
	if piece := strings.TrimSpace(current.String()); piece != "" {
		pieces = append(pieces, piece)
	}
	return pieces
}
