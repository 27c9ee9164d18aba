package document

import (
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/normgraph/normgraph/internal/types"
)

// loadPDF extracts text from every page of a PDF. Page content streams
// are decoded with a minimal text-operator reader; layout is not
// reconstructed, which is fine for chunking prose standards.
func loadPDF(path string) (*Document, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, types.WrapError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("failed to read PDF %s", path), err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, types.WrapError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("invalid PDF %s", path), err)
	}

	var text strings.Builder
	for page := 1; page <= pdfCtx.PageCount; page++ {
		reader, err := pdfcpu.ExtractPageContent(pdfCtx, page)
		if err != nil {
			return nil, types.WrapError(types.DOC_LOAD_FAILED,
				fmt.Sprintf("failed to extract page %d of %s", page, path), err)
		}
		if reader == nil {
			continue
		}
		content, err := io.ReadAll(reader)
		if err != nil {
			return nil, types.WrapError(types.DOC_LOAD_FAILED,
				fmt.Sprintf("failed to read page %d of %s", page, path), err)
		}
		text.WriteString(decodeContentStreamText(content))
		text.WriteString("\n\n")
	}

	title := ""
	if pdfCtx.Title != "" {
		title = pdfCtx.Title
	}

	return &Document{
		Format: FormatPDF,
		Title:  title,
		Pages:  pdfCtx.PageCount,
		Text:   normalizeWhitespace(text.String()),
	}, nil
}

// decodeContentStreamText pulls the literal strings shown by Tj, TJ, '
// and " operators out of a page content stream. Text positioning
// operators (Td, TD, T*) become line breaks.
func decodeContentStreamText(content []byte) string {
	var (
		out     strings.Builder
		pending []string
	)

	flush := func() {
		for _, s := range pending {
			out.WriteString(s)
		}
		pending = pending[:0]
	}

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '(':
			s, next := parseLiteralString(content, i)
			pending = append(pending, s)
			i = next

		case c == '<' && i+1 < len(content) && content[i+1] != '<':
			// Hex strings carry encoded glyph IDs more often than
			// text; skip their bytes but keep stream position.
			_, next := parseHexString(content, i)
			i = next

		case c == '%':
			for i < len(content) && content[i] != '\n' {
				i++
			}

		case isOperatorByte(c):
			op, next := parseOperator(content, i)
			switch op {
			case "Tj", "TJ", "'", "\"":
				flush()
				out.WriteByte(' ')
			case "Td", "TD", "T*", "ET":
				pending = pending[:0]
				out.WriteByte('\n')
			}
			i = next

		default:
			i++
		}
	}
	return out.String()
}

// parseLiteralString reads a PDF literal string starting at the opening
// paren, handling escapes and balanced nested parens.
func parseLiteralString(content []byte, start int) (string, int) {
	var s strings.Builder
	depth := 0
	i := start
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			if i+1 < len(content) {
				switch content[i+1] {
				case 'n':
					s.WriteByte('\n')
				case 't':
					s.WriteByte('\t')
				case 'r', 'b', 'f':
					// Ignore.
				default:
					s.WriteByte(content[i+1])
				}
				i += 2
				continue
			}
			i++
		case '(':
			if depth > 0 {
				s.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			if depth == 0 {
				return s.String(), i + 1
			}
			s.WriteByte(c)
			i++
		default:
			s.WriteByte(c)
			i++
		}
	}
	return s.String(), i
}

func parseHexString(content []byte, start int) (string, int) {
	i := start + 1
	for i < len(content) && content[i] != '>' {
		i++
	}
	if i < len(content) {
		i++
	}
	return "", i
}

func isOperatorByte(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '\'' || c == '"' || c == '*'
}

func parseOperator(content []byte, start int) (string, int) {
	i := start
	for i < len(content) && isOperatorByte(content[i]) {
		i++
	}
	return string(content[start:i]), i
}
