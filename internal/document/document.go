package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/normgraph/normgraph/internal/types"
)

// Format is the on-disk file format of a source document.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatXLSX     Format = "xlsx"
	FormatXML      Format = "xml"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// Document is the loaded, format-neutral form of a source file.
type Document struct {
	// Source is the base filename, used as the natural key everywhere
	// downstream (catalog, graph, vector metadata).
	Source string
	Path   string
	Format Format
	Title  string
	Pages  int
	Text   string
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".docx":
		return FormatDOCX, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xml":
		return FormatXML, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".txt", ".text":
		return FormatText, nil
	default:
		return "", types.NewError(types.DOC_UNSUPPORTED,
			fmt.Sprintf("unsupported file extension: %s", filepath.Ext(path)))
	}
}

// Load reads a file and extracts its text according to the detected
// format.
func Load(ctx context.Context, path string) (*Document, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.DOC_LOAD_FAILED, "context canceled", err)
	}

	var doc *Document
	switch format {
	case FormatPDF:
		doc, err = loadPDF(path)
	case FormatHTML:
		doc, err = loadHTML(path)
	case FormatDOCX:
		doc, err = loadDOCX(path)
	case FormatXLSX:
		doc, err = loadXLSX(path)
	case FormatXML:
		doc, err = loadXML(path)
	case FormatMarkdown, FormatText:
		doc, err = loadText(path, format)
	}
	if err != nil {
		return nil, err
	}

	doc.Source = filepath.Base(path)
	doc.Path = path
	if strings.TrimSpace(doc.Text) == "" {
		return nil, types.NewError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("%s contains no extractable text", doc.Source))
	}
	if doc.Title == "" {
		doc.Title = titleFromFilename(doc.Source)
	}
	return doc, nil
}

// titleFromFilename derives a display title for documents that carry
// none of their own, e.g. "bsi-app-4-4.pdf" becomes "Bsi App 4 4".
func titleFromFilename(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(base)
	return cases.Title(language.English).String(base)
}

// normalizeWhitespace collapses runs of blanks and trims every line.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
