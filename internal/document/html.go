package document

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/normgraph/normgraph/internal/types"
)

// Block-level elements that should produce line breaks in the
// extracted text.
var htmlBlockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "pre": true, "blockquote": true,
	"table": true, "ul": true, "ol": true, "br": true,
}

// loadHTML extracts the title and visible text from an HTML file.
func loadHTML(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.WrapError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, types.WrapError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("failed to parse HTML %s", path), err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript").Remove()

	// Insert breaks after block elements so goquery's text
	// concatenation keeps paragraph boundaries.
	var text strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			if node.Get(0).Type == html.TextNode {
				text.WriteString(node.Get(0).Data)
				return
			}
			walk(node)
			if htmlBlockTags[goquery.NodeName(node)] {
				text.WriteString("\n")
			}
		})
	}
	body := doc.Find("body")
	if body.Length() > 0 {
		walk(body)
	} else {
		walk(doc.Selection)
	}

	return &Document{
		Format: FormatHTML,
		Title:  title,
		Text:   normalizeWhitespace(text.String()),
	}, nil
}
