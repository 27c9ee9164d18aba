package document

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/normgraph/normgraph/internal/types"
)

// loadText reads plain text or markdown as-is. Markdown structure is
// left intact for the chunker's heading detection.
func loadText(path string, format Format) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("failed to read %s", path), err)
	}

	title := ""
	if format == FormatMarkdown {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "# ") {
				title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
				break
			}
		}
	}

	return &Document{
		Format: format,
		Title:  title,
		Text:   strings.TrimSpace(string(data)),
	}, nil
}

// loadXML flattens an XML document to its character data, one element's
// text per line.
func loadXML(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.WrapError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	var text strings.Builder
	decoder := xml.NewDecoder(f)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, types.WrapError(types.DOC_LOAD_FAILED,
				fmt.Sprintf("malformed XML in %s", path), err)
		}
		if cd, ok := token.(xml.CharData); ok {
			chunk := strings.TrimSpace(string(cd))
			if chunk != "" {
				text.WriteString(chunk)
				text.WriteByte('\n')
			}
		}
	}

	return &Document{
		Format: FormatXML,
		Text:   normalizeWhitespace(text.String()),
	}, nil
}
