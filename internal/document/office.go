package document

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/normgraph/normgraph/internal/types"
)

// DOCX and XLSX are zip archives of XML parts. No Office library
// appears in the ecosystem we build on, so the two readers below walk
// the XML directly: paragraph text runs for DOCX, shared strings plus
// sheet cells for XLSX.

// loadDOCX extracts paragraph text from word/document.xml.
func loadDOCX(path string) (*Document, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, types.WrapError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("failed to open %s", path), err)
	}
	defer archive.Close()

	part, err := openZipPart(archive, "word/document.xml")
	if err != nil {
		return nil, err
	}
	defer part.Close()

	var text strings.Builder
	decoder := xml.NewDecoder(part)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, types.WrapError(types.DOC_LOAD_FAILED,
				fmt.Sprintf("malformed document XML in %s", path), err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				var run string
				if err := decoder.DecodeElement(&run, &t); err != nil {
					return nil, types.WrapError(types.DOC_LOAD_FAILED,
						fmt.Sprintf("malformed text run in %s", path), err)
				}
				text.WriteString(run)
			case "tab":
				text.WriteByte('\t')
			case "br":
				text.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				text.WriteByte('\n')
			}
		}
	}

	return &Document{
		Format: FormatDOCX,
		Text:   normalizeWhitespace(text.String()),
	}, nil
}

// loadXLSX extracts cell text from every worksheet, one row per line
// with tab-separated cells.
func loadXLSX(path string) (*Document, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, types.WrapError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("failed to open %s", path), err)
	}
	defer archive.Close()

	shared, err := readSharedStrings(archive)
	if err != nil {
		return nil, err
	}

	sheetNames := make([]string, 0)
	for _, f := range archive.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml") {
			sheetNames = append(sheetNames, f.Name)
		}
	}
	sort.Strings(sheetNames)
	if len(sheetNames) == 0 {
		return nil, types.NewError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("%s contains no worksheets", path))
	}

	var text strings.Builder
	for _, name := range sheetNames {
		if err := readWorksheet(archive, name, shared, &text); err != nil {
			return nil, err
		}
		text.WriteByte('\n')
	}

	return &Document{
		Format: FormatXLSX,
		Pages:  len(sheetNames),
		Text:   normalizeWhitespace(text.String()),
	}, nil
}

func openZipPart(archive *zip.ReadCloser, name string) (io.ReadCloser, error) {
	for _, f := range archive.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, types.WrapError(types.DOC_LOAD_FAILED,
					fmt.Sprintf("failed to open archive part %s", name), err)
			}
			return rc, nil
		}
	}
	return nil, types.NewError(types.DOC_LOAD_FAILED,
		fmt.Sprintf("archive part %s not found", name))
}

func readSharedStrings(archive *zip.ReadCloser) ([]string, error) {
	part, err := openZipPart(archive, "xl/sharedStrings.xml")
	if err != nil {
		// Workbooks with only inline or numeric cells have no shared
		// string table.
		return nil, nil
	}
	defer part.Close()

	var table struct {
		Items []struct {
			Text  string   `xml:"t"`
			Runs  []string `xml:"r>t"`
		} `xml:"si"`
	}
	if err := xml.NewDecoder(part).Decode(&table); err != nil {
		return nil, types.WrapError(types.DOC_LOAD_FAILED, "malformed shared strings", err)
	}

	strs := make([]string, len(table.Items))
	for i, item := range table.Items {
		if item.Text != "" {
			strs[i] = item.Text
			continue
		}
		strs[i] = strings.Join(item.Runs, "")
	}
	return strs, nil
}

func readWorksheet(archive *zip.ReadCloser, name string, shared []string, out *strings.Builder) error {
	part, err := openZipPart(archive, name)
	if err != nil {
		return err
	}
	defer part.Close()

	var sheet struct {
		Rows []struct {
			Cells []struct {
				Type   string `xml:"t,attr"`
				Value  string `xml:"v"`
				Inline string `xml:"is>t"`
			} `xml:"c"`
		} `xml:"sheetData>row"`
	}
	if err := xml.NewDecoder(part).Decode(&sheet); err != nil {
		return types.WrapError(types.DOC_LOAD_FAILED,
			fmt.Sprintf("malformed worksheet %s", name), err)
	}

	for _, row := range sheet.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			switch cell.Type {
			case "s":
				var idx int
				if _, err := fmt.Sscanf(cell.Value, "%d", &idx); err == nil &&
					idx >= 0 && idx < len(shared) {
					cells = append(cells, shared[idx])
				}
			case "inlineStr":
				cells = append(cells, cell.Inline)
			default:
				cells = append(cells, cell.Value)
			}
		}
		out.WriteString(strings.Join(cells, "\t"))
		out.WriteByte('\n')
	}
	return nil
}
