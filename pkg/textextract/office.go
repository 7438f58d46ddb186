package textextract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	MaxSheets    = 3
	MaxSheetRows = 200
	MaxSheetCols = 26 // A..Z
)

func extractDOCX(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := zip.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	for _, f := range reader.File {
		if f.Name != "word/document.xml" && path.Base(f.Name) != "document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		text, err := docxText(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}

		var b Builder
		b.Add(1, text)
		return b.Result(1, TypeDOCX), nil
	}
	return nil, fmt.Errorf("open DOCX: word/document.xml not found")
}

// docxText decodes the text runs of a WordprocessingML body. Paragraphs and
// breaks become newlines, tabs become spaces and entities are resolved.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var result strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				result.WriteByte(' ')
			case "br", "cr":
				result.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				result.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				result.Write(el)
			}
		}
	}

	lines := strings.Split(result.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func extractXLSX(data io.ReaderAt, size int64) (*ExtractedText, error) {
	f, err := excelize.OpenReader(io.NewSectionReader(data, 0, size))
	if err != nil {
		return nil, fmt.Errorf("open XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) > MaxSheets {
		sheets = sheets[:MaxSheets]
	}

	var b Builder
	for i, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		b.Add(i+1, FormatSheet(name, rows))
	}
	return b.Result(len(sheets), TypeXLSX), nil
}

// FormatSheet renders the A1:Z200 window of a sheet as comma-separated rows
// under a title line. Sheets without any cell text render as "".
func FormatSheet(title string, rows [][]string) string {
	if len(rows) > MaxSheetRows {
		rows = rows[:MaxSheetRows]
	}

	var lines []string
	for _, row := range rows {
		if len(row) > MaxSheetCols {
			row = row[:MaxSheetCols]
		}
		cells := make([]string, len(row))
		empty := true
		for i, c := range row {
			cells[i] = strings.TrimSpace(c)
			if cells[i] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		lines = append(lines, strings.Join(cells, ", "))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Sheet: " + title + "\n" + strings.Join(lines, "\n")
}
