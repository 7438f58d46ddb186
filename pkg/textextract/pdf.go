package textextract

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFText reads the text layer page by page with the plain-text decoder.
func PDFText(data io.ReaderAt, size int64) (out *ExtractedText, err error) {
	defer recoverPDF(&err)

	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var b Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.Add(i, text)
	}
	return b.Result(numPages, TypePDF), nil
}

// PDFRowText rebuilds each page from positioned text rows. It is slower than
// PDFText but copes with content streams the plain decoder gives up on.
func PDFRowText(data io.ReaderAt, size int64) (out *ExtractedText, err error) {
	defer recoverPDF(&err)

	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var b Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d rows: %w", i, err)
		}
		var lines []string
		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
			}
			if s := strings.TrimSpace(line.String()); s != "" {
				lines = append(lines, s)
			}
		}
		b.Add(i, strings.Join(lines, "\n"))
	}
	return b.Result(numPages, TypePDF), nil
}

// The pdf reader panics on some malformed inputs.
func recoverPDF(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("decode PDF: %v", r)
	}
}
