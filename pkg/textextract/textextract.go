package textextract

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	TypePDF  = "pdf"
	TypeDOCX = "docx"
	TypeXLSX = "xlsx"
	TypeTXT  = "txt"
)

// ExtractedText is the plain text of a document. Spans mark where each
// page (or slide, or sheet) begins, as rune offsets into Content.
type ExtractedText struct {
	Content  string
	Pages    int
	Spans    []PageSpan
	Metadata map[string]string
}

type PageSpan struct {
	Page   int
	Offset int
}

// PageAt returns the 1-based page containing the rune offset, or 0 when the
// text carries no page information.
func (e *ExtractedText) PageAt(offset int) int {
	page := 0
	for _, s := range e.Spans {
		if s.Offset > offset {
			break
		}
		page = s.Page
	}
	return page
}

// NormalizeType maps an extension or mime type to one of the Type constants.
func NormalizeType(fileType string) string {
	t := strings.ToLower(strings.TrimSpace(fileType))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case ".pdf", "pdf", "application/pdf":
		return TypePDF
	case ".docx", "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return TypeDOCX
	case ".xlsx", "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return TypeXLSX
	case ".txt", "txt", ".md", ".csv", "text/plain", "text/markdown", "text/csv":
		return TypeTXT
	}
	if strings.HasPrefix(t, "text/") {
		return TypeTXT
	}
	return ""
}

func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch NormalizeType(fileType) {
	case TypePDF:
		return PDFText(data, size)
	case TypeDOCX:
		return extractDOCX(data, size)
	case TypeXLSX:
		return extractXLSX(data, size)
	case TypeTXT:
		return extractTXT(data, size)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", fileType)
	}
}

func SupportedTypes() []string {
	return []string{TypePDF, TypeDOCX, TypeXLSX, TypeTXT}
}

// Builder joins page texts with blank lines while recording spans.
type Builder struct {
	buf   strings.Builder
	runes int
	spans []PageSpan
}

// Add appends one page. Blank pages are skipped but still count.
func (b *Builder) Add(page int, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.buf.Len() > 0 {
		b.buf.WriteString("\n\n")
		b.runes += 2
	}
	b.spans = append(b.spans, PageSpan{Page: page, Offset: b.runes})
	b.buf.WriteString(text)
	b.runes += utf8.RuneCountInString(text)
}

func (b *Builder) Result(pages int, kind string) *ExtractedText {
	return &ExtractedText{
		Content:  b.buf.String(),
		Pages:    pages,
		Spans:    b.spans,
		Metadata: map[string]string{"type": kind},
	}
}

func extractTXT(data io.ReaderAt, size int64) (*ExtractedText, error) {
	buf := make([]byte, size)
	_, err := data.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read TXT: %w", err)
	}
	if !utf8.Valid(buf) {
		buf = bytes.ToValidUTF8(buf, []byte("�"))
	}

	var b Builder
	b.Add(1, string(buf))
	return b.Result(1, TypeTXT), nil
}
