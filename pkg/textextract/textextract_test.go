package textextract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func extractBytes(t *testing.T, data []byte, fileType string) (*ExtractedText, error) {
	t.Helper()
	return Extract(bytes.NewReader(data), int64(len(data)), fileType)
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, TypePDF, NormalizeType("application/pdf"))
	assert.Equal(t, TypePDF, NormalizeType(".PDF"))
	assert.Equal(t, TypeTXT, NormalizeType("text/plain; charset=utf-8"))
	assert.Equal(t, TypeTXT, NormalizeType("text/html"))
	assert.Equal(t, TypeXLSX, NormalizeType("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	assert.Equal(t, "", NormalizeType("image/png"))
}

func TestExtract_Unsupported(t *testing.T) {
	_, err := extractBytes(t, []byte("x"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestExtract_TXT(t *testing.T) {
	out, err := extractBytes(t, []byte("  hello\nworld  \n"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", out.Content)
	assert.Equal(t, 1, out.PageAt(0))
}

func TestExtract_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document><w:body>` +
		`<w:p><w:r><w:t>First   paragraph</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second</w:t></w:r><w:r><w:t> one</w:t></w:r></w:p>` +
		`</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out, err := extractBytes(t, buf.Bytes(), "docx")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\nSecond one", out.Content)
}

func TestExtract_DOCXDecodesEntities(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>P&amp;G &lt;brand&gt; it&#8217;s</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Q1</w:t><w:tab/><w:t>42%</w:t><w:br/><w:t>Q2</w:t></w:r></w:p>` +
		`<w:p><w:r><w:instrText>PAGE</w:instrText></w:r></w:p>` +
		`</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out, err := extractBytes(t, buf.Bytes(), "docx")
	require.NoError(t, err)
	assert.Equal(t, "P&G <brand> it’s\nQ1 42%\nQ2", out.Content)
}

func TestExtract_DOCXWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = extractBytes(t, buf.Bytes(), "docx")
	assert.Error(t, err)
}

func TestExtract_XLSXLimitsSheets(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Region", "Share"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"North", 42}))
	for _, name := range []string{"Empty", "Third", "Fourth"} {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
	}
	require.NoError(t, f.SetCellValue("Third", "B3", "kept"))
	require.NoError(t, f.SetCellValue("Fourth", "A1", "dropped"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	out, err := extractBytes(t, buf.Bytes(), "xlsx")
	require.NoError(t, err)

	assert.Contains(t, out.Content, "Sheet: Sheet1\nRegion, Share\nNorth, 42")
	assert.Contains(t, out.Content, "Sheet: Third")
	assert.Contains(t, out.Content, "kept")
	assert.NotContains(t, out.Content, "Sheet: Empty")
	assert.NotContains(t, out.Content, "dropped")
	assert.Equal(t, 3, out.Pages)
}

func TestFormatSheet_BoundsWindow(t *testing.T) {
	var rows [][]string
	for i := 0; i < 250; i++ {
		row := make([]string, 30)
		for j := range row {
			row[j] = fmt.Sprintf("r%dc%d", i, j)
		}
		rows = append(rows, row)
	}

	out := FormatSheet("Big", rows)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 1+MaxSheetRows)
	assert.Equal(t, "Sheet: Big", lines[0])
	assert.Len(t, strings.Split(lines[1], ", "), MaxSheetCols)
	assert.NotContains(t, out, "r200c0")
	assert.NotContains(t, out, "c26")
}

func TestFormatSheet_EmptyRendersNothing(t *testing.T) {
	assert.Equal(t, "", FormatSheet("Blank", [][]string{{"", " "}, {}}))
}

func TestPDF_GarbageIsError(t *testing.T) {
	data := []byte("this is not a pdf")
	_, err := PDFText(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
	_, err = PDFRowText(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
}

func TestBuilder_SpansAndPageAt(t *testing.T) {
	var b Builder
	b.Add(1, "one")
	b.Add(2, "   ")
	b.Add(3, "three")
	out := b.Result(3, TypePDF)

	assert.Equal(t, "one\n\nthree", out.Content)
	assert.Equal(t, []PageSpan{{Page: 1, Offset: 0}, {Page: 3, Offset: 5}}, out.Spans)
	assert.Equal(t, 1, out.PageAt(2))
	assert.Equal(t, 3, out.PageAt(5))
	assert.Equal(t, 3, out.PageAt(100))

	assert.Equal(t, 0, (&ExtractedText{}).PageAt(10))
}
