package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/docstore"
	"github.com/lukeborglin-coder/mr-broker/internal/models"
	"github.com/lukeborglin-coder/mr-broker/pkg/textextract"
)

const (
	sheetRange = "A1:Z200"

	ReasonNoText      = "no text layer found (the document may be scanned)"
	ReasonUnsupported = "unsupported document type"
)

type TextExtractor interface {
	Extract(ctx context.Context, doc models.Document) (*textextract.ExtractedText, error)
}

// Strategy is one way of decoding a PDF. Strategies run in order until one
// yields text.
type Strategy struct {
	Name string
	Run  func(data []byte) (*textextract.ExtractedText, error)
}

func DefaultPDFStrategies() []Strategy {
	return []Strategy{
		{Name: "text-layer", Run: func(data []byte) (*textextract.ExtractedText, error) {
			return textextract.PDFText(bytes.NewReader(data), int64(len(data)))
		}},
		{Name: "page-rows", Run: func(data []byte) (*textextract.ExtractedText, error) {
			return textextract.PDFRowText(bytes.NewReader(data), int64(len(data)))
		}},
	}
}

type extractor struct {
	store         docstore.Store
	timeout       time.Duration
	pdfStrategies []Strategy
}

func NewTextExtractor(store docstore.Store, timeout time.Duration) TextExtractor {
	return NewTextExtractorWithStrategies(store, timeout, DefaultPDFStrategies())
}

func NewTextExtractorWithStrategies(store docstore.Store, timeout time.Duration, pdf []Strategy) TextExtractor {
	return &extractor{store: store, timeout: timeout, pdfStrategies: pdf}
}

// Extract produces the plain text of doc. Decode problems and empty results
// are extraction errors; document store failures keep their own kind.
func (e *extractor) Extract(ctx context.Context, doc models.Document) (*textextract.ExtractedText, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := e.extract(ctx, doc)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Content) == "" {
		return nil, apperr.Wrap(apperr.KindExtraction, "document.Extract", "no text", nil)
	}
	return out, nil
}

func (e *extractor) extract(ctx context.Context, doc models.Document) (*textextract.ExtractedText, error) {
	switch doc.MimeType {
	case models.MimeGoogleDoc:
		text, err := e.store.ExportAsText(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		var b textextract.Builder
		b.Add(1, text)
		return b.Result(1, "gdoc"), nil

	case models.MimeGoogleSlides:
		slides, err := e.store.SlideTexts(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		var b textextract.Builder
		for i, shapes := range slides {
			b.Add(i+1, strings.Join(shapes, "\n\n"))
		}
		return b.Result(len(slides), "slides"), nil

	case models.MimeGoogleSheet:
		sheets, err := e.store.SheetValues(ctx, doc.ID, textextract.MaxSheets, sheetRange)
		if err != nil {
			return nil, err
		}
		var b textextract.Builder
		for i, sh := range sheets {
			b.Add(i+1, textextract.FormatSheet(sh.Title, sh.Rows))
		}
		return b.Result(len(sheets), "sheets"), nil
	}

	kind := textextract.NormalizeType(doc.MimeType)
	if kind == "" && doc.MimeType != models.MimeOctetStream && doc.MimeType != "" {
		return nil, apperr.Wrap(apperr.KindExtraction, "document.Extract", ReasonUnsupported+": "+doc.MimeType, nil)
	}

	data, err := e.store.GetContent(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		detected := mimetype.Detect(data)
		kind = textextract.NormalizeType(detected.String())
		if kind == "" {
			return nil, apperr.Wrap(apperr.KindExtraction, "document.Extract", ReasonUnsupported+": "+detected.String(), nil)
		}
		slog.Debug("sniffed document type", "document_id", doc.ID, "mime", detected.String())
	}

	if kind == textextract.TypePDF {
		return e.extractPDF(doc, data)
	}

	out, err := textextract.Extract(bytes.NewReader(data), int64(len(data)), kind)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExtraction, "document.Extract", err.Error(), err)
	}
	return out, nil
}

func (e *extractor) extractPDF(doc models.Document, data []byte) (*textextract.ExtractedText, error) {
	var failures []error
	empty := 0
	for _, s := range e.pdfStrategies {
		out, err := s.Run(data)
		switch {
		case err != nil:
			failures = append(failures, fmt.Errorf("%s: %w", s.Name, err))
		case out == nil || strings.TrimSpace(out.Content) == "":
			empty++
		default:
			if len(failures) > 0 || empty > 0 {
				slog.Info("pdf decoded by fallback strategy", "document_id", doc.ID, "strategy", s.Name)
			}
			return out, nil
		}
	}

	if len(failures) == 0 {
		return nil, apperr.Wrap(apperr.KindExtraction, "document.Extract", ReasonNoText, nil)
	}
	err := errors.Join(failures...)
	return nil, apperr.Wrap(apperr.KindExtraction, "document.Extract", "all PDF decoders failed", err)
}
