package docstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"google.golang.org/api/slides/v1"

	"github.com/lukeborglin-coder/mr-broker/internal/config"
	"github.com/lukeborglin-coder/mr-broker/internal/models"
)

const (
	fileFields         = "id, name, mimeType, modifiedTime, webViewLink, size, parents, trashed"
	maxRateRetry       = 3
	listPageSize       = 1000
	defaultMaxDownload = 50 << 20
)

// DriveStore implements Store on Google Drive, Slides and Sheets.
type DriveStore struct {
	files       *drive.Service
	slides      *slides.Service
	sheets      *sheets.Service
	limiter     *RateLimiter
	maxDownload int64
}

// NewDriveStore authenticates with the service-account credentials file
// named in cfg, or application default credentials when it is empty.
func NewDriveStore(ctx context.Context, cfg config.DriveConfig) (*DriveStore, error) {
	opts := []option.ClientOption{
		option.WithScopes(
			drive.DriveReadonlyScope,
			slides.PresentationsReadonlyScope,
			sheets.SpreadsheetsReadonlyScope,
		),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return NewDriveStoreWithOptions(ctx, NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst), cfg.MaxDownloadBytes, opts...)
}

func NewDriveStoreWithOptions(ctx context.Context, limiter *RateLimiter, maxDownload int64, opts ...option.ClientOption) (*DriveStore, error) {
	files, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	sl, err := slides.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create slides service: %w", err)
	}
	sh, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if maxDownload <= 0 {
		maxDownload = defaultMaxDownload
	}
	return &DriveStore{files: files, slides: sl, sheets: sh, limiter: limiter, maxDownload: maxDownload}, nil
}

// call runs fn under the rate limiter, retrying when the API pushes back.
func (s *DriveStore) call(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRateRetry; attempt++ {
		if werr := s.limiter.Wait(ctx); werr != nil {
			return wrapError(op, werr)
		}
		err = fn()
		if err == nil {
			s.limiter.RecordSuccess()
			return nil
		}
		if !IsRateLimited(err) {
			break
		}
		s.limiter.RecordRateLimitError()
		slog.Warn("document store rate limited", "op", op, "attempt", attempt+1)
	}
	return wrapError(op, err)
}

func (s *DriveStore) ListChildren(ctx context.Context, folderID string) ([]models.Document, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", strings.ReplaceAll(folderID, "'", `\'`))

	var docs []models.Document
	pageToken := ""
	for {
		var page *drive.FileList
		err := s.call(ctx, "docstore.ListChildren", func() error {
			var err error
			call := s.files.Files.List().
				Q(q).
				Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
				PageSize(listPageSize).
				SupportsAllDrives(true).
				IncludeItemsFromAllDrives(true)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			page, err = call.Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, f := range page.Files {
			if f.Trashed {
				continue
			}
			docs = append(docs, toDocument(f))
		}
		if page.NextPageToken == "" {
			return docs, nil
		}
		pageToken = page.NextPageToken
	}
}

func (s *DriveStore) Get(ctx context.Context, fileID string) (*models.Document, error) {
	var f *drive.File
	err := s.call(ctx, "docstore.Get", func() error {
		var err error
		f, err = s.files.Files.Get(fileID).
			Fields(googleapi.Field(fileFields)).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	doc := toDocument(f)
	return &doc, nil
}

func (s *DriveStore) GetContent(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte
	err := s.call(ctx, "docstore.GetContent", func() error {
		resp, err := s.files.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = s.readLimited(resp.Body)
		return err
	})
	return data, err
}

func (s *DriveStore) ExportAsText(ctx context.Context, fileID string) (string, error) {
	var data []byte
	err := s.call(ctx, "docstore.ExportAsText", func() error {
		resp, err := s.files.Files.Export(fileID, "text/plain").Context(ctx).Download()
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = s.readLimited(resp.Body)
		return err
	})
	return strings.TrimPrefix(string(data), "\ufeff"), err
}

func (s *DriveStore) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxDownload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxDownload {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (s *DriveStore) SlideTexts(ctx context.Context, fileID string) ([][]string, error) {
	var pres *slides.Presentation
	err := s.call(ctx, "docstore.SlideTexts", func() error {
		var err error
		pres, err = s.slides.Presentations.Get(fileID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([][]string, len(pres.Slides))
	for i, slide := range pres.Slides {
		out[i] = elementTexts(slide.PageElements, nil)
	}
	return out, nil
}

func elementTexts(elements []*slides.PageElement, out []string) []string {
	for _, el := range elements {
		switch {
		case el.Shape != nil:
			out = appendText(out, el.Shape.Text)
		case el.ElementGroup != nil:
			out = elementTexts(el.ElementGroup.Children, out)
		case el.Table != nil:
			for _, row := range el.Table.TableRows {
				for _, cell := range row.TableCells {
					out = appendText(out, cell.Text)
				}
			}
		}
	}
	return out
}

func appendText(out []string, text *slides.TextContent) []string {
	if text == nil {
		return out
	}
	var b strings.Builder
	for _, te := range text.TextElements {
		if te.TextRun != nil {
			b.WriteString(te.TextRun.Content)
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func (s *DriveStore) SheetValues(ctx context.Context, fileID string, maxSheets int, cellRange string) ([]Sheet, error) {
	var book *sheets.Spreadsheet
	err := s.call(ctx, "docstore.SheetValues", func() error {
		var err error
		book, err = s.sheets.Spreadsheets.Get(fileID).
			Fields(googleapi.Field("sheets.properties.title")).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	var out []Sheet
	for i, sh := range book.Sheets {
		if maxSheets > 0 && i >= maxSheets {
			break
		}
		if sh.Properties == nil {
			continue
		}
		title := sh.Properties.Title
		rng := fmt.Sprintf("'%s'!%s", strings.ReplaceAll(title, "'", "''"), cellRange)

		var vr *sheets.ValueRange
		err := s.call(ctx, "docstore.SheetValues", func() error {
			var err error
			vr, err = s.sheets.Spreadsheets.Values.Get(fileID, rng).Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, Sheet{Title: title, Rows: stringRows(vr.Values)})
	}
	return out, nil
}

func stringRows(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		rows[i] = cells
	}
	return rows
}

func toDocument(f *drive.File) models.Document {
	doc := models.Document{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		WebViewLink: f.WebViewLink,
		Size:        f.Size,
		Parents:     f.Parents,
		Trashed:     f.Trashed,
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		doc.ModifiedTime = t.UTC()
	}
	return doc
}
