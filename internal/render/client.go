// Package render fetches page images from the rasterization service.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
)

var ErrNotConfigured = errors.New("page rendering is not configured")

// Page is a rendered page image. Callers must close Body.
type Page struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

type Renderer interface {
	RenderPage(ctx context.Context, fileID string, page int) (*Page, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RenderPage asks the rasterizer for one page of a document as an image.
func (c *Client) RenderPage(ctx context.Context, fileID string, page int) (*Page, error) {
	if c.baseURL == "" {
		return nil, apperr.New(apperr.KindNotFound, "render page", ErrNotConfigured)
	}
	if fileID == "" || page < 1 {
		return nil, apperr.Newf(apperr.KindValidation, "render page", "file id and a page number >= 1 are required")
	}

	u := fmt.Sprintf("%s/render/%s/%d", c.baseURL, url.PathEscape(fileID), page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create render request: %w", err)
	}
	req.Header.Set("Accept", "image/png, image/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDocumentStore, "render page", "rasterizer unreachable", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, apperr.Newf(apperr.KindNotFound, "render page", "page %d of %s not found", page, fileID)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, apperr.Newf(apperr.KindDocumentStore, "render page", "render failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "image/png"
	}
	return &Page{Body: resp.Body, ContentType: ct, ContentLength: resp.ContentLength}, nil
}
