package docstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/slides/v1"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/models"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *DriveStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewDriveStoreWithOptions(context.Background(), NewRateLimiter(1000, 100), 1<<20,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return s
}

func TestListChildren_Paginates(t *testing.T) {
	var queries []string
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files"), r.URL.Path)
		queries = append(queries, r.URL.Query().Get("q"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("pageToken") {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"nextPageToken": "page-2",
				"files": []map[string]any{
					{"id": "f1", "name": "Q1 Report.pdf", "mimeType": models.MimePDF, "modifiedTime": "2024-03-01T10:00:00Z"},
					{"id": "f2", "name": "old.pdf", "mimeType": models.MimePDF, "trashed": true},
				},
			})
		case "page-2":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"files": []map[string]any{
					{"id": "d1", "name": "Sub", "mimeType": models.MimeFolder},
				},
			})
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	})

	docs, err := s.ListChildren(context.Background(), "root'folder")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "f1", docs[0].ID)
	assert.Equal(t, 2024, docs[0].ModifiedTime.Year())
	assert.True(t, docs[1].IsFolder())

	require.Len(t, queries, 2)
	assert.Equal(t, `'root\'folder' in parents and trashed = false`, queries[0])
}

func TestGet_NotFoundKind(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
	})

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGetContent_EnforcesLimit(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		_, _ = w.Write(make([]byte, 2<<20))
	})

	_, err := s.GetContent(context.Background(), "big")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDocumentStore))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestWrapError(t *testing.T) {
	cases := []struct {
		code int
		want error
		kind apperr.Kind
	}{
		{http.StatusUnauthorized, ErrUnauthorized, apperr.KindDocumentStore},
		{http.StatusForbidden, ErrForbidden, apperr.KindDocumentStore},
		{http.StatusNotFound, ErrNotFound, apperr.KindNotFound},
		{http.StatusTooManyRequests, ErrRateLimited, apperr.KindDocumentStore},
	}
	for _, tc := range cases {
		err := wrapError("op", &googleapi.Error{Code: tc.code})
		assert.Equal(t, tc.kind, apperr.KindOf(err), "code %d", tc.code)
		assert.Contains(t, err.Error(), tc.want.Error())
	}

	quota := &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}
	assert.True(t, IsRateLimited(quota))
	assert.Nil(t, wrapError("op", nil))
}

func TestElementTexts(t *testing.T) {
	text := func(parts ...string) *slides.TextContent {
		tc := &slides.TextContent{}
		for _, p := range parts {
			tc.TextElements = append(tc.TextElements, &slides.TextElement{TextRun: &slides.TextRun{Content: p}})
		}
		tc.TextElements = append(tc.TextElements, &slides.TextElement{})
		return tc
	}

	elements := []*slides.PageElement{
		{Shape: &slides.Shape{Text: text("Market ", "share\n")}},
		{Shape: &slides.Shape{Text: text("   ")}},
		{Shape: &slides.Shape{}},
		{ElementGroup: &slides.Group{Children: []*slides.PageElement{
			{Shape: &slides.Shape{Text: text("Grouped")}},
		}}},
		{Table: &slides.Table{TableRows: []*slides.TableRow{
			{TableCells: []*slides.TableCell{{Text: text("cell")}, {}}},
		}}},
	}

	assert.Equal(t, []string{"Market share", "Grouped", "cell"}, elementTexts(elements, nil))
}

func TestStringRows(t *testing.T) {
	rows := stringRows([][]interface{}{{"a", 1.5, true}, {}})
	assert.Equal(t, [][]string{{"a", "1.5", "true"}, {}}, rows)
}
