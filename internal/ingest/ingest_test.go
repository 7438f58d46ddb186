package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeborglin-coder/mr-broker/internal/apperr"
	"github.com/lukeborglin-coder/mr-broker/internal/corpus"
	"github.com/lukeborglin-coder/mr-broker/internal/docstore"
	"github.com/lukeborglin-coder/mr-broker/internal/models"
	"github.com/lukeborglin-coder/mr-broker/internal/tenant"
	"github.com/lukeborglin-coder/mr-broker/internal/vectorstore"
	"github.com/lukeborglin-coder/mr-broker/pkg/chunker"
	"github.com/lukeborglin-coder/mr-broker/pkg/textextract"
)

type hashEmbedder struct {
	calls atomic.Int32
	err   error
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 4)
		for j, r := range t {
			v[j%4] += float32(r % 7)
		}
		v[3]++
		out[i] = v
	}
	return out, nil
}

type fakeExtractor struct {
	texts   map[string]string
	errs    map[string]error
	delay   time.Duration
	active  atomic.Int32
	peak    atomic.Int32
	started chan string
}

func (f *fakeExtractor) Extract(ctx context.Context, doc models.Document) (*textextract.ExtractedText, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.started != nil {
		f.started <- doc.ID
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.errs[doc.ID]; err != nil {
		return nil, err
	}
	var b textextract.Builder
	b.Add(1, f.texts[doc.ID])
	return b.Result(1, "txt"), nil
}

func newIngestor(ex *fakeExtractor, index vectorstore.Index, emb Embedder) *Ingestor {
	return NewIngestor(ex, NewWriter(index, emb, time.Second), chunker.DefaultOptions())
}

func TestEntryID_Deterministic(t *testing.T) {
	a := EntryID("acme", "Q1 Report.pdf", 3)
	assert.Equal(t, a, EntryID("acme", "Q1 Report.pdf", 3))
	assert.NotEqual(t, a, EntryID("globex", "Q1 Report.pdf", 3))
	assert.True(t, strings.HasPrefix(a, KeyPrefix("acme", "Q1 Report.pdf")))
	assert.True(t, strings.HasSuffix(a, ":3"))
}

func TestWriter_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	index := vectorstore.NewMemoryStore(4)
	w := NewWriter(index, &hashEmbedder{}, time.Second)
	req := UpsertRequest{
		TenantID: "acme", DocumentID: "f1", DocumentName: "wave.pdf",
		Chunks: []Chunk{{Text: "one", Page: 1}, {Text: "two", Page: 2}},
	}

	n, err := w.Upsert(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = w.Upsert(ctx, req)
	require.NoError(t, err)

	stats, err := index.DescribeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Namespaces[vectorstore.Namespace("acme")].VectorCount)
}

func TestWriter_PrunesShrunkDocument(t *testing.T) {
	ctx := context.Background()
	index := vectorstore.NewMemoryStore(4)
	w := NewWriter(index, &hashEmbedder{}, time.Second)

	long := UpsertRequest{TenantID: "acme", DocumentID: "f1", DocumentName: "deck",
		Chunks: []Chunk{{Text: "a"}, {Text: "b"}, {Text: "c"}}}
	_, err := w.Upsert(ctx, long)
	require.NoError(t, err)

	short := long
	short.Chunks = []Chunk{{Text: "a"}}
	_, err = w.Upsert(ctx, short)
	require.NoError(t, err)

	ids, err := index.ListIDs(ctx, vectorstore.Namespace("acme"), KeyPrefix("acme", "deck"))
	require.NoError(t, err)
	assert.Equal(t, []string{EntryID("acme", "deck", 0)}, ids)
}

func TestWriter_EmptyDocumentRemovesOldEntries(t *testing.T) {
	ctx := context.Background()
	index := vectorstore.NewMemoryStore(4)
	emb := &hashEmbedder{}
	w := NewWriter(index, emb, time.Second)

	req := UpsertRequest{TenantID: "acme", DocumentID: "f1", DocumentName: "deck",
		Chunks: []Chunk{{Text: "a"}, {Text: "b"}}}
	_, err := w.Upsert(ctx, req)
	require.NoError(t, err)
	require.NoError(t, index.Upsert(ctx, vectorstore.Namespace("acme"), []vectorstore.Entry{
		{ID: EntryID("acme", "other", 0), Vector: []float32{1, 0, 0, 1}},
	}))

	req.Chunks = nil
	n, err := w.Upsert(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(1), emb.calls.Load())

	ids, err := index.ListIDs(ctx, vectorstore.Namespace("acme"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{EntryID("acme", "other", 0)}, ids)
}

func TestWriter_EmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	index := vectorstore.NewMemoryStore(4)
	emb := &hashEmbedder{err: apperr.New(apperr.KindEmbedding, "embed", errors.New("quota"))}
	w := NewWriter(index, emb, time.Second)

	_, err := w.Upsert(ctx, UpsertRequest{TenantID: "acme", DocumentName: "x", Chunks: []Chunk{{Text: "a"}}})
	assert.True(t, apperr.Is(err, apperr.KindEmbedding))

	stats, _ := index.DescribeStats(ctx)
	assert.Zero(t, stats.TotalVectorCount)
}

func TestWriter_IndexFailureIsVectorIndexKind(t *testing.T) {
	w := NewWriter(vectorstore.NewMemoryStore(3), &hashEmbedder{}, time.Second)
	_, err := w.Upsert(context.Background(), UpsertRequest{TenantID: "acme", DocumentName: "x", Chunks: []Chunk{{Text: "a"}}})
	assert.True(t, apperr.Is(err, apperr.KindVectorIndex))
}

func TestIngestDocument_ChunksLongText(t *testing.T) {
	ex := &fakeExtractor{texts: map[string]string{"f1": strings.Repeat("abcdefghij", 450)}}
	index := vectorstore.NewMemoryStore(4)
	ing := newIngestor(ex, index, &hashEmbedder{})

	out := ing.IngestDocument(context.Background(), "acme", models.Document{ID: "f1", Name: "long.txt"})
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, 3, out.ChunksWritten)
}

func TestIngestDocument_ClassifiesFailures(t *testing.T) {
	ex := &fakeExtractor{errs: map[string]error{
		"scan":  apperr.Wrap(apperr.KindExtraction, "extract", "no text layer found", nil),
		"drive": apperr.Wrap(apperr.KindDocumentStore, "get", "503", nil),
	}}
	ing := newIngestor(ex, vectorstore.NewMemoryStore(4), &hashEmbedder{})

	out := ing.IngestDocument(context.Background(), "acme", models.Document{ID: "scan"})
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, "no text layer found", out.Reason)

	out = ing.IngestDocument(context.Background(), "acme", models.Document{ID: "drive"})
	assert.Equal(t, StatusErrored, out.Status)
	assert.Equal(t, apperr.KindDocumentStore, out.Kind)
}

func TestBatch_IsolatesFailuresAndKeepsOrder(t *testing.T) {
	ex := &fakeExtractor{
		texts: map[string]string{"a": "alpha", "c": "gamma"},
		errs:  map[string]error{"b": apperr.Wrap(apperr.KindExtraction, "extract", "unsupported document type", nil)},
	}
	ing := newIngestor(ex, vectorstore.NewMemoryStore(4), &hashEmbedder{})

	docs := []models.Document{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	report := ing.Batch(context.Background(), "acme", docs, 2)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, "a", report.Outcomes[0].DocumentID)
	assert.Equal(t, StatusSucceeded, report.Outcomes[0].Status)
	assert.Equal(t, StatusSkipped, report.Outcomes[1].Status)
	assert.Equal(t, StatusSucceeded, report.Outcomes[2].Status)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.ChunksWritten)
	assert.NotEmpty(t, report.RunID)
}

func TestBatch_RespectsConcurrencyLimit(t *testing.T) {
	ex := &fakeExtractor{texts: map[string]string{}, delay: 20 * time.Millisecond}
	var docs []models.Document
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
		ex.texts[id] = "text " + id
		docs = append(docs, models.Document{ID: id})
	}
	ing := newIngestor(ex, vectorstore.NewMemoryStore(4), &hashEmbedder{})

	report := ing.Batch(context.Background(), "acme", docs, 3)
	assert.Equal(t, 8, report.Succeeded)
	assert.LessOrEqual(t, ex.peak.Load(), int32(3))
	assert.Greater(t, ex.peak.Load(), int32(1))
}

func TestBatch_CancellationStopsNewWorkButFinishesInFlight(t *testing.T) {
	ex := &fakeExtractor{
		texts:   map[string]string{"1": "one", "2": "two", "3": "three"},
		delay:   30 * time.Millisecond,
		started: make(chan string, 3),
	}
	ing := newIngestor(ex, vectorstore.NewMemoryStore(4), &hashEmbedder{})
	docs := []models.Document{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	ctx, cancel := context.WithCancel(context.Background())
	var report *Report
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		report = ing.Batch(ctx, "acme", docs, 1)
	}()

	<-ex.started
	cancel()
	wg.Wait()

	assert.Equal(t, StatusSucceeded, report.Outcomes[0].Status)
	assert.Equal(t, StatusSkipped, report.Outcomes[2].Status)
	assert.Equal(t, ReasonCancelled, report.Outcomes[2].Reason)
	assert.Equal(t, 3, report.Succeeded+report.Skipped)
}

type fakeDocStore struct {
	docstore.Store
	folders map[string][]models.Document
	files   map[string]models.Document
}

func (f *fakeDocStore) ListChildren(_ context.Context, id string) ([]models.Document, error) {
	return f.folders[id], nil
}

func (f *fakeDocStore) Get(_ context.Context, id string) (*models.Document, error) {
	d, ok := f.files[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "get", "missing")
	}
	return &d, nil
}

func TestService_IngestTenantAndPurge(t *testing.T) {
	ctx := context.Background()
	store := &fakeDocStore{folders: map[string][]models.Document{
		"root": {
			{ID: "a", Name: "a.txt", MimeType: models.MimeText},
			{ID: "sub", MimeType: models.MimeFolder},
			{ID: "img", MimeType: "image/png"},
		},
		"sub": {{ID: "b", Name: "b.txt", MimeType: models.MimeText}},
	}}
	ex := &fakeExtractor{texts: map[string]string{"a": "alpha", "b": "beta"}}
	index := vectorstore.NewMemoryStore(4)
	dir := tenant.NewStatic(map[string]string{"acme": "root"})
	svc := NewService(newIngestor(ex, index, &hashEmbedder{}), store, dir, index, nil, corpus.MimeFilter(nil), 2)

	report, err := svc.IngestTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	_, err = svc.IngestTenant(ctx, "globex")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, svc.Purge(ctx, "acme"))
	stats, _ := index.DescribeStats(ctx)
	assert.Zero(t, stats.TotalVectorCount)

	assert.True(t, apperr.Is(svc.Purge(ctx, ""), apperr.KindValidation))
}

func TestService_IngestDocument(t *testing.T) {
	a := models.Document{ID: "a", Name: "a.txt", MimeType: models.MimeText}
	store := &fakeDocStore{
		folders: map[string][]models.Document{"root": {a}},
		files: map[string]models.Document{
			"a":   a,
			"dir": {ID: "dir", MimeType: models.MimeFolder},
		},
	}
	ex := &fakeExtractor{texts: map[string]string{"a": "alpha"}}
	index := vectorstore.NewMemoryStore(4)
	dir := tenant.NewStatic(map[string]string{"acme": "root"})
	svc := NewService(newIngestor(ex, index, &hashEmbedder{}), store, dir, index, nil, nil, 1)

	out, err := svc.IngestDocument(context.Background(), "acme", "a")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, out.Status)

	_, err = svc.IngestDocument(context.Background(), "acme", "dir")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.IngestDocument(context.Background(), "acme", "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func twoTenantStore() *fakeDocStore {
	a := models.Document{ID: "a1", Name: "acme.txt", MimeType: models.MimeText}
	g := models.Document{ID: "g1", Name: "globex.txt", MimeType: models.MimeText}
	return &fakeDocStore{
		folders: map[string][]models.Document{"acme-root": {a}, "globex-root": {g}},
		files:   map[string]models.Document{"a1": a, "g1": g},
	}
}

func TestService_IngestDocumentRejectsOtherTenantsFile(t *testing.T) {
	dir := tenant.NewStatic(map[string]string{"acme": "acme-root", "globex": "globex-root"})
	ex := &fakeExtractor{texts: map[string]string{"a1": "alpha", "g1": "gamma"}}

	for name, cached := range map[string]bool{"walk": false, "membership cache": true} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := twoTenantStore()
			index := vectorstore.NewMemoryStore(4)
			var membership *corpus.Cache
			if cached {
				membership = corpus.NewCache(store, dir, corpus.MimeFilter(nil), time.Minute)
			}
			svc := NewService(newIngestor(ex, index, &hashEmbedder{}), store, dir, index, membership, corpus.MimeFilter(nil), 1)

			_, err := svc.IngestDocument(ctx, "acme", "g1")
			assert.True(t, apperr.Is(err, apperr.KindNotFound))
			stats, err := index.DescribeStats(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.TotalVectorCount)

			out, err := svc.IngestDocument(ctx, "globex", "g1")
			require.NoError(t, err)
			assert.Equal(t, StatusSucceeded, out.Status)
		})
	}
}

func TestService_IngestDocumentFindsFileAddedSinceLastRefresh(t *testing.T) {
	ctx := context.Background()
	store := twoTenantStore()
	dir := tenant.NewStatic(map[string]string{"acme": "acme-root"})
	membership := corpus.NewCache(store, dir, corpus.MimeFilter(nil), time.Hour)
	require.False(t, membership.Snapshot(ctx, "acme").Contains("a2"))

	a2 := models.Document{ID: "a2", Name: "new.txt", MimeType: models.MimeText}
	store.folders["acme-root"] = append(store.folders["acme-root"], a2)
	store.files["a2"] = a2

	ex := &fakeExtractor{texts: map[string]string{"a2": "fresh"}}
	index := vectorstore.NewMemoryStore(4)
	svc := NewService(newIngestor(ex, index, &hashEmbedder{}), store, dir, index, membership, corpus.MimeFilter(nil), 1)

	out, err := svc.IngestDocument(ctx, "acme", "a2")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.True(t, membership.Snapshot(ctx, "acme").Contains("a2"))
}
