package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/registry-crawler/internal/crawler"
	"github.com/JakeFAU/registry-crawler/internal/extract"
	"github.com/JakeFAU/registry-crawler/internal/progress"
)

const (
	listingURL = "http://registry.test/freedom-fighter-list?division_id=3&page=1"
	detailURL  = "http://registry.test/freedom-fighter/1001"
	detailPage = `<div class="panel-body"><div class="row"><div class="col-md-2">` +
		`<img class="thumbnail" src="/uploads/photo.jpg"></div></div></div>`
)

func sampleRecord() crawler.RowRecord {
	return crawler.RowRecord{
		Fields:    [crawler.FieldCount]string{"1", "Abdul Karim", "Rahim", "", "", "", "", "", ""},
		DetailURL: detailURL,
		SourceURL: listingURL,
	}
}

type harness struct {
	fetcher    *fakeFetcher
	downloader *fakeDownloader
	sink       *fakeSink
	events     *fakeEmitter
	tasks      *crawler.TaskGroup
}

func newHarness(t *testing.T, cfg Config) (*Worker, *harness) {
	t.Helper()
	h := &harness{
		fetcher:    &fakeFetcher{bodies: map[string]string{detailURL: detailPage}, errs: map[string]error{}},
		downloader: &fakeDownloader{},
		sink:       &fakeSink{},
		events:     &fakeEmitter{},
		tasks:      crawler.NewTaskGroup(context.Background(), 2),
	}
	w := New(
		h.fetcher,
		extract.New(extract.Selectors{}),
		h.downloader,
		h.sink,
		crawler.NewExponentialRetryPolicy(2, time.Millisecond, 2*time.Millisecond),
		&fakeClock{now: time.Unix(100, 0)},
		progress.Reporter{Emitter: h.events},
		cfg,
		zap.NewNop(),
	)
	return w, h
}

func TestWorker_Process_WritesRecordAndSchedulesImage(t *testing.T) {
	t.Parallel()

	w, h := newHarness(t, Config{ImagePrefix: "division_"})
	require.NoError(t, w.Process(context.Background(), crawler.Category{ID: "3"}, sampleRecord(), h.tasks))
	h.tasks.Wait()

	require.Len(t, h.sink.records, 1)
	got := h.sink.records[0]
	assert.Equal(t, "3", h.sink.outputs[0])
	assert.Equal(t, "/uploads/photo.jpg", got.ImageURL, "record keeps the raw src")
	assert.Equal(t, "division_3/1001/photo.jpg", got.ImageKey)
	assert.Equal(t, detailURL, got.DetailURL)

	require.Len(t, h.downloader.calls, 1)
	assert.Equal(t, "http://registry.test/uploads/photo.jpg", h.downloader.calls[0].url)
	assert.Equal(t, "division_3/1001/photo.jpg", h.downloader.calls[0].key)
	assert.Equal(t, 1, h.tasks.Started())
	assert.Equal(t, []progress.Stage{progress.StageImageSaved}, h.events.stages())
}

func TestWorker_Process_NoDetailLink(t *testing.T) {
	t.Parallel()

	w, h := newHarness(t, Config{})
	rec := sampleRecord()
	rec.DetailURL = ""
	require.NoError(t, w.Process(context.Background(), crawler.Category{ID: "3"}, rec, h.tasks))
	h.tasks.Wait()

	require.Len(t, h.sink.records, 1)
	assert.Empty(t, h.sink.records[0].ImageURL)
	assert.Zero(t, h.fetcher.count(detailURL))
	assert.Empty(t, h.downloader.calls)
}

func TestWorker_Process_DetailFailureWritesWithoutImage(t *testing.T) {
	t.Parallel()

	w, h := newHarness(t, Config{})
	h.fetcher.errs[detailURL] = crawler.NewStatusError(detailURL, 404)
	require.NoError(t, w.Process(context.Background(), crawler.Category{ID: "3"}, sampleRecord(), h.tasks))
	h.tasks.Wait()

	require.Len(t, h.sink.records, 1)
	assert.Equal(t, detailURL, h.sink.records[0].DetailURL)
	assert.Empty(t, h.sink.records[0].ImageURL)
	assert.Empty(t, h.downloader.calls)
	assert.Equal(t, 1, h.fetcher.count(detailURL), "404 is not retried")
}

func TestWorker_Process_DetailFailureDropsWhenConfigured(t *testing.T) {
	t.Parallel()

	w, h := newHarness(t, Config{DropOnDetailFailure: true})
	h.fetcher.errs[detailURL] = crawler.NewNetworkError(detailURL, errors.New("connection reset"))
	err := w.Process(context.Background(), crawler.Category{ID: "3"}, sampleRecord(), h.tasks)
	h.tasks.Wait()

	require.ErrorIs(t, err, crawler.ErrRecordDropped)
	assert.Empty(t, h.sink.records)
	assert.Equal(t, 3, h.fetcher.count(detailURL), "network failures are retried first")
}

func TestWorker_Process_MissingPanelReportsDrift(t *testing.T) {
	t.Parallel()

	w, h := newHarness(t, Config{})
	h.fetcher.bodies[detailURL] = "<html><body>Server busy</body></html>"
	require.NoError(t, w.Process(context.Background(), crawler.Category{ID: "3"}, sampleRecord(), h.tasks))
	h.tasks.Wait()

	require.Len(t, h.sink.records, 1)
	assert.Empty(t, h.sink.records[0].ImageURL)
	assert.Empty(t, h.downloader.calls)
	evts := h.events.all()
	require.Len(t, evts, 1)
	assert.Equal(t, progress.StageSchemaDrift, evts[0].Stage)
	assert.Equal(t, progress.ComponentDetail, evts[0].Component)
}

func TestWorker_Process_ImageErrorIsReported(t *testing.T) {
	t.Parallel()

	w, h := newHarness(t, Config{})
	h.downloader.err = &crawler.DownloadError{Kind: crawler.KindNetwork, URL: "x", Err: errors.New("timeout")}
	require.NoError(t, w.Process(context.Background(), crawler.Category{ID: "3"}, sampleRecord(), h.tasks))
	h.tasks.Wait()

	require.Len(t, h.sink.records, 1, "the record is written regardless of the image outcome")
	assert.Len(t, h.downloader.calls, 3)
	assert.Equal(t, []progress.Stage{progress.StageImageError}, h.events.stages())
}

func TestWorker_Process_SkippedImage(t *testing.T) {
	t.Parallel()

	w, h := newHarness(t, Config{})
	h.downloader.result = crawler.DownloadResult{Skipped: true, Bytes: 10}
	require.NoError(t, w.Process(context.Background(), crawler.Category{ID: "3"}, sampleRecord(), h.tasks))
	h.tasks.Wait()

	assert.Equal(t, []progress.Stage{progress.StageImageSkipped}, h.events.stages())
}

func TestWorker_Process_SinkFailure(t *testing.T) {
	t.Parallel()

	w, h := newHarness(t, Config{})
	h.sink.err = errors.New("disk full")
	rec := sampleRecord()
	rec.DetailURL = ""
	err := w.Process(context.Background(), crawler.Category{ID: "3"}, rec, h.tasks)
	require.Error(t, err)
	assert.NotErrorIs(t, err, crawler.ErrRecordDropped)
}

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  map[string]int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, crawler.NewStatusError(url, 404)
	}
	return []byte(body), nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type downloadCall struct {
	url string
	key string
}

type fakeDownloader struct {
	mu     sync.Mutex
	calls  []downloadCall
	result crawler.DownloadResult
	err    error
}

func (d *fakeDownloader) Download(_ context.Context, url, key string) (crawler.DownloadResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, downloadCall{url: url, key: key})
	if d.err != nil {
		return crawler.DownloadResult{}, d.err
	}
	res := d.result
	if !res.Skipped {
		res.Bytes = 512
	}
	return res, nil
}

type fakeSink struct {
	mu      sync.Mutex
	outputs []string
	records []crawler.RowRecord
	err     error
}

func (s *fakeSink) Append(_ context.Context, outputID string, rec crawler.RowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.outputs = append(s.outputs, outputID)
	s.records = append(s.records, rec)
	return nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *fakeEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *fakeEmitter) all() []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]progress.Event(nil), e.events...)
}

func (e *fakeEmitter) stages() []progress.Stage {
	var out []progress.Stage
	for _, evt := range e.all() {
		out = append(out, evt.Stage)
	}
	return out
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}
