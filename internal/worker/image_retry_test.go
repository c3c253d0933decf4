package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/registry-crawler/internal/crawler"
	"github.com/JakeFAU/registry-crawler/internal/download"
	"github.com/JakeFAU/registry-crawler/internal/extract"
	"github.com/JakeFAU/registry-crawler/internal/progress"
	"github.com/JakeFAU/registry-crawler/internal/storage/local"
)

func TestWorker_Process_ImageRetryWithSkipExisting(t *testing.T) {
	t.Parallel()

	photo := bytes.Repeat([]byte("photo-bytes-"), 8192)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) > 1 {
			_, _ = w.Write(photo)
			return
		}
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n", len(photo))
		_, _ = buf.Write(photo[:1000])
		_ = buf.Flush()
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	downloader := download.New(download.Config{Timeout: 5 * time.Second, SkipExisting: true}, store, nil, zap.NewNop())

	fetcher := &fakeFetcher{
		bodies: map[string]string{
			detailURL: `<div class="panel-body"><div class="row"><div class="col-md-2">` +
				`<img class="thumbnail" src="` + srv.URL + `/uploads/photo.jpg"></div></div></div>`,
		},
		errs: map[string]error{},
	}
	sink := &fakeSink{}
	events := &fakeEmitter{}
	w := New(
		fetcher,
		extract.New(extract.Selectors{}),
		downloader,
		sink,
		crawler.NewExponentialRetryPolicy(2, time.Millisecond, 2*time.Millisecond),
		&fakeClock{now: time.Unix(100, 0)},
		progress.Reporter{Emitter: events},
		Config{},
		zap.NewNop(),
	)
	tasks := crawler.NewTaskGroup(context.Background(), 1)

	require.NoError(t, w.Process(context.Background(), crawler.Category{ID: "3"}, sampleRecord(), tasks))
	tasks.Wait()

	assert.EqualValues(t, 2, hits.Load(), "the cut-off attempt is retried")
	assert.Equal(t, []progress.Stage{progress.StageImageSaved}, events.stages())
	require.Len(t, sink.records, 1)
	assert.Equal(t, "3/1001/photo.jpg", sink.records[0].ImageKey)

	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(filepath.Join(dir, "3", "1001", "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, photo, got)
}
