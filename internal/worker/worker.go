// Package worker implements per-record processing: detail fetch, image
// scheduling, and the record append.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/registry-crawler/internal/crawler"
	"github.com/JakeFAU/registry-crawler/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	// ImagePrefix is prepended to every image key, e.g. "division_".
	ImagePrefix string
	// DropOnDetailFailure discards records whose detail page could not be
	// fetched instead of writing them without an image URL.
	DropOnDetailFailure bool
}

// Worker implements crawler.RecordProcessor.
type Worker struct {
	fetcher    crawler.Fetcher
	extractor  crawler.Extractor
	downloader crawler.Downloader
	sink       crawler.RecordSink
	retry      crawler.RetryPolicy
	clock      crawler.Clock
	reporter   progress.Reporter
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	downloader crawler.Downloader,
	sink crawler.RecordSink,
	retry crawler.RetryPolicy,
	clock crawler.Clock,
	reporter progress.Reporter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		fetcher:    fetcher,
		extractor:  extractor,
		downloader: downloader,
		sink:       sink,
		retry:      retry,
		clock:      clock,
		reporter:   reporter,
		cfg:        cfg,
		logger:     logger.Named("worker"),
	}
}

// Process resolves the record's image through its detail page, schedules the
// download on spawn and appends the record to the category output. Records
// without a detail link are written as extracted.
func (w *Worker) Process(ctx context.Context, category crawler.Category, rec crawler.RowRecord, spawn crawler.Spawner) error {
	if rec.HasDetail() {
		if err := w.resolveImage(ctx, category, &rec, spawn); err != nil {
			if w.cfg.DropOnDetailFailure {
				return fmt.Errorf("%w: %w", crawler.ErrRecordDropped, err)
			}
			w.logger.Warn("detail fetch failed; writing record without image",
				zap.String("category", category.ID),
				zap.String("detail_url", rec.DetailURL),
				zap.Error(err),
			)
		}
	}
	if err := w.sink.Append(ctx, category.ID, rec); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// resolveImage fetches the detail page and, when it shows an image, fills in
// the image fields and schedules the download. Only fetch failures are
// returned; layout problems degrade to an absent image.
func (w *Worker) resolveImage(ctx context.Context, category crawler.Category, rec *crawler.RowRecord, spawn crawler.Spawner) error {
	detailURL := crawler.ResolveReference(rec.SourceURL, rec.DetailURL)
	body, err := crawler.FetchWithRetry(ctx, w.fetcher, w.retry, detailURL)
	if err != nil {
		return fmt.Errorf("fetch detail: %w", err)
	}

	src, structure := w.extractor.DetailImage(body)
	switch structure {
	case crawler.StructureFound:
	case crawler.StructureMalformed:
		w.logger.Warn("schema drift detected",
			zap.String("category", category.ID),
			zap.String("component", progress.ComponentDetail),
			zap.String("url", detailURL),
		)
		w.reporter.Report(ctx, progress.Event{
			Stage:     progress.StageSchemaDrift,
			Category:  category.ID,
			URL:       detailURL,
			Component: progress.ComponentDetail,
			Note:      "profile panel not found",
		})
		return nil
	default:
		w.logger.Debug("detail page has no image", zap.String("category", category.ID), zap.String("url", detailURL))
		return nil
	}

	rec.ImageURL = src
	rec.ImageKey = crawler.ImageKey(w.cfg.ImagePrefix, category.ID, rec.DetailURL, src)
	imageURL := crawler.ResolveReference(detailURL, src)
	key := rec.ImageKey
	spawn.Go(func(ctx context.Context) {
		w.downloadImage(ctx, category.ID, imageURL, key)
	})
	return nil
}

func (w *Worker) downloadImage(ctx context.Context, categoryID, imageURL, key string) {
	start := w.now()
	res, err := w.downloadWithRetry(ctx, imageURL, key)
	evt := progress.Event{
		Category: categoryID,
		URL:      imageURL,
		Dur:      w.now().Sub(start),
	}
	switch {
	case err != nil:
		evt.Stage = progress.StageImageError
		evt.StatusClass = progress.ClassifyStatus(crawler.StatusCodeOf(err))
		evt.Note = err.Error()
		w.logger.Warn("image download failed",
			zap.String("category", categoryID),
			zap.String("url", imageURL),
			zap.String("key", key),
			zap.Error(err),
		)
	case res.Skipped:
		evt.Stage = progress.StageImageSkipped
		evt.Bytes = res.Bytes
	default:
		evt.Stage = progress.StageImageSaved
		evt.Bytes = res.Bytes
		w.logger.Debug("image saved", zap.String("category", categoryID), zap.String("uri", res.URI), zap.Int64("bytes", res.Bytes))
	}
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	w.reporter.Report(ctx, evt)
}

// downloadWithRetry repeats whole downloads for transient network failures;
// each attempt issues a single request.
func (w *Worker) downloadWithRetry(ctx context.Context, imageURL, key string) (crawler.DownloadResult, error) {
	for attempt := 1; ; attempt++ {
		res, err := w.downloader.Download(ctx, imageURL, key)
		if err == nil {
			return res, nil
		}
		if w.retry == nil || !w.retry.ShouldRetry(err, attempt) || ctx.Err() != nil {
			return res, err
		}
		timer := time.NewTimer(w.retry.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, err
		case <-timer.C:
		}
	}
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now()
	}
	return w.clock.Now()
}
