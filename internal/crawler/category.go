package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/registry-crawler/internal/logging"
	"github.com/JakeFAU/registry-crawler/internal/progress"
)

// CategoryCrawler crawls every listing page of one category, hands each row
// to a RecordProcessor and waits for all detached image work before it
// returns. Per-unit failures are logged and counted; a category never aborts.
type CategoryCrawler struct {
	cfg       Config
	fetcher   Fetcher
	extractor Extractor
	resolver  *Resolver
	processor RecordProcessor
	retry     RetryPolicy
	clock     Clock
	reporter  progress.Reporter
	logger    *zap.Logger
}

// NewCategoryCrawler wires a CategoryCrawler.
func NewCategoryCrawler(
	cfg Config,
	fetcher Fetcher,
	extractor Extractor,
	processor RecordProcessor,
	retry RetryPolicy,
	clock Clock,
	reporter progress.Reporter,
	logger *zap.Logger,
) (*CategoryCrawler, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil || extractor == nil || processor == nil {
		return nil, errors.New("fetcher, extractor and processor are required")
	}
	if clock == nil {
		clock = wallClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryCrawler{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		resolver:  NewResolver(fetcher, extractor, retry, cfg.BaseURL, cfg.CategoryParam),
		processor: processor,
		retry:     retry,
		clock:     clock,
		reporter:  reporter,
		logger:    logger,
	}, nil
}

// tally accumulates unit outcomes from concurrent goroutines.
type tally struct {
	pagesOK        atomic.Int64
	pagesFailed    atomic.Int64
	recordsWritten atomic.Int64
	recordsFailed  atomic.Int64
	recordsDropped atomic.Int64
}

// categoryRun carries the per-run state shared by page and record tasks.
type categoryRun struct {
	category Category
	logger   *zap.Logger
	tally    *tally
	records  *semaphore.Weighted
	recordWG sync.WaitGroup
	images   *TaskGroup
}

// Run crawls the category to completion: every page, record and image task
// has finished when Run returns.
func (c *CategoryCrawler) Run(ctx context.Context, category Category) Summary {
	start := c.clock.Now()
	logger := logging.ForCategory(c.logger, "category", category.ID)
	c.reporter.Report(ctx, progress.Event{Stage: progress.StageCategoryStart, Category: category.ID})
	logger.Info("category crawl started")

	res, err := c.resolver.Resolve(ctx, category)
	if err != nil {
		logger.Warn("page count lookup failed; crawling first page only", zap.Error(err))
	}
	if res.Structure == StructureMalformed {
		c.drift(ctx, category.ID, 1, res.FirstPageURL, progress.ComponentPagination, "pagination control present but unreadable")
	}
	logger.Info("page count resolved",
		zap.Int("pages", res.PageCount),
		zap.String("structure", res.Structure.String()),
	)

	run := &categoryRun{
		category: category,
		logger:   logger,
		tally:    &tally{},
		records:  semaphore.NewWeighted(int64(c.cfg.RecordConcurrency)),
		images:   NewTaskGroup(ctx, c.cfg.ImageConcurrency),
	}

	var pages errgroup.Group
	pages.SetLimit(c.cfg.PageConcurrency)
	for page := 1; page <= res.PageCount; page++ {
		if ctx.Err() != nil {
			logger.Warn("context ended; not scheduling remaining pages", zap.Int("next_page", page))
			break
		}
		pages.Go(func() error {
			var body []byte
			if page == 1 {
				body = res.FirstPage
			}
			c.crawlPage(ctx, run, page, body)
			return nil
		})
	}
	_ = pages.Wait()
	run.recordWG.Wait()
	run.images.Wait()

	summary := Summary{
		Category:       category.ID,
		PageCount:      res.PageCount,
		PagesOK:        int(run.tally.pagesOK.Load()),
		PagesFailed:    int(run.tally.pagesFailed.Load()),
		RecordsWritten: int(run.tally.recordsWritten.Load()),
		RecordsFailed:  int(run.tally.recordsFailed.Load()),
		RecordsDropped: int(run.tally.recordsDropped.Load()),
		ImagesQueued:   run.images.Started(),
		ImagesSkipped:  run.images.Skipped(),
		Duration:       c.clock.Now().Sub(start),
	}
	c.reporter.Report(ctx, progress.Event{
		Stage:    progress.StageCategoryDone,
		Category: category.ID,
		Dur:      summary.Duration,
	})
	logger.Info("category crawl finished",
		zap.Int("pages_ok", summary.PagesOK),
		zap.Int("pages_failed", summary.PagesFailed),
		zap.Int("records_written", summary.RecordsWritten),
		zap.Int("records_failed", summary.RecordsFailed),
		zap.Int("records_dropped", summary.RecordsDropped),
		zap.Int("images_queued", summary.ImagesQueued),
		zap.Int("images_not_started", summary.ImagesSkipped),
		zap.Duration("duration", summary.Duration),
	)
	return summary
}

// crawlPage fetches (unless body is supplied) and extracts one listing page,
// then dispatches its records.
func (c *CategoryCrawler) crawlPage(ctx context.Context, run *categoryRun, page int, body []byte) {
	pageURL := run.category.ListingURL(c.cfg.BaseURL, c.cfg.CategoryParam, page)
	start := c.clock.Now()
	if body == nil {
		var err error
		body, err = FetchWithRetry(ctx, c.fetcher, c.retry, pageURL)
		if err != nil {
			run.tally.pagesFailed.Add(1)
			run.logger.Warn("listing page failed", zap.Int("page", page), zap.String("url", pageURL), zap.Error(err))
			c.reporter.Report(ctx, progress.Event{
				Stage:       progress.StagePageError,
				Category:    run.category.ID,
				Page:        page,
				URL:         pageURL,
				StatusClass: progress.ClassifyStatus(StatusCodeOf(err)),
				Note:        err.Error(),
			})
			return
		}
	}

	records, structure := c.extractor.Listing(body)
	if structure == StructureMalformed {
		c.drift(ctx, run.category.ID, page, pageURL, progress.ComponentListing, "listing table not found")
	}
	run.tally.pagesOK.Add(1)
	c.reporter.Report(ctx, progress.Event{
		Stage:    progress.StagePageDone,
		Category: run.category.ID,
		Page:     page,
		URL:      pageURL,
		Bytes:    int64(len(body)),
		Dur:      c.clock.Now().Sub(start),
	})
	run.logger.Debug("listing page extracted", zap.Int("page", page), zap.Int("records", len(records)))

	for _, rec := range records {
		rec.SourceURL = pageURL
		if err := run.records.Acquire(ctx, 1); err != nil {
			run.logger.Warn("context ended; skipping remaining records", zap.Int("page", page))
			return
		}
		run.recordWG.Add(1)
		go func() {
			defer run.recordWG.Done()
			defer run.records.Release(1)
			c.processRecord(ctx, run, page, rec)
		}()
	}
}

func (c *CategoryCrawler) processRecord(ctx context.Context, run *categoryRun, page int, rec RowRecord) {
	evt := progress.Event{Category: run.category.ID, Page: page, URL: rec.DetailURL}
	err := c.processor.Process(ctx, run.category, rec, run.images)
	switch {
	case err == nil:
		run.tally.recordsWritten.Add(1)
		evt.Stage = progress.StageRecordWritten
	case errors.Is(err, ErrRecordDropped):
		run.tally.recordsDropped.Add(1)
		evt.Stage = progress.StageRecordDropped
		evt.Note = err.Error()
		run.logger.Info("record dropped", zap.Int("page", page), zap.String("detail_url", rec.DetailURL), zap.Error(err))
	default:
		run.tally.recordsFailed.Add(1)
		evt.Stage = progress.StageRecordError
		evt.Note = err.Error()
		run.logger.Warn("record failed", zap.Int("page", page), zap.String("detail_url", rec.DetailURL), zap.Error(err))
	}
	c.reporter.Report(ctx, evt)
}

func (c *CategoryCrawler) drift(ctx context.Context, categoryID string, page int, url, component, note string) {
	logging.ForCategory(c.logger, "category", categoryID).Warn("schema drift detected",
		zap.String("component", component),
		zap.Int("page", page),
		zap.String("url", url),
		zap.String("note", note),
	)
	c.reporter.Report(ctx, progress.Event{
		Stage:     progress.StageSchemaDrift,
		Category:  categoryID,
		Page:      page,
		URL:       url,
		Component: component,
		Note:      note,
	})
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now().UTC()
}
