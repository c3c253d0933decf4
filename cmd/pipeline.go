package cmd

import (
	"context"
	"fmt"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/registry-crawler/internal/api"
	"github.com/JakeFAU/registry-crawler/internal/clock/system"
	"github.com/JakeFAU/registry-crawler/internal/config"
	"github.com/JakeFAU/registry-crawler/internal/crawler"
	"github.com/JakeFAU/registry-crawler/internal/dispatcher"
	"github.com/JakeFAU/registry-crawler/internal/download"
	"github.com/JakeFAU/registry-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/registry-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/registry-crawler/internal/id/uuid"
	"github.com/JakeFAU/registry-crawler/internal/metrics"
	"github.com/JakeFAU/registry-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/registry-crawler/internal/progress"
	"github.com/JakeFAU/registry-crawler/internal/progress/sinks"
	"github.com/JakeFAU/registry-crawler/internal/sink"
	"github.com/JakeFAU/registry-crawler/internal/storage"
	gcsstore "github.com/JakeFAU/registry-crawler/internal/storage/gcs"
	"github.com/JakeFAU/registry-crawler/internal/storage/local"
	"github.com/JakeFAU/registry-crawler/internal/worker"
)

// pipeline holds the wired run components and what must be released after.
type pipeline struct {
	dispatcher *dispatcher.Dispatcher
	hub        *progress.Hub
	stats      *sinks.StatsSink
	records    *sink.FileSink
	server     *api.Server
	gcs        *gcsstorage.Client
}

func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pipeline, error) {
	baseURL, err := crawler.ParseBaseURL(cfg.Site.BaseURL)
	if err != nil {
		return nil, err
	}
	mode, err := dispatcher.ParseMode(cfg.Crawler.Mode)
	if err != nil {
		return nil, err
	}

	p := &pipeline{stats: sinks.NewStatsSink()}
	ok := false
	defer func() {
		if !ok {
			p.close(logger)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	p.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("events")), promSink, p.stats)

	clock := system.New()
	reporter := progress.Reporter{Emitter: p.hub, Now: clock.Now}

	procMetrics, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	limiterLog := logger.Named("ratelimit")
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
		OnDelay: func(host string, waited time.Duration) {
			procMetrics.ObserveRateLimitDelay(host, waited)
			limiterLog.Debug("request paced", zap.String("host", host), zap.Duration("waited", waited))
		},
	})

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.Timeout(),
	}, limiter, logger.Named("fetcher"))
	extractor := extract.New(extract.Selectors{
		Table:      cfg.Extract.Table,
		Pagination: cfg.Extract.Pagination,
		Panel:      cfg.Extract.Panel,
		Image:      cfg.Extract.Image,
	})

	store, err := p.buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	downloader := download.New(download.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.Timeout(),
		SkipExisting: cfg.Storage.SkipExisting,
	}, store, limiter, logger.Named("download"))

	p.records, err = sink.New(sink.Config{
		Dir:       cfg.Output.Dir,
		Pattern:   cfg.Output.FilePattern,
		Delimiter: cfg.Output.Delimiter,
	}, logger.Named("sink"))
	if err != nil {
		return nil, fmt.Errorf("init record sink: %w", err)
	}

	initial, maxDelay := cfg.Backoff()
	retry := crawler.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries, initial, maxDelay)

	processor := worker.New(fetcher, extractor, downloader, p.records, retry, clock, reporter, worker.Config{
		ImagePrefix:         cfg.Storage.ImagePrefix,
		DropOnDetailFailure: cfg.Crawler.DropOnDetailFailure,
	}, logger)

	categoryCrawler, err := crawler.NewCategoryCrawler(crawler.Config{
		BaseURL:           baseURL,
		CategoryParam:     cfg.Site.CategoryParam,
		PageConcurrency:   cfg.Crawler.PageConcurrency,
		RecordConcurrency: cfg.Crawler.RecordConcurrency,
		ImageConcurrency:  cfg.Crawler.ImageConcurrency,
	}, fetcher, extractor, processor, retry, clock, reporter, logger)
	if err != nil {
		return nil, fmt.Errorf("init category crawler: %w", err)
	}

	p.dispatcher = dispatcher.New(categoryCrawler, uuid.New(), clock, reporter, dispatcher.Config{
		Mode:        mode,
		MaxParallel: cfg.Crawler.MaxParallelCategories,
	}, logger)

	if cfg.Server.Listen != "" {
		p.server = api.NewServer(reg, p.stats, logger, procMetrics.Middleware)
	}

	ok = true
	return p, nil
}

func (p *pipeline) buildStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		p.gcs = client
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		return store, nil
	default:
		store, err := local.New(local.Config{BaseDir: cfg.ImageRoot()})
		if err != nil {
			return nil, fmt.Errorf("init image store: %w", err)
		}
		return store, nil
	}
}

// close releases everything still open. It is safe on a partially built pipeline.
func (p *pipeline) close(logger *zap.Logger) {
	if p.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := p.hub.Close(ctx); err != nil {
			logger.Warn("progress flush incomplete", zap.Error(err))
		}
		cancel()
		p.hub = nil
	}
	if p.records != nil {
		if err := p.records.Close(); err != nil {
			logger.Warn("close record sink", zap.Error(err))
		}
	}
	if p.gcs != nil {
		if err := p.gcs.Close(); err != nil {
			logger.Warn("close gcs client", zap.Error(err))
		}
	}
}
