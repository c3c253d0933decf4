// Package cmd defines and implements the CLI commands for the registrycrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/registry-crawler/internal/config"
	"github.com/JakeFAU/registry-crawler/internal/crawler"
	"github.com/JakeFAU/registry-crawler/internal/logging"
	"github.com/JakeFAU/registry-crawler/internal/progress/sinks"
)

const flushTimeout = 10 * time.Second

type crawlOptions struct {
	categories []string
	outputDir  string
	mode       string
	listen     string
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the configured categories",
		Long: `Crawls every configured category to completion. Categories run one after
another unless --mode=concurrent is given. Per-record failures are logged and
skipped; the command only fails on configuration or startup errors.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.categories, "category", nil, "category id to crawl (repeatable, overrides site.categories)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "directory for output files (overrides output.dir)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "sequential or concurrent (overrides crawler.mode)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "status server address, e.g. :9090 (overrides server.listen)")
	return cmd
}

// applyOverrides folds command-line flags into cfg and revalidates it.
func applyOverrides(cfg config.Config, opts *crawlOptions) (config.Config, error) {
	if len(opts.categories) > 0 {
		ids := make([]string, 0, len(opts.categories))
		for _, raw := range opts.categories {
			for _, id := range strings.Split(raw, ",") {
				ids = append(ids, strings.TrimSpace(id))
			}
		}
		cfg.Site.Categories = ids
	}
	if opts.outputDir != "" {
		cfg.Output.Dir = opts.outputDir
	}
	if opts.mode != "" {
		cfg.Crawler.Mode = opts.mode
	}
	if opts.listen != "" {
		cfg.Server.Listen = opts.listen
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func runCrawl(parent context.Context, opts *crawlOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err = applyOverrides(cfg, opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.close(logger)

	serverDone := make(chan error, 1)
	serverCtx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
	if p.server != nil {
		go func() { serverDone <- p.server.ListenAndServe(serverCtx, cfg.Server.Listen) }()
		p.server.SetReady(true)
	} else {
		close(serverDone)
	}

	logger.Info("crawl starting",
		zap.Strings("categories", cfg.Site.Categories),
		zap.String("mode", cfg.Crawler.Mode),
		zap.String("output_dir", cfg.Output.Dir),
	)
	summary, err := p.dispatcher.Run(ctx, cfg.CategoryList())
	if err != nil {
		stopServer()
		<-serverDone
		return fmt.Errorf("run crawl: %w", err)
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := p.hub.Close(flushCtx); err != nil {
		logger.Warn("progress flush incomplete", zap.Error(err))
	}
	accepted, dropped := p.hub.Stats()
	p.hub = nil

	logSummary(logger, summary, p.stats, eventTotals{accepted: accepted, dropped: dropped})

	if p.server != nil {
		p.server.SetReady(false)
	}
	stopServer()
	if err := <-serverDone; err != nil {
		logger.Warn("status server stopped with error", zap.Error(err))
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn("crawl interrupted; output files hold the records written so far")
	}
	return nil
}

// eventTotals counts progress events the hub accepted and dropped.
type eventTotals struct {
	accepted int64
	dropped  int64
}

func logSummary(logger *zap.Logger, summary crawler.RunSummary, stats *sinks.StatsSink, events eventTotals) {
	for _, c := range summary.Categories {
		fields := []zap.Field{
			zap.String("category", c.Category),
			zap.Int("pages", c.PageCount),
			zap.Int("pages_ok", c.PagesOK),
			zap.Int("pages_failed", c.PagesFailed),
			zap.Int("records_written", c.RecordsWritten),
			zap.Int("records_failed", c.RecordsFailed),
			zap.Int("records_dropped", c.RecordsDropped),
			zap.Int("images_queued", c.ImagesQueued),
			zap.Int("images_not_started", c.ImagesSkipped),
			zap.Duration("duration", c.Duration),
		}
		if st, ok := stats.Category(c.Category); ok {
			fields = append(fields,
				zap.Int64("images_saved", st.ImagesSaved),
				zap.Int64("images_skipped", st.ImagesSkipped),
				zap.Int64("images_failed", st.ImagesFailed),
				zap.Int64("schema_drift", st.SchemaDrift),
			)
		}
		logger.Info("category summary", fields...)
	}
	logger.Info("crawl finished",
		zap.String("run_id", summary.RunID),
		zap.Int("categories", len(summary.Categories)),
		zap.Int("records_written", summary.Records()),
		zap.Int64("events_accepted", events.accepted),
		zap.Int64("events_dropped", events.dropped),
		zap.Duration("duration", summary.Duration),
	)
	if events.dropped > 0 {
		logger.Warn("progress events were dropped; live counters undercount", zap.Int64("dropped", events.dropped))
	}
}
