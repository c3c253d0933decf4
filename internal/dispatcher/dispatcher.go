// Package dispatcher drives category crawls for a whole run.
package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/registry-crawler/internal/crawler"
	"github.com/JakeFAU/registry-crawler/internal/progress"
)

// Mode selects how categories are scheduled.
type Mode string

// Supported scheduling modes.
const (
	ModeSequential Mode = "sequential"
	ModeConcurrent Mode = "concurrent"
)

// ParseMode validates a configured mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeConcurrent:
		return ModeConcurrent, nil
	default:
		return "", fmt.Errorf("unknown crawl mode %q", raw)
	}
}

// Config controls cross-category scheduling.
type Config struct {
	Mode Mode
	// MaxParallel caps concurrently crawled categories in ModeConcurrent.
	MaxParallel int
}

// CategoryRunner crawls a single category to completion.
type CategoryRunner interface {
	Run(ctx context.Context, category crawler.Category) crawler.Summary
}

// Dispatcher runs the configured categories and absorbs their outcomes.
type Dispatcher struct {
	runner   CategoryRunner
	ids      crawler.IDGenerator
	clock    crawler.Clock
	reporter progress.Reporter
	cfg      Config
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(
	runner CategoryRunner,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	reporter progress.Reporter,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.Mode == "" {
		cfg.Mode = ModeSequential
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		runner:   runner,
		ids:      ids,
		clock:    clock,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger.Named("dispatcher"),
	}
}

// Run crawls every category and returns once all have finished. Summaries
// keep the order of categories. Only failing to mint a run ID is an error.
func (d *Dispatcher) Run(ctx context.Context, categories []crawler.Category) (crawler.RunSummary, error) {
	runID, err := d.ids.NewRawID()
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("new run id: %w", err)
	}
	ctx = progress.WithRunID(ctx, progress.UUIDToBytes(runID))
	logger := d.logger.With(zap.String("run_id", runID.String()))
	start := d.clock.Now()

	d.reporter.Report(ctx, progress.Event{Stage: progress.StageRunStart, Note: string(d.cfg.Mode)})
	logger.Info("run started",
		zap.String("mode", string(d.cfg.Mode)),
		zap.Int("categories", len(categories)),
		zap.Int("max_parallel", d.cfg.MaxParallel),
	)

	summaries := make([]crawler.Summary, len(categories))
	switch d.cfg.Mode {
	case ModeConcurrent:
		var g errgroup.Group
		g.SetLimit(d.cfg.MaxParallel)
		for i, cat := range categories {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				summaries[i] = d.runner.Run(ctx, cat)
				return nil
			})
		}
		_ = g.Wait()
	default:
		for i, cat := range categories {
			if ctx.Err() != nil {
				logger.Warn("context ended; skipping remaining categories", zap.String("next_category", cat.ID))
				break
			}
			summaries[i] = d.runner.Run(ctx, cat)
		}
	}

	ran := summaries[:0]
	for _, s := range summaries {
		if s.Category != "" {
			ran = append(ran, s)
		}
	}
	result := crawler.RunSummary{
		RunID:      runID.String(),
		Categories: ran,
		Duration:   d.clock.Now().Sub(start),
	}
	d.reporter.Report(ctx, progress.Event{Stage: progress.StageRunDone, Dur: result.Duration})
	logger.Info("run finished",
		zap.Int("categories_run", len(ran)),
		zap.Int("records_written", result.Records()),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}
