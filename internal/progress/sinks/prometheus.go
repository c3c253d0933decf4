package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/registry-crawler/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus. It owns the
// collectors for categories, listing pages, records, images and schema drift.
type PrometheusSink struct {
	categoriesRunning prometheus.Gauge
	categoryRuntime   prometheus.Histogram

	pages       *prometheus.CounterVec
	pageLatency prometheus.Histogram
	records     *prometheus.CounterVec
	images      *prometheus.CounterVec
	imageBytes  *prometheus.CounterVec
	schemaDrift *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		categoriesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_categories_running",
			Help: "Current number of categories being crawled.",
		}),
		categoryRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_category_runtime_seconds",
			Help:    "Wall time per completed category crawl.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_pages_total",
			Help: "Listing pages processed partitioned by category and result.",
		}, []string{"category", "result"}),
		pageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_page_duration_seconds",
			Help:    "Listing page fetch and extract latency.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_records_total",
			Help: "Records handled partitioned by category and result.",
		}, []string{"category", "result"}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_images_total",
			Help: "Image downloads partitioned by category and result.",
		}, []string{"category", "result"}),
		imageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_image_bytes_total",
			Help: "Image bytes written per category.",
		}, []string{"category"}),
		schemaDrift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_schema_drift_total",
			Help: "Structural lookups that found an unexpected page layout.",
		}, []string{"category", "component"}),
	}
	for _, collector := range []prometheus.Collector{
		s.categoriesRunning,
		s.categoryRuntime,
		s.pages,
		s.pageLatency,
		s.records,
		s.images,
		s.imageBytes,
		s.schemaDrift,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCategoryStart:
		s.categoriesRunning.Inc()
	case progress.StageCategoryDone:
		s.categoriesRunning.Dec()
		if evt.Dur > 0 {
			s.categoryRuntime.Observe(evt.Dur.Seconds())
		}
	case progress.StagePageDone:
		s.pages.WithLabelValues(evt.Category, "ok").Inc()
		if evt.Dur > 0 {
			s.pageLatency.Observe(evt.Dur.Seconds())
		}
	case progress.StagePageError:
		s.pages.WithLabelValues(evt.Category, "error").Inc()
	case progress.StageRecordWritten:
		s.records.WithLabelValues(evt.Category, "written").Inc()
	case progress.StageRecordError:
		s.records.WithLabelValues(evt.Category, "error").Inc()
	case progress.StageRecordDropped:
		s.records.WithLabelValues(evt.Category, "dropped").Inc()
	case progress.StageImageSaved:
		s.images.WithLabelValues(evt.Category, "saved").Inc()
		if evt.Bytes > 0 {
			s.imageBytes.WithLabelValues(evt.Category).Add(float64(evt.Bytes))
		}
	case progress.StageImageSkipped:
		s.images.WithLabelValues(evt.Category, "skipped").Inc()
	case progress.StageImageError:
		s.images.WithLabelValues(evt.Category, "error").Inc()
	case progress.StageSchemaDrift:
		s.schemaDrift.WithLabelValues(evt.Category, evt.Component).Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
