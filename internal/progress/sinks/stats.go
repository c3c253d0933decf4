package sinks

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/registry-crawler/internal/progress"
)

// CategoryStats is a point-in-time tally for one category.
type CategoryStats struct {
	Category       string `json:"category"`
	Running        bool   `json:"running"`
	PagesOK        int64  `json:"pages_ok"`
	PagesFailed    int64  `json:"pages_failed"`
	RecordsWritten int64  `json:"records_written"`
	RecordsFailed  int64  `json:"records_failed"`
	RecordsDropped int64  `json:"records_dropped"`
	ImagesSaved    int64  `json:"images_saved"`
	ImagesSkipped  int64  `json:"images_skipped"`
	ImagesFailed   int64  `json:"images_failed"`
	ImageBytes     int64  `json:"image_bytes"`
	SchemaDrift    int64  `json:"schema_drift"`
}

// StatsSink aggregates events into per-category counters held in memory.
// The status server and the end-of-run summary read from it.
type StatsSink struct {
	mu    sync.RWMutex
	stats map[string]*CategoryStats
}

// NewStatsSink returns an empty StatsSink.
func NewStatsSink() *StatsSink {
	return &StatsSink{stats: make(map[string]*CategoryStats)}
}

// Consume folds the batch into the per-category counters.
func (s *StatsSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.Category == "" {
			continue
		}
		st, ok := s.stats[evt.Category]
		if !ok {
			st = &CategoryStats{Category: evt.Category}
			s.stats[evt.Category] = st
		}
		apply(st, evt)
	}
	return nil
}

func apply(st *CategoryStats, evt progress.Event) {
	switch evt.Stage {
	case progress.StageCategoryStart:
		st.Running = true
	case progress.StageCategoryDone:
		st.Running = false
	case progress.StagePageDone:
		st.PagesOK++
	case progress.StagePageError:
		st.PagesFailed++
	case progress.StageRecordWritten:
		st.RecordsWritten++
	case progress.StageRecordError:
		st.RecordsFailed++
	case progress.StageRecordDropped:
		st.RecordsDropped++
	case progress.StageImageSaved:
		st.ImagesSaved++
		st.ImageBytes += evt.Bytes
	case progress.StageImageSkipped:
		st.ImagesSkipped++
	case progress.StageImageError:
		st.ImagesFailed++
	case progress.StageSchemaDrift:
		st.SchemaDrift++
	}
}

// Snapshot returns a copy of every category's counters ordered by category.
func (s *StatsSink) Snapshot() []CategoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CategoryStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Category returns the counters for one category.
func (s *StatsSink) Category(id string) (CategoryStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[id]
	if !ok {
		return CategoryStats{}, false
	}
	return *st, true
}

// Close implements the Sink interface; it performs no action.
func (s *StatsSink) Close(context.Context) error {
	return nil
}
