package crawler

import (
	"net/url"
	"strconv"
	"time"
)

// FieldCount is the number of text cells extracted from each listing row.
const FieldCount = 9

// Filters maps listing query keys to values. Empty values are still sent.
type Filters map[string]string

// Category is one independently crawled partition of the registry.
type Category struct {
	ID      string
	Filters Filters
}

// ListingURL builds the listing URL for page of the category. categoryParam
// names the query key carrying the category identifier.
func (c Category) ListingURL(base *url.URL, categoryParam string, page int) string {
	u := *base
	q := u.Query()
	for k, v := range c.Filters {
		q.Set(k, v)
	}
	q.Set(categoryParam, c.ID)
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// RowRecord is a single extracted listing row.
type RowRecord struct {
	// Fields holds exactly FieldCount trimmed cell texts in column order.
	Fields [FieldCount]string
	// DetailURL is the raw href of the 10th cell link; empty when absent.
	DetailURL string
	// ImageURL is the raw src of the detail page image; empty when absent.
	ImageURL string
	// ImageKey is the store-relative path the image is written to.
	ImageKey string
	// SourceURL is the listing page the row was read from.
	SourceURL string
}

// HasDetail reports whether the row linked to a detail page.
func (r RowRecord) HasDetail() bool {
	return r.DetailURL != ""
}

// Columns returns the serialized column order: 9 fields, detail URL, image URL.
func (r RowRecord) Columns() []string {
	out := make([]string, 0, FieldCount+2)
	out = append(out, r.Fields[:]...)
	out = append(out, r.DetailURL, r.ImageURL)
	return out
}

// Structure classifies the outcome of a structural lookup in a page.
type Structure int

// Structure values. StructureMalformed signals probable upstream layout drift.
const (
	StructureFound Structure = iota
	StructureAbsent
	StructureMalformed
)

func (s Structure) String() string {
	switch s {
	case StructureFound:
		return "found"
	case StructureAbsent:
		return "absent"
	case StructureMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of pagination discovery for a category.
type Resolution struct {
	PageCount int
	Structure Structure
	// FirstPage is the page-1 body, reused so page 1 is not fetched twice.
	// It is non-nil whenever resolution fetched the page, even if empty.
	FirstPage []byte
	// FirstPageURL is the URL FirstPage was fetched from.
	FirstPageURL string
}

// DownloadResult describes a completed image download.
type DownloadResult struct {
	URI     string
	Bytes   int64
	Skipped bool
}

// Summary tallies the units handled while crawling one category.
type Summary struct {
	Category       string
	PageCount      int
	PagesOK        int
	PagesFailed    int
	RecordsWritten int
	RecordsFailed  int
	RecordsDropped int
	ImagesQueued   int
	// ImagesSkipped counts queued downloads that never started because the
	// context ended first.
	ImagesSkipped int
	Duration      time.Duration
}

// RunSummary aggregates category summaries for a whole run.
type RunSummary struct {
	RunID      string
	Categories []Summary
	Duration   time.Duration
}

// Records returns the number of lines written across all categories.
func (s RunSummary) Records() int {
	total := 0
	for _, c := range s.Categories {
		total += c.RecordsWritten
	}
	return total
}
