package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Default concurrency limits per category.
const (
	DefaultPageConcurrency   = 4
	DefaultRecordConcurrency = 8
	DefaultImageConcurrency  = 8
	DefaultCategoryParam     = "division_id"
)

// Config holds the settings for crawling a category.
// It is decoupled from Viper so the crawl pipeline can be tested without it.
type Config struct {
	// BaseURL is the listing endpoint; filters and paging are added as query parameters.
	BaseURL *url.URL
	// CategoryParam names the query key carrying the category identifier.
	CategoryParam     string
	PageConcurrency   int
	RecordConcurrency int
	ImageConcurrency  int
}

// ParseBaseURL parses and checks an absolute listing URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	return u, nil
}

// withDefaults fills unset limits.
func (c Config) withDefaults() Config {
	if c.CategoryParam == "" {
		c.CategoryParam = DefaultCategoryParam
	}
	if c.PageConcurrency <= 0 {
		c.PageConcurrency = DefaultPageConcurrency
	}
	if c.RecordConcurrency <= 0 {
		c.RecordConcurrency = DefaultRecordConcurrency
	}
	if c.ImageConcurrency <= 0 {
		c.ImageConcurrency = DefaultImageConcurrency
	}
	return c
}

// Validate checks for obviously bad configuration.
func (c Config) Validate() error {
	if c.BaseURL == nil {
		return errors.New("base url is required")
	}
	if !c.BaseURL.IsAbs() {
		return fmt.Errorf("base url %q must be absolute", c.BaseURL)
	}
	return nil
}
