// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/registry-crawler/internal/crawler"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Output  OutputConfig  `mapstructure:"output"`
	Storage StorageConfig `mapstructure:"storage"`
	Extract ExtractConfig `mapstructure:"extract"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// SiteConfig describes the registry being crawled.
type SiteConfig struct {
	BaseURL       string            `mapstructure:"base_url"`
	CategoryParam string            `mapstructure:"category_param"`
	Categories    []string          `mapstructure:"categories"`
	Filters       map[string]string `mapstructure:"filters"`
}

// CrawlerConfig governs scheduling and per-category fan-out.
type CrawlerConfig struct {
	Mode                  string `mapstructure:"mode"`
	MaxParallelCategories int    `mapstructure:"max_parallel_categories"`
	PageConcurrency       int    `mapstructure:"page_concurrency"`
	RecordConcurrency     int    `mapstructure:"record_concurrency"`
	ImageConcurrency      int    `mapstructure:"image_concurrency"`
	UserAgent             string `mapstructure:"user_agent"`
	RespectRobots         bool   `mapstructure:"respect_robots"`
	DropOnDetailFailure   bool   `mapstructure:"drop_on_detail_failure"`
}

// HTTPConfig configures request timeouts, retries and pacing.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// OutputConfig controls the per-category record files.
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	FilePattern string `mapstructure:"file_pattern"`
	Delimiter   string `mapstructure:"delimiter"`
}

// StorageConfig selects where downloaded images are written.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	ImageDir     string `mapstructure:"image_dir"`
	ImagePrefix  string `mapstructure:"image_prefix"`
	SkipExisting bool   `mapstructure:"skip_existing"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	Prefix       string `mapstructure:"prefix"`
}

// ExtractConfig overrides the markup selectors.
type ExtractConfig struct {
	Table      string `mapstructure:"table"`
	Pagination string `mapstructure:"pagination"`
	Panel      string `mapstructure:"panel"`
	Image      string `mapstructure:"image"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the status server. An empty Listen disables it.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// Storage backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "http://mis.molwa.gov.bd/freedom-fighter-list")
	v.SetDefault("site.category_param", crawler.DefaultCategoryParam)
	v.SetDefault("site.categories", []string{"1", "2", "3", "4", "5", "6", "7", "9"})
	v.SetDefault("site.filters", map[string]string{
		"district_id": "",
		"thana_id":    "",
		"name":        "",
		"prove_type":  "",
		"gazette_no":  "",
	})
	v.SetDefault("crawler.mode", "sequential")
	v.SetDefault("crawler.max_parallel_categories", 2)
	v.SetDefault("crawler.page_concurrency", crawler.DefaultPageConcurrency)
	v.SetDefault("crawler.record_concurrency", crawler.DefaultRecordConcurrency)
	v.SetDefault("crawler.image_concurrency", crawler.DefaultImageConcurrency)
	v.SetDefault("crawler.user_agent", "registry-crawler/0.1")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.drop_on_detail_failure", false)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.file_pattern", "division_%s_data.csv")
	v.SetDefault("output.delimiter", ",")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.image_dir", "images")
	v.SetDefault("storage.image_prefix", "")
	v.SetDefault("storage.skip_existing", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.listen", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := crawler.ParseBaseURL(c.Site.BaseURL); err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}
	if strings.TrimSpace(c.Site.CategoryParam) == "" {
		return fmt.Errorf("site.category_param must be set")
	}
	if len(c.Site.Categories) == 0 {
		return fmt.Errorf("site.categories must list at least one category")
	}
	for _, id := range c.Site.Categories {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("site.categories must not contain empty ids")
		}
	}
	switch strings.ToLower(c.Crawler.Mode) {
	case "sequential", "concurrent":
	default:
		return fmt.Errorf("crawler.mode must be sequential or concurrent, got %q", c.Crawler.Mode)
	}
	if c.Crawler.MaxParallelCategories <= 0 {
		return fmt.Errorf("crawler.max_parallel_categories must be > 0")
	}
	if c.Crawler.PageConcurrency <= 0 {
		return fmt.Errorf("crawler.page_concurrency must be > 0")
	}
	if c.Crawler.RecordConcurrency <= 0 {
		return fmt.Errorf("crawler.record_concurrency must be > 0")
	}
	if c.Crawler.ImageConcurrency <= 0 {
		return fmt.Errorf("crawler.image_concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if strings.Count(c.Output.FilePattern, "%s") != 1 {
		return fmt.Errorf("output.file_pattern must contain exactly one %%s")
	}
	if c.Output.Delimiter == "" {
		return fmt.Errorf("output.delimiter must be set")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.ImageDir == "" {
			return fmt.Errorf("storage.image_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or gcs, got %q", c.Storage.Backend)
	}
	return nil
}

// ImageRoot resolves the local image directory; relative paths live under
// the output directory.
func (c Config) ImageRoot() string {
	if filepath.IsAbs(c.Storage.ImageDir) {
		return c.Storage.ImageDir
	}
	return filepath.Join(c.Output.Dir, c.Storage.ImageDir)
}

// Timeout returns the per-request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Backoff returns the initial and maximum retry delays.
func (c Config) Backoff() (initial, maxDelay time.Duration) {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

// CategoryList builds the crawl categories, each carrying the shared filters.
func (c Config) CategoryList() []crawler.Category {
	out := make([]crawler.Category, 0, len(c.Site.Categories))
	for _, id := range c.Site.Categories {
		filters := make(crawler.Filters, len(c.Site.Filters))
		for k, v := range c.Site.Filters {
			filters[k] = v
		}
		out = append(out, crawler.Category{ID: strings.TrimSpace(id), Filters: filters})
	}
	return out
}
