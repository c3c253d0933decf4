package crawler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Fetcher retrieves the raw body of an absolute URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor turns listing and detail markup into records.
type Extractor interface {
	Listing(body []byte) ([]RowRecord, Structure)
	DetailImage(body []byte) (string, Structure)
	PageCount(body []byte) (int, Structure)
}

// Downloader streams an image to the store under key.
type Downloader interface {
	Download(ctx context.Context, imageURL string, key string) (DownloadResult, error)
}

// RecordSink appends records to a per-category output.
type RecordSink interface {
	Append(ctx context.Context, outputID string, record RowRecord) error
}

// RecordProcessor resolves and persists a single extracted record. Detached
// work (image downloads) must be started through spawn so the caller can wait
// for it.
type RecordProcessor interface {
	Process(ctx context.Context, category Category, record RowRecord, spawn Spawner) error
}

// Spawner starts tracked background work.
type Spawner interface {
	Go(fn func(ctx context.Context))
}

// RetryPolicy decides whether and when a failed unit is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
