// Package download streams record images into an object store using resty.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/registry-crawler/internal/crawler"
	"github.com/JakeFAU/registry-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/registry-crawler/internal/storage"
)

// Config controls the downloader.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// SkipExisting skips keys that already hold a non-empty object.
	SkipExisting bool
}

// Downloader implements crawler.Downloader. Each call issues at most one GET
// and streams the body straight into the store.
type Downloader struct {
	client       *resty.Client
	store        storage.ObjectStore
	limiter      *ratelimit.Limiter
	logger       *zap.Logger
	skipExisting bool
}

// New builds a Downloader writing into store. limiter may be nil.
func New(cfg Config, store storage.ObjectStore, limiter *ratelimit.Limiter, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New()
	client.SetLogger(logger.Named("resty").Sugar())
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Downloader{
		client:       client,
		store:        store,
		limiter:      limiter,
		logger:       logger,
		skipExisting: cfg.SkipExisting,
	}
}

// Download fetches imageURL and writes it to key.
func (d *Downloader) Download(ctx context.Context, imageURL, key string) (crawler.DownloadResult, error) {
	if d.skipExisting {
		size, ok, err := d.store.Size(ctx, key)
		if err != nil {
			return crawler.DownloadResult{}, d.fail(crawler.KindIO, imageURL, key, 0, err)
		}
		if ok && size > 0 {
			d.logger.Debug("image already stored", zap.String("key", key), zap.Int64("bytes", size))
			return crawler.DownloadResult{URI: d.store.URI(key), Bytes: size, Skipped: true}, nil
		}
	}

	if err := d.limiter.Wait(ctx, imageURL); err != nil {
		return crawler.DownloadResult{}, d.fail(crawler.KindNetwork, imageURL, key, 0, err)
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return crawler.DownloadResult{}, d.fail(crawler.KindNetwork, imageURL, key, 0, err)
	}
	body := resp.RawBody()
	defer func() {
		if cerr := body.Close(); cerr != nil {
			d.logger.Debug("close image body", zap.String("url", imageURL), zap.Error(cerr))
		}
	}()
	if !crawler.IsSuccessStatus(resp.StatusCode()) {
		return crawler.DownloadResult{}, d.fail(crawler.KindHTTPStatus, imageURL, key, resp.StatusCode(), nil)
	}

	n, err := d.write(ctx, imageURL, key, body)
	if err != nil {
		return crawler.DownloadResult{}, err
	}
	return crawler.DownloadResult{URI: d.store.URI(key), Bytes: n}, nil
}

// write streams src into key, distinguishing read (network) failures from
// store (io) failures. A failed copy aborts the object so a truncated body
// never lands at key.
func (d *Downloader) write(ctx context.Context, imageURL, key string, src io.Reader) (int64, error) {
	w, err := d.store.Create(ctx, key)
	if err != nil {
		return 0, d.fail(crawler.KindIO, imageURL, key, 0, fmt.Errorf("create object: %w", err))
	}
	tr := &trackingReader{r: src}
	n, copyErr := io.Copy(w, tr)
	if copyErr != nil {
		if aerr := w.Abort(); aerr != nil {
			d.logger.Warn("abort partial object", zap.String("key", key), zap.Error(aerr))
		}
		if tr.err != nil {
			return n, d.fail(crawler.KindNetwork, imageURL, key, 0, fmt.Errorf("read image body: %w", copyErr))
		}
		return n, d.fail(crawler.KindIO, imageURL, key, 0, fmt.Errorf("write object: %w", copyErr))
	}
	if err := w.Close(); err != nil {
		return n, d.fail(crawler.KindIO, imageURL, key, 0, fmt.Errorf("close object: %w", err))
	}
	return n, nil
}

func (d *Downloader) fail(kind crawler.ErrorKind, url, key string, status int, err error) error {
	return &crawler.DownloadError{Kind: kind, URL: url, Key: key, StatusCode: status, Err: err}
}

// trackingReader remembers the last read error so copy failures can be
// attributed to the source.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}
