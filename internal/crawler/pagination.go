package crawler

import (
	"context"
	"fmt"
	"net/url"
)

// Resolver discovers how many listing pages a category has.
type Resolver struct {
	fetcher   Fetcher
	extractor Extractor
	retry     RetryPolicy
	baseURL   *url.URL
	param     string
}

// NewResolver builds a Resolver for listings under baseURL.
func NewResolver(fetcher Fetcher, extractor Extractor, retry RetryPolicy, baseURL *url.URL, categoryParam string) *Resolver {
	if categoryParam == "" {
		categoryParam = DefaultCategoryParam
	}
	return &Resolver{
		fetcher:   fetcher,
		extractor: extractor,
		retry:     retry,
		baseURL:   baseURL,
		param:     categoryParam,
	}
}

// Resolve fetches page 1 and reads the page count from it. The page count is
// always at least 1, even when an error is returned, so callers can keep going
// with the first page.
func (r *Resolver) Resolve(ctx context.Context, category Category) (Resolution, error) {
	pageURL := category.ListingURL(r.baseURL, r.param, 1)
	res := Resolution{PageCount: 1, Structure: StructureAbsent, FirstPageURL: pageURL}

	body, err := FetchWithRetry(ctx, r.fetcher, r.retry, pageURL)
	if err != nil {
		return res, fmt.Errorf("resolve page count for category %s: %w", category.ID, err)
	}
	if body == nil {
		body = []byte{}
	}
	res.FirstPage = body
	res.PageCount, res.Structure = r.extractor.PageCount(body)
	if res.PageCount < 1 {
		res.PageCount = 1
	}
	return res, nil
}
