package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies fetch and download failures.
type ErrorKind string

// Error kinds surfaced by the fetcher and downloader.
const (
	KindNetwork    ErrorKind = "network"
	KindHTTPStatus ErrorKind = "http_status"
	KindIO         ErrorKind = "io"
	// KindBlocked marks a request refused locally by robots.txt rules.
	KindBlocked ErrorKind = "blocked"
)

// ErrRecordDropped is returned by a RecordProcessor that deliberately
// discarded a record instead of writing it.
var ErrRecordDropped = errors.New("record dropped")

// FetchError reports a failed page fetch.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DownloadError reports a failed image download.
type DownloadError struct {
	Kind       ErrorKind
	URL        string
	Key        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("download %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s to %s: %s: %v", e.URL, e.Key, e.Kind, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewStatusError builds a FetchError for a non-2xx response.
func NewStatusError(url string, code int) *FetchError {
	return &FetchError{Kind: KindHTTPStatus, URL: url, StatusCode: code}
}

// NewNetworkError builds a FetchError for a transport failure.
func NewNetworkError(url string, err error) *FetchError {
	return &FetchError{Kind: KindNetwork, URL: url, Err: err}
}

// IsSuccessStatus reports whether code is in the [200,299] range.
func IsSuccessStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// IsRetryable reports whether err is worth another attempt: network failures,
// 429 and 5xx responses. Context cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case KindNetwork:
			return true
		case KindHTTPStatus:
			return fe.StatusCode == http.StatusTooManyRequests || fe.StatusCode >= http.StatusInternalServerError
		}
		return false
	}
	var de *DownloadError
	if errors.As(err, &de) {
		return de.Kind == KindNetwork
	}
	return false
}

// StatusCodeOf extracts the HTTP status carried by err, or 0.
func StatusCodeOf(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	var de *DownloadError
	if errors.As(err, &de) {
		return de.StatusCode
	}
	return 0
}
